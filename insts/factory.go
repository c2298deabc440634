package insts

// RandomSource provides the randomness the factory draws from.
// *rand.Rand from math/rand satisfies it.
type RandomSource interface {
	Intn(n int) int
	Float64() float64
}

// FactoryOption is a functional option for configuring the Factory.
type FactoryOption func(*Factory)

// WithCatalogue replaces the catalogue names are drawn from.
func WithCatalogue(catalogue []Template) FactoryOption {
	return func(f *Factory) {
		f.catalogue = catalogue
	}
}

// WithDependencyProbability sets the chance that an instruction after the
// first one in a batch depends on an earlier instruction of the same batch.
// The default of 1 always assigns one.
func WithDependencyProbability(p float64) FactoryOption {
	return func(f *Factory) {
		f.dependencyProbability = p
	}
}

// Factory creates batches of synthetic instructions.
type Factory struct {
	rng                   RandomSource
	catalogue             []Template
	dependencyProbability float64
}

// NewFactory creates a factory that draws from rng.
func NewFactory(rng RandomSource, opts ...FactoryOption) *Factory {
	f := &Factory{
		rng:                   rng,
		catalogue:             DefaultCatalogue,
		dependencyProbability: 1,
	}

	for _, opt := range opts {
		opt(f)
	}

	if len(f.catalogue) == 0 {
		f.catalogue = DefaultCatalogue
	}

	return f
}

// CreateBatch returns count new instructions with ids starting right after
// nextIDStart. The first instruction has no dependency; every later one may
// depend on any instruction created before it in the same batch.
//
// The factory keeps no id state. The caller appends the batch and advances
// its own id counter by count.
func (f *Factory) CreateBatch(count int, nextIDStart uint64) []*Instruction {
	if count <= 0 {
		return nil
	}

	batch := make([]*Instruction, 0, count)
	for i := 0; i < count; i++ {
		tmpl := f.catalogue[f.rng.Intn(len(f.catalogue))]

		inst := &Instruction{
			ID:     nextIDStart + uint64(i) + 1,
			Name:   tmpl.Text,
			Op:     tmpl.Op,
			Format: tmpl.Format,
		}

		if i > 0 && f.assignDependency() {
			inst.Dependency = nextIDStart + uint64(f.rng.Intn(i)) + 1
			inst.HasDependency = true
		}

		batch = append(batch, inst)
	}

	return batch
}

func (f *Factory) assignDependency() bool {
	switch {
	case f.dependencyProbability >= 1:
		return true
	case f.dependencyProbability <= 0:
		return false
	default:
		return f.rng.Float64() < f.dependencyProbability
	}
}
