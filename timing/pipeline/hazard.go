package pipeline

import (
	"fmt"

	"github.com/sarchlab/pipeviz/timing/config"
)

// HazardKind identifies why an instruction cannot advance.
type HazardKind uint8

const (
	// HazardNone means no hazard is recorded.
	HazardNone HazardKind = iota
	// HazardRAW is a Read-After-Write data hazard.
	HazardRAW
	// HazardWAR is a Write-After-Read data hazard.
	HazardWAR
	// HazardWAW is a Write-After-Write data hazard.
	HazardWAW
	// HazardControl is a branch-related hazard.
	HazardControl
	// HazardStructural is a resource conflict.
	HazardStructural

	// NumHazardKinds is the number of hazard kinds including HazardNone.
	NumHazardKinds = 6
)

var hazardNames = [NumHazardKinds]string{"None", "RAW", "WAR", "WAW", "Control", "Structural"}

var hazardDescriptions = [NumHazardKinds]string{
	"no hazard",
	"Read-After-Write: the instruction needs a result that is not written back yet",
	"Write-After-Read: the instruction would overwrite a value still to be read",
	"Write-After-Write: two writes to the same register must stay in order",
	"Control: the branch outcome is not known yet",
	"Structural: the hardware resource is busy",
}

// String returns the short name of the hazard kind.
func (k HazardKind) String() string {
	if int(k) < NumHazardKinds {
		return hazardNames[k]
	}
	return fmt.Sprintf("HazardKind(%d)", uint8(k))
}

// Description explains the hazard kind in plain words.
func (k HazardKind) Description() string {
	if int(k) < NumHazardKinds {
		return hazardDescriptions[k]
	}
	return k.String()
}

// MarshalText encodes the hazard kind by name.
func (k HazardKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a hazard kind name.
func (k *HazardKind) UnmarshalText(text []byte) error {
	for i, name := range hazardNames {
		if name == string(text) {
			*k = HazardKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown hazard kind %q", text)
}

// Hazard is the outcome of classifying one stage transition.
type Hazard struct {
	Occurred bool
	Kind     HazardKind
}

// NoHazard is the outcome that lets an instruction advance.
var NoHazard = Hazard{}

// HazardDetector decides whether an instruction may move from its current
// stage to the next one in this cycle. dep is the instruction it depends on,
// or nil if it has none or the dependency could not be found.
type HazardDetector interface {
	Classify(inst *Instruction, current, next Stage, dep *Instruction) Hazard
}

// RandomSource provides the randomness the hazard unit draws from.
// *rand.Rand from math/rand satisfies it.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

// backgroundKinds are the kinds drawn for an instruction without dependency.
var backgroundKinds = [...]HazardKind{HazardRAW, HazardWAR, HazardWAW, HazardStructural}

// HazardUnit is the probabilistic hazard detector of the visualizer. It
// injects hazards with fixed, configurable probabilities rather than by
// tracking register usage.
type HazardUnit struct {
	rng    RandomSource
	config *config.HazardConfig
}

// NewHazardUnit creates a hazard unit. A nil cfg uses the defaults.
func NewHazardUnit(rng RandomSource, cfg *config.HazardConfig) *HazardUnit {
	if cfg == nil {
		cfg = config.DefaultHazardConfig()
	}

	return &HazardUnit{
		rng:    rng,
		config: cfg.Clone(),
	}
}

// Config returns a copy of the probabilities in use.
func (h *HazardUnit) Config() *config.HazardConfig {
	return h.config.Clone()
}

// SetConfig replaces the probabilities in use.
func (h *HazardUnit) SetConfig(cfg *config.HazardConfig) {
	h.config = cfg.Clone()
}

// Classify decides whether the transition from current to next stalls.
//
// With a resolvable dependency the rules are checked in order:
//   - entering Execute before the dependency reached Writeback: RAW
//   - moving from Execute to Memory: Structural
//   - a branch or jump: Control
//
// Only the first matching rule is rolled. Without a dependency a hazard of a
// random kind may still occur with the background probability.
func (h *HazardUnit) Classify(
	inst *Instruction,
	current, next Stage,
	dep *Instruction,
) Hazard {
	if dep == nil {
		return h.classifyIndependent()
	}

	switch {
	case next == StageExecute && !dep.Completed():
		return h.roll(h.config.RAWProbability, HazardRAW)
	case next == StageMemory && current == StageExecute:
		return h.roll(h.config.StructuralProbability, HazardStructural)
	case inst.IsControlFlow():
		return h.roll(h.config.ControlProbability, HazardControl)
	default:
		return NoHazard
	}
}

func (h *HazardUnit) classifyIndependent() Hazard {
	if h.rng.Float64() >= h.config.BackgroundProbability {
		return NoHazard
	}

	kind := backgroundKinds[h.rng.Intn(len(backgroundKinds))]
	return Hazard{Occurred: true, Kind: kind}
}

func (h *HazardUnit) roll(probability float64, kind HazardKind) Hazard {
	if h.rng.Float64() < probability {
		return Hazard{Occurred: true, Kind: kind}
	}
	return NoHazard
}
