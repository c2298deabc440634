package pipeline_test

import (
	"github.com/sarchlab/pipeviz/insts"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

// detectorFunc adapts a function to the HazardDetector interface.
type detectorFunc func(
	inst *pipeline.Instruction,
	current, next pipeline.Stage,
	dep *pipeline.Instruction,
) pipeline.Hazard

func (f detectorFunc) Classify(
	inst *pipeline.Instruction,
	current, next pipeline.Stage,
	dep *pipeline.Instruction,
) pipeline.Hazard {
	return f(inst, current, next, dep)
}

func neverHazard() detectorFunc {
	return func(*pipeline.Instruction, pipeline.Stage, pipeline.Stage, *pipeline.Instruction) pipeline.Hazard {
		return pipeline.NoHazard
	}
}

// newBatch creates independent instructions numbered from 1.
func newBatch(names ...string) []*insts.Instruction {
	batch := make([]*insts.Instruction, 0, len(names))
	for i, name := range names {
		batch = append(batch, &insts.Instruction{
			ID:   uint64(i + 1),
			Name: name,
			Op:   insts.OpADD,
		})
	}
	return batch
}

// adds returns n independent ADD instructions numbered from 1.
func adds(n int) []*insts.Instruction {
	names := make([]string, n)
	for i := range names {
		names[i] = "ADD"
	}
	return newBatch(names...)
}

func tickN(p *pipeline.Pipeline, state pipeline.State, n int) pipeline.State {
	for i := 0; i < n; i++ {
		var err error
		state, _, err = p.Tick(state)
		if err != nil {
			panic(err)
		}
	}
	return state
}

func cycleOf(inst *pipeline.Instruction, s pipeline.Stage) uint64 {
	return inst.Stages[s].CycleEntered
}
