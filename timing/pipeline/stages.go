package pipeline

import (
	"fmt"
	"sort"
)

// Stage is one of the five pipeline stages.
type Stage int

// Pipeline stages in program order.
const (
	StageFetch Stage = iota
	StageDecode
	StageExecute
	StageMemory
	StageWriteback

	// NumStages is the pipeline depth.
	NumStages = 5
)

// StageNone is the current stage of an instruction that has not been
// fetched.
const StageNone Stage = -1

var (
	stageNames      = [NumStages]string{"Fetch", "Decode", "Execute", "Memory", "Writeback"}
	stageShortNames = [NumStages]string{"IF", "ID", "EX", "MEM", "WB"}
)

// Valid reports whether s names one of the five stages.
func (s Stage) Valid() bool {
	return s >= StageFetch && s <= StageWriteback
}

// String returns the stage name, e.g. "Decode".
func (s Stage) String() string {
	if s.Valid() {
		return stageNames[s]
	}
	if s == StageNone {
		return "None"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Short returns the classic abbreviation, e.g. "ID".
func (s Stage) Short() string {
	if s.Valid() {
		return stageShortNames[s]
	}
	return "--"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stages returns all stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageFetch, StageDecode, StageExecute, StageMemory, StageWriteback}
}

// Advance moves one instruction forward by at most one stage in the given
// cycle and returns the explanation lines for what happened.
//
// position is the index of inst in all, which is in program order. An
// instruction that has not started enters Fetch only once the instruction
// before it has entered Decode. A started instruction asks the detector
// whether the move to its next stage is hazard free; if not it stalls in
// place. Completed instructions are never touched.
func Advance(
	inst *Instruction,
	all []*Instruction,
	cycle uint64,
	position int,
	detector HazardDetector,
) []string {
	current := inst.CurrentStage()

	if current == StageNone {
		if !canEnterFetch(all, position) {
			return nil
		}

		inst.enter(StageFetch, cycle)
		return []string{fmt.Sprintf("Instruction %s enters %s.", inst, StageFetch)}
	}

	if current == StageWriteback {
		return nil
	}

	next := current + 1
	record := &inst.Stages[current]

	hazard := detector.Classify(inst, current, next, dependencyOf(inst, all))
	if hazard.Occurred {
		record.Stalled = true
		record.Hazard = hazard.Kind

		return []string{fmt.Sprintf(
			"Instruction %s stalls in %s due to a %s hazard (%s).",
			inst, current, hazard.Kind, hazard.Kind.Description())}
	}

	resolved := record.Stalled
	resolvedKind := record.Hazard
	record.clearStall()
	inst.enter(next, cycle)

	if resolved {
		return []string{fmt.Sprintf(
			"Instruction %s resolves the %s hazard and advances from %s to %s.",
			inst, resolvedKind, current, next)}
	}

	return []string{fmt.Sprintf(
		"Instruction %s advances from %s to %s.", inst, current, next)}
}

// canEnterFetch enforces in-order issue: the first instruction may always
// be fetched, every other one only after its predecessor reached Decode.
func canEnterFetch(all []*Instruction, position int) bool {
	if position <= 0 {
		return true
	}
	return all[position-1].Stages[StageDecode].Occupied
}

// dependencyOf looks up the instruction inst depends on. A dangling id is
// treated like no dependency.
func dependencyOf(inst *Instruction, all []*Instruction) *Instruction {
	if !inst.HasDependency {
		return nil
	}

	dep, ok := findInstruction(all, inst.Dependency)
	if !ok {
		return nil
	}
	return dep
}

// findInstruction relies on ids increasing with program order.
func findInstruction(all []*Instruction, id uint64) (*Instruction, bool) {
	idx := sort.Search(len(all), func(i int) bool {
		return all[i].ID >= id
	})
	if idx < len(all) && all[idx].ID == id {
		return all[idx], true
	}
	return nil, false
}
