// Package pipeline provides the 5-stage pipeline model of the visualizer.
package pipeline

import "github.com/sarchlab/pipeviz/insts"

// StageRecord holds what an instruction did in one pipeline stage.
type StageRecord struct {
	// Occupied indicates the instruction has entered this stage.
	Occupied bool `json:"occupied"`

	// CycleEntered is the cycle in which the instruction first occupied the
	// stage. It is written once and only meaningful when Occupied is set.
	CycleEntered uint64 `json:"cycle_entered,omitempty"`

	// Stalled indicates the instruction is held in this stage by a hazard.
	// Only the current stage of an instruction can be stalled.
	Stalled bool `json:"stalled"`

	// Hazard is the kind of hazard holding the instruction. It is HazardNone
	// unless Stalled is set.
	Hazard HazardKind `json:"hazard"`
}

// clearStall resets the stall flags once the hazard has resolved.
func (r *StageRecord) clearStall() {
	r.Stalled = false
	r.Hazard = HazardNone
}

// Phase is the coarse state of an instruction in the pipeline state machine.
type Phase uint8

// Instruction phases.
const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseStalled
	PhaseCompleted
)

var phaseNames = [...]string{"NotStarted", "Running", "Stalled", "Completed"}

// String returns the name of the phase.
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "Unknown"
}

// Instruction is an instruction together with its progress through the
// pipeline.
type Instruction struct {
	*insts.Instruction

	// Stages is indexed by Stage.
	Stages [NumStages]StageRecord `json:"stages"`
}

// Track wraps a batch of fresh instructions with empty stage records.
func Track(batch []*insts.Instruction) []*Instruction {
	tracked := make([]*Instruction, 0, len(batch))
	for _, inst := range batch {
		tracked = append(tracked, &Instruction{Instruction: inst})
	}
	return tracked
}

// CurrentStage returns the deepest stage the instruction has entered, or
// StageNone if it has not been fetched yet.
func (i *Instruction) CurrentStage() Stage {
	for s := StageWriteback; s >= StageFetch; s-- {
		if i.Stages[s].Occupied {
			return s
		}
	}
	return StageNone
}

// Started returns true once the instruction has entered Fetch.
func (i *Instruction) Started() bool {
	return i.Stages[StageFetch].Occupied
}

// Completed returns true once the instruction has entered Writeback.
func (i *Instruction) Completed() bool {
	return i.Stages[StageWriteback].Occupied
}

// Stalled returns true if the current stage is held by a hazard.
func (i *Instruction) Stalled() bool {
	current := i.CurrentStage()
	return current != StageNone && i.Stages[current].Stalled
}

// Phase returns where the instruction is in the pipeline state machine.
func (i *Instruction) Phase() Phase {
	switch {
	case i.Completed():
		return PhaseCompleted
	case !i.Started():
		return PhaseNotStarted
	case i.Stalled():
		return PhaseStalled
	default:
		return PhaseRunning
	}
}

// Clone returns a copy whose stage records can be changed independently.
// The static instruction description is shared.
func (i *Instruction) Clone() *Instruction {
	clone := *i
	return &clone
}

// enter marks the stage as occupied starting from the given cycle.
func (i *Instruction) enter(s Stage, cycle uint64) {
	i.Stages[s] = StageRecord{
		Occupied:     true,
		CycleEntered: cycle,
	}
}
