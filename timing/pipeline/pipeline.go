package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sarchlab/pipeviz/insts"
)

var (
	// ErrNotFound is returned when an instruction id is not in the state.
	ErrNotFound = errors.New("instruction not found")

	// ErrTickAborted is returned when a cycle could not be completed. The
	// state handed to Tick is left untouched.
	ErrTickAborted = errors.New("tick aborted")
)

// Statistics holds pipeline statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64 `json:"cycles"`
	// Instructions is the number of instructions that reached Writeback.
	Instructions uint64 `json:"instructions"`
	// Stalls is the number of instruction-cycles spent stalled.
	Stalls uint64 `json:"stalls"`
	// Hazards counts stall cycles per hazard kind, indexed by HazardKind.
	Hazards [NumHazardKinds]uint64 `json:"hazards"`
}

// CPI returns the cycles per completed instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// HazardCount returns the number of stall cycles caused by kind.
func (s Statistics) HazardCount(kind HazardKind) uint64 {
	if int(kind) >= NumHazardKinds {
		return 0
	}
	return s.Hazards[kind]
}

// State is the complete, self-contained state of a simulation.
//
// A State is treated as a value: Tick never changes the State it is given,
// it returns a new one.
type State struct {
	// Cycle is the number of the next cycle to simulate. It starts at 1.
	Cycle uint64 `json:"cycle"`

	// Instructions is in program order. It is only ever appended to.
	Instructions []*Instruction `json:"instructions"`

	Stats Statistics `json:"stats"`
}

// NewState creates the initial state holding one batch of instructions.
func NewState(batch []*insts.Instruction) State {
	return State{
		Cycle:        1,
		Instructions: Track(batch),
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	clone := s
	clone.Instructions = make([]*Instruction, len(s.Instructions))
	for i, inst := range s.Instructions {
		clone.Instructions[i] = inst.Clone()
	}
	return clone
}

// WithBatch returns a copy of the state with batch appended.
func (s State) WithBatch(batch []*insts.Instruction) State {
	clone := s.Clone()
	clone.Instructions = append(clone.Instructions, Track(batch)...)
	return clone
}

// IsComplete returns true when every instruction has reached Writeback.
// A state without instructions is complete.
func (s State) IsComplete() bool {
	for _, inst := range s.Instructions {
		if !inst.Completed() {
			return false
		}
	}
	return true
}

// LastID returns the id of the last instruction, or 0 if there is none.
func (s State) LastID() uint64 {
	if len(s.Instructions) == 0 {
		return 0
	}
	return s.Instructions[len(s.Instructions)-1].ID
}

// Find returns the instruction with the given id.
func (s State) Find(id uint64) (*Instruction, error) {
	inst, ok := findInstruction(s.Instructions, id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return inst, nil
}

// Pipeline is the clock of the simulation. It advances every instruction of
// a State by one cycle.
type Pipeline struct {
	hazardDetector HazardDetector
}

// NewPipeline creates a pipeline that consults the given hazard detector.
func NewPipeline(detector HazardDetector) *Pipeline {
	return &Pipeline{
		hazardDetector: detector,
	}
}

// HazardDetector returns the detector in use.
func (p *Pipeline) HazardDetector() HazardDetector {
	return p.hazardDetector
}

// SetHazardDetector replaces the detector in use.
func (p *Pipeline) SetHazardDetector(detector HazardDetector) {
	p.hazardDetector = detector
}

// Tick simulates cycle state.Cycle and returns the resulting state together
// with the explanation of the cycle.
//
// Instructions are advanced strictly in program order because an
// instruction may only be fetched after its predecessor entered Decode in
// this or an earlier cycle. Ticking a complete state only moves the clock.
//
// Tick is all-or-nothing: if the cycle cannot be completed, the original
// state is returned together with an error wrapping ErrTickAborted.
func (p *Pipeline) Tick(state State) (State, string, error) {
	next := state.Clone()

	lines, err := p.advanceAll(&next)
	if err != nil {
		return state, "", err
	}

	return next, formatCycle(state.Cycle, lines), nil
}

func (p *Pipeline) advanceAll(s *State) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: cycle %d: %v", ErrTickAborted, s.Cycle, r)
		}
	}()

	cycle := s.Cycle
	for position, inst := range s.Instructions {
		wasCompleted := inst.Completed()

		lines = append(lines,
			Advance(inst, s.Instructions, cycle, position, p.hazardDetector)...)

		p.countInstruction(&s.Stats, inst, wasCompleted)
	}

	s.Cycle++
	s.Stats.Cycles++

	return lines, nil
}

func (p *Pipeline) countInstruction(
	stats *Statistics,
	inst *Instruction,
	wasCompleted bool,
) {
	if !wasCompleted && inst.Completed() {
		stats.Instructions++
	}

	current := inst.CurrentStage()
	if current == StageNone {
		return
	}

	record := inst.Stages[current]
	if record.Stalled {
		stats.Stalls++
		stats.Hazards[record.Hazard]++
	}
}

// Reset returns the initial state for a fresh batch.
func (p *Pipeline) Reset(batch []*insts.Instruction) State {
	return NewState(batch)
}

func formatCycle(cycle uint64, lines []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cycle %d:\n", cycle)
	if len(lines) == 0 {
		b.WriteString("  No instruction changed stage.\n")
		return b.String()
	}

	for _, line := range lines {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
