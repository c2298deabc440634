package pipeline

import (
	"fmt"
	"strings"
)

// Describe renders the progress of one instruction as multi-line text: one
// line per stage it has entered, a stall note on the stage holding it, and
// the instruction it depends on.
func Describe(inst *Instruction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Instruction #%d: %s\n", inst.ID, inst.Name)

	if !inst.Started() {
		b.WriteString("  Not fetched yet.\n")
	}

	for _, s := range Stages() {
		record := inst.Stages[s]
		if !record.Occupied {
			continue
		}

		fmt.Fprintf(&b, "  %s: entered in cycle %d", s, record.CycleEntered)
		if record.Stalled {
			fmt.Fprintf(&b, ", stalled by a %s hazard", record.Hazard)
		}
		b.WriteString("\n")
	}

	if inst.HasDependency {
		fmt.Fprintf(&b, "  Depends on instruction #%d.\n", inst.Dependency)
	}

	return b.String()
}

// DescribeByID renders the instruction with the given id. It fails with
// ErrNotFound for an unknown id.
func DescribeByID(state State, id uint64) (string, error) {
	inst, err := state.Find(id)
	if err != nil {
		return "", err
	}
	return Describe(inst), nil
}

// Diagram renders the classic pipeline chart of the cycles simulated so far:
// one row per instruction and one column per cycle. A cell shows the stage
// the instruction occupied in that cycle; a trailing '*' marks a cycle spent
// stalled.
func Diagram(state State) string {
	const cellWidth = 5

	var lastCycle uint64
	if state.Cycle > 0 {
		lastCycle = state.Cycle - 1
	}

	labelWidth := len("Instruction")
	for _, inst := range state.Instructions {
		labelWidth = max(labelWidth, len(diagramLabel(inst)))
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%-*s", labelWidth, "Instruction")
	for c := uint64(1); c <= lastCycle; c++ {
		fmt.Fprintf(&b, "%*d", cellWidth, c)
	}
	b.WriteString("\n")

	for _, inst := range state.Instructions {
		fmt.Fprintf(&b, "%-*s", labelWidth, diagramLabel(inst))
		for c := uint64(1); c <= lastCycle; c++ {
			fmt.Fprintf(&b, "%*s", cellWidth, diagramCell(inst, c))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func diagramLabel(inst *Instruction) string {
	return fmt.Sprintf("#%d %s", inst.ID, inst.Name)
}

// diagramCell returns what inst was doing in cycle c.
func diagramCell(inst *Instruction, c uint64) string {
	stage := StageNone
	for _, s := range Stages() {
		record := inst.Stages[s]
		if record.Occupied && record.CycleEntered <= c {
			stage = s
		}
	}

	switch {
	case stage == StageNone:
		return ""
	case stage == StageWriteback:
		if inst.Stages[stage].CycleEntered == c {
			return stage.Short()
		}
		return ""
	case inst.Stages[stage].CycleEntered < c:
		return stage.Short() + "*"
	default:
		return stage.Short()
	}
}
