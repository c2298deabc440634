// Package insts provides the instruction catalogue of the pipeline visualizer
// and a factory that produces batches of synthetic instructions.
//
// Instructions are descriptive only. Their names are shown to the user and
// their kinds feed hazard classification, but nothing is ever executed.
// The catalogue covers:
//   - Arithmetic: ADD, SUB, AND, OR with register operands
//   - Memory: LW, SW with base+offset addressing
//   - Control flow: BEQ, JUMP
//
// Usage:
//
//	factory := insts.NewFactory(rand.New(rand.NewSource(1)))
//	batch := factory.CreateBatch(5, 0) // instructions 1..5
//	fmt.Println(batch[0].Name, batch[1].Dependency)
package insts

import (
	"fmt"
	"strings"
)

// Op represents the operation of a catalogue instruction.
type Op uint8

// Catalogue opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpOR
	OpLW
	OpSW
	OpBEQ
	OpJUMP
)

var opNames = map[Op]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpAND:     "AND",
	OpOR:      "OR",
	OpLW:      "LW",
	OpSW:      "SW",
	OpBEQ:     "BEQ",
	OpJUMP:    "JUMP",
}

// String returns the mnemonic of the opcode.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// MarshalText encodes the opcode by mnemonic.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes a mnemonic produced by MarshalText.
func (o *Op) UnmarshalText(text []byte) error {
	for op, name := range opNames {
		if name == string(text) {
			*o = op
			return nil
		}
	}
	return fmt.Errorf("unknown opcode %q", text)
}

// Format represents the instruction class of a catalogue entry.
type Format uint8

// Instruction formats.
const (
	FormatUnknown    Format = iota
	FormatArithmetic        // Register-register arithmetic/logic
	FormatLoad              // Load word
	FormatStore             // Store word
	FormatBranchCond        // Branch if equal
	FormatJump              // Unconditional jump
)

// Template is one entry of the instruction catalogue.
type Template struct {
	Op     Op
	Format Format
	Text   string
}

// DefaultCatalogue lists the instruction templates new batches draw from.
var DefaultCatalogue = []Template{
	{Op: OpADD, Format: FormatArithmetic, Text: "ADD R1, R2, R3"},
	{Op: OpSUB, Format: FormatArithmetic, Text: "SUB R4, R1, R5"},
	{Op: OpAND, Format: FormatArithmetic, Text: "AND R6, R4, R7"},
	{Op: OpOR, Format: FormatArithmetic, Text: "OR R8, R6, R2"},
	{Op: OpLW, Format: FormatLoad, Text: "LW R9, 0(R1)"},
	{Op: OpSW, Format: FormatStore, Text: "SW R9, 4(R4)"},
	{Op: OpBEQ, Format: FormatBranchCond, Text: "BEQ R1, R2, LOOP"},
	{Op: OpJUMP, Format: FormatJump, Text: "JUMP END"},
}

// Instruction represents one synthetic instruction in program order.
type Instruction struct {
	// ID is unique within a run and increases with program order.
	ID uint64 `json:"id"`

	// Name is the display text, e.g. "ADD R1, R2, R3".
	Name string `json:"name"`

	Op     Op     `json:"op"`
	Format Format `json:"format"`

	// Dependency is the id of the earlier instruction this one depends on.
	// It is only meaningful when HasDependency is set.
	Dependency    uint64 `json:"dependency,omitempty"`
	HasDependency bool   `json:"has_dependency"`
}

// IsControlFlow reports whether the instruction is a branch or jump.
// The decision is made on the display name so that hand-built instructions
// behave like catalogue ones.
func (i *Instruction) IsControlFlow() bool {
	return strings.HasPrefix(i.Name, "BEQ") || strings.HasPrefix(i.Name, "JUMP")
}

// String returns a short label such as "#3 (LW R9, 0(R1))".
func (i *Instruction) String() string {
	return fmt.Sprintf("#%d (%s)", i.ID, i.Name)
}
