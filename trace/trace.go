package trace

import (
	"fmt"
	"strings"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
)

// Instruction is one entry of a trace: an instruction word at the address
// it was fetched from, plus the guards checked before it runs.
type Instruction struct {
	PC   uint16
	Word uint16

	// GuardAddress holds the target a computed jump must reach for the
	// recorded path to still apply.
	GuardAddress    uint16
	HasGuardAddress bool

	// GuardFlags holds the flags a conditional branch was decoded with.
	GuardFlags    emu.Flags
	HasGuardFlags bool

	// GuardFail exits the trace unconditionally.
	GuardFail bool

	// IsBreakpoint marks the entry and exit markers.
	IsBreakpoint bool
}

// String renders the entry in the trace listing format.
func (i Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%04x: %s", i.PC, insts.Disassemble(i.Word))
	if i.HasGuardAddress {
		fmt.Fprintf(&b, " ; guardAddress=0x%04x", i.GuardAddress)
	}
	if i.HasGuardFlags {
		fmt.Fprintf(&b, " ; guardFlags=%s", i.GuardFlags)
	}
	if i.GuardFail {
		b.WriteString(" ; guardFail=true")
	}
	if i.IsBreakpoint {
		b.WriteString(" ; isBreakpoint=true")
	}
	return b.String()
}

// Trace is an immutable recorded path. The first entry is the leading
// marker at the start PC and the last is the trailing marker at the PC
// where execution continues.
type Trace struct {
	instructions []Instruction
}

// NewTrace creates a trace from a list of entries. The list must hold at
// least the two markers.
func NewTrace(instructions []Instruction) (*Trace, error) {
	if len(instructions) < 2 {
		return nil, fmt.Errorf("trace needs a leading and a trailing marker, got %d entries",
			len(instructions))
	}
	return &Trace{instructions: append([]Instruction(nil), instructions...)}, nil
}

// PC returns the start address of the trace.
func (t *Trace) PC() uint16 {
	return t.instructions[0].PC
}

// ExitPC returns the address the trailing marker hands control to.
func (t *Trace) ExitPC() uint16 {
	return t.instructions[len(t.instructions)-1].PC
}

// Len returns the number of entries including both markers.
func (t *Trace) Len() int {
	return len(t.instructions)
}

// At returns the entry at index i.
func (t *Trace) At(i int) Instruction {
	return t.instructions[i]
}

// Instructions returns a copy of the entries.
func (t *Trace) Instructions() []Instruction {
	return append([]Instruction(nil), t.instructions...)
}

// String renders one entry per line.
func (t *Trace) String() string {
	lines := make([]string, len(t.instructions))
	for i, ins := range t.instructions {
		lines[i] = ins.String()
	}
	return strings.Join(lines, "\n")
}

// Equal reports whether two traces hold the same entries.
func (t *Trace) Equal(other *Trace) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.instructions) != len(other.instructions) {
		return false
	}
	for i := range t.instructions {
		if t.instructions[i] != other.instructions[i] {
			return false
		}
	}
	return true
}
