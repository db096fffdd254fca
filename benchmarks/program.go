package benchmarks

import (
	"fmt"

	"github.com/sarchlab/t16sim/insts"
)

// Builder assembles a Turtle16 program from encoded words, resolving
// branch labels when the program is finished.
type Builder struct {
	words  []uint16
	labels map[string]uint16
	fixups []fixup
}

type fixup struct {
	at     uint16
	label  string
	encode func(offset int) uint16
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{labels: make(map[string]uint16)}
}

// PC returns the address the next word is emitted at.
func (b *Builder) PC() uint16 {
	return uint16(len(b.words))
}

// Emit appends encoded words.
func (b *Builder) Emit(words ...uint16) *Builder {
	b.words = append(b.words, words...)
	return b
}

// Label names the current address.
func (b *Builder) Label(name string) *Builder {
	if _, ok := b.labels[name]; ok {
		panic(fmt.Sprintf("label %q defined twice", name))
	}
	b.labels[name] = b.PC()
	return b
}

// Branch emits a relative branch or JMP to a label, for example
// b.Branch(insts.BNE, "loop").
func (b *Builder) Branch(encode func(offset int) uint16, label string) *Builder {
	b.fixups = append(b.fixups, fixup{at: b.PC(), label: label, encode: encode})
	return b.Emit(insts.NOP())
}

// LoadImm sets reg to value with an LI, followed by an LUI when the value
// is not the sign extension of its low byte.
func (b *Builder) LoadImm(reg uint8, value uint16) *Builder {
	b.Emit(insts.LI(reg, int(value&0xff)))
	if uint16(int16(int8(value))) != value {
		b.Emit(insts.LUI(reg, int(value>>8)))
	}
	return b
}

// Pad emits NOPs up to addr.
func (b *Builder) Pad(addr uint16) *Builder {
	for b.PC() < addr {
		b.Emit(insts.NOP())
	}
	return b
}

// Halt emits two NOPs and a HLT, so the last real instruction has retired
// by the time HLT reaches EX.
func (b *Builder) Halt() *Builder {
	return b.Emit(insts.NOP(), insts.NOP(), insts.HLT())
}

// Words resolves the branches and returns the program. It panics on an
// undefined label.
func (b *Builder) Words() []uint16 {
	words := append([]uint16(nil), b.words...)
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			panic(fmt.Sprintf("undefined label %q", f.label))
		}
		words[f.at] = f.encode(insts.BranchOffset(f.at, target))
	}
	return words
}
