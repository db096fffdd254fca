// Package emu provides the Turtle16 architectural state and peripherals:
// registers, flags, memories, the memory-mapped I/O bus and a functional
// reference emulator.
package emu

import "fmt"

// NumRegisters is the number of general-purpose registers.
const NumRegisters = 8

// RegFile represents the Turtle16 register file.
// It contains eight 16-bit general-purpose registers read on two ports
// (A and B) and written on one port (C).
type RegFile struct {
	// R holds the general-purpose registers r0-r7.
	R [NumRegisters]uint16
}

// ByteMask selects which bytes of a register a write affects.
type ByteMask uint8

// Byte masks for register writes.
const (
	WriteLow  ByteMask = 1 << 0
	WriteHigh ByteMask = 1 << 1
	WriteBoth          = WriteLow | WriteHigh
)

// ReadReg reads a register value. Only the low three bits of the selector
// are significant.
func (r *RegFile) ReadReg(sel uint8) uint16 {
	return r.R[sel&7]
}

// WriteReg writes a full 16-bit value to a register.
func (r *RegFile) WriteReg(sel uint8, value uint16) {
	r.R[sel&7] = value
}

// WriteBytes writes the bytes of value selected by mask, leaving the other
// byte of the register unchanged.
func (r *RegFile) WriteBytes(sel uint8, value uint16, mask ByteMask) {
	old := r.R[sel&7]
	if mask&WriteHigh != 0 {
		old = (old & 0x00ff) | (value & 0xff00)
	}
	if mask&WriteLow != 0 {
		old = (old & 0xff00) | (value & 0x00ff)
	}
	r.R[sel&7] = old
}

// Flags holds the condition flags captured from the ALU.
type Flags struct {
	// N is the negative flag, bit 15 of the ALU result.
	N bool
	// C is the carry out of bit 15.
	C bool
	// Z is set when the ALU result is zero.
	Z bool
	// V is the signed overflow flag.
	V bool
}

func bit(b bool) uint {
	if b {
		return 1
	}
	return 0
}

// Bits returns the flags as (n, c, z, v) values of 0 or 1.
func (f Flags) Bits() (n, c, z, v uint) {
	return bit(f.N), bit(f.C), bit(f.Z), bit(f.V)
}

// String renders the flags in the guard annotation format.
func (f Flags) String() string {
	return fmt.Sprintf("{carryFlag: %d, equalFlag: %d, overflowFlag: %d, negativeFlag: %d}",
		bit(f.C), bit(f.Z), bit(f.V), bit(f.N))
}
