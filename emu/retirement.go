package emu

import "fmt"

// Retirement records the architectural effects of one completed
// instruction. The pipeline and the trace executor both produce these, so
// the two execution modes can be compared record by record.
type Retirement struct {
	PC   uint16
	Word uint16

	// RegWritten is set when the instruction wrote a register. RegValue is
	// the register's full value after the byte-gated write.
	RegWritten bool
	Reg        uint8
	RegValue   uint16

	// FlagsWritten is set when the instruction latched new flags.
	FlagsWritten bool
	Flags        Flags

	// Stored is set when the instruction issued a store on the bus.
	Stored     bool
	StoreAddr  uint16
	StoreValue uint16
}

// String renders the record on one line.
func (r Retirement) String() string {
	s := fmt.Sprintf("0x%04x: %04x", r.PC, r.Word)
	if r.RegWritten {
		s += fmt.Sprintf(" r%d=0x%04x", r.Reg, r.RegValue)
	}
	if r.FlagsWritten {
		s += " flags=" + r.Flags.String()
	}
	if r.Stored {
		s += fmt.Sprintf(" [0x%04x]=0x%04x", r.StoreAddr, r.StoreValue)
	}
	return s
}
