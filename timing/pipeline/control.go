// Package pipeline provides the cycle-accurate model of the Turtle16
// five-stage pipeline: the decode table, the IF/ID/EX/MEM/WB stages, the
// hazard control unit and the CPU that wires them together once per clock.
package pipeline

// Control word bit positions. Signals marked active-low are asserted when
// the bit is 0. Multi-bit fields hold plain values.
const (
	CtlHLT                  = 0  // active-low
	CtlSelStoreOp           = 1  // 2-bit field: store operand source
	CtlSelRightOp           = 3  // 2-bit field: right ALU operand source
	CtlFI                   = 5  // active-low: flags in
	CtlC0                   = 6  // ALU carry in
	CtlI0                   = 7  // 3-bit field I2 I1 I0: ALU function
	CtlRS0                  = 10 // 2-bit field RS1 RS0: ALU operand mux
	CtlJ                    = 12 // active-low: jump
	CtlJABS                 = 13 // 0 selects an absolute jump, 1 a relative one
	CtlMemLoad              = 14 // active-low
	CtlMemStore             = 15 // active-low
	CtlAssertStoreOp        = 16 // active-low
	CtlWriteBackSrc         = 17 // 0 selects the ALU result, 1 the store operand
	CtlWRL                  = 18 // active-low: write low byte
	CtlWRH                  = 19 // active-low: write high byte
	CtlWBEN                 = 20 // active-low: write-back enable
	CtlLeftOperandIsUnused  = 21 // ID only
	CtlRightOperandIsUnused = 22 // ID only
)

// Widths of the control words seen by ID and by the later stages.
const (
	ControlWordWidthID = 23
	ControlWordWidth   = 21
)

// NOP control words. Every active-low signal is inactive.
const (
	NopControlWordID uint32 = 1<<ControlWordWidthID - 1
	NopControlWord   uint32 = 1<<ControlWordWidth - 1
)

// Selector values for the right operand field.
const (
	RightOpRegister  = 0
	RightOpImm5      = 1
	RightOpSplitImm5 = 2
	RightOpImm11     = 3
)

// Selector values for the store operand field.
const (
	StoreOpRegister = 0
	StoreOpPC       = 1
	StoreOpImm8     = 2
	StoreOpImm8High = 3
)

func ctlBit(ctl uint32, pos uint) uint8 {
	return uint8(ctl>>pos) & 1
}

func ctlField(ctl uint32, pos, width uint) uint32 {
	return (ctl >> pos) & (1<<width - 1)
}

// ExecuteControl narrows an ID control word to the bits EX and later
// stages see.
func ExecuteControl(ctlID uint32) uint32 {
	return ctlID & NopControlWord
}

// WritesRegister reports whether the control word enables write-back.
func WritesRegister(ctl uint32) bool {
	return ctlBit(ctl, CtlWBEN) == 0
}

// WritesFlags reports whether the control word latches the ALU flags.
func WritesFlags(ctl uint32) bool {
	return ctlBit(ctl, CtlFI) == 0
}

// WritesBackALU reports whether the write-back source is the ALU result.
func WritesBackALU(ctl uint32) bool {
	return ctlBit(ctl, CtlWriteBackSrc) == 0
}

// IsStore reports whether the control word stores to memory.
func IsStore(ctl uint32) bool {
	return ctlBit(ctl, CtlMemStore) == 0
}
