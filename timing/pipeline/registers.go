package pipeline

import "fmt"

// Tag is the optional program counter of the instruction occupying a
// pipeline slot. Bubbles carry no tag.
type Tag struct {
	PC    uint16
	Valid bool
}

// TagOf returns a valid tag for pc.
func TagOf(pc uint16) Tag {
	return Tag{PC: pc, Valid: true}
}

// String renders the tag as an address, or "-" for a bubble.
func (t Tag) String() string {
	if !t.Valid {
		return "-"
	}
	return fmt.Sprintf("0x%04x", t.PC)
}

// IFOutput is the IF/ID pipeline register.
type IFOutput struct {
	// Ins is the fetched instruction word. Zero is a NOP.
	Ins uint16

	// PC is the address IF will fetch from next.
	PC uint16

	AssociatedPC Tag
}

// IDOutput is the ID/EX pipeline register.
type IDOutput struct {
	// Stall is active-high. When set, IF replays the instruction in ID.
	Stall uint8

	// CtlEX is the 21-bit control word for EX and later stages.
	CtlEX uint32

	// A and B are the operand values after forwarding.
	A uint16
	B uint16

	// Ins keeps the low 11 bits of the instruction word: the destination
	// selector and immediates.
	Ins uint16

	AssociatedPC Tag
}

// EXOutput is the EX/MEM pipeline register.
type EXOutput struct {
	// Flags produced by the ALU, one bit each.
	N, C, Z, V uint8

	// J and HLT are active-low. JABS is 0 for an absolute jump.
	J    uint8
	JABS uint8
	HLT  uint8

	Y       uint16
	StoreOp uint16
	SelC    uint8
	Ctl     uint32

	AssociatedPC Tag
}

// MEMOutput is the MEM/WB pipeline register.
type MEMOutput struct {
	Y       uint16
	StoreOp uint16
	SelC    uint8
	Ctl     uint32

	AssociatedPC Tag
}

// WBOutput drives the register file write port.
type WBOutput struct {
	C uint16

	// WRL, WRH and WBEN are active-low.
	WRL  uint8
	WRH  uint8
	WBEN uint8

	AssociatedPC Tag
}

func bubbleID() IDOutput {
	return IDOutput{CtlEX: NopControlWord}
}

func bubbleEX() EXOutput {
	return EXOutput{J: 1, JABS: 1, HLT: 1, Ctl: NopControlWord}
}

func bubbleMEM() MEMOutput {
	return MEMOutput{Ctl: NopControlWord}
}

func bubbleWB() WBOutput {
	return WBOutput{WRL: 1, WRH: 1, WBEN: 1}
}
