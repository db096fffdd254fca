package pipeline

import "fmt"

// HazardInput is everything the hazard unit looks at in one cycle.
type HazardInput struct {
	// Ins is the full instruction word in ID.
	Ins uint16

	// InsEX and CtlEX describe the instruction now in EX.
	InsEX uint16
	CtlEX uint32

	// SelCMEM and CtlMEM describe the instruction now in MEM.
	SelCMEM uint8
	CtlMEM  uint32

	// J is the active-low jump signal produced by EX this cycle.
	J uint8

	LeftOperandIsUnused  uint8
	RightOperandIsUnused uint8
}

// HazardOutput holds the forwarding selects, the stall and the flush. The
// forwarding selects and Flush are active-low; Stall is active-high.
type HazardOutput struct {
	Stall uint8
	Flush uint8

	FwdRegFileToA uint8
	FwdEXToA      uint8
	FwdMEMToA     uint8

	FwdRegFileToB uint8
	FwdEXToB      uint8
	FwdMEMToB     uint8
}

// HazardControl resolves data, flags and control hazards for ID.
type HazardControl interface {
	Step(in HazardInput) HazardOutput
}

// ForwardSource is the resolved source of one operand.
type ForwardSource int

const (
	// ForwardRegFile reads the operand from the register file.
	ForwardRegFile ForwardSource = iota
	// ForwardFromEX takes the ALU result leaving EX this cycle.
	ForwardFromEX
	// ForwardFromMEM takes the ALU result leaving MEM this cycle.
	ForwardFromMEM
)

// HazardUnit is the combinational hazard logic of the pipeline.
//
// A producer in EX takes priority over one in MEM. A producer whose result
// comes from the store operand (loads, LI, LUI, JALR) cannot be forwarded
// and stalls ID instead. Flag readers stall while a flag writer is in EX.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// Step evaluates the hazard logic.
func (h *HazardUnit) Step(in HazardInput) HazardOutput {
	selA := uint8(in.Ins>>5) & 7
	selB := uint8(in.Ins>>2) & 7

	srcA, stallA := h.resolve(in, selA, in.LeftOperandIsUnused == 0)
	srcB, stallB := h.resolve(in, selB, in.RightOperandIsUnused == 0)

	stall := stallA || stallB || h.flagsHazard(in)

	out := HazardOutput{
		Flush: 1,
	}
	out.FwdRegFileToA, out.FwdEXToA, out.FwdMEMToA = selects(srcA)
	out.FwdRegFileToB, out.FwdEXToB, out.FwdMEMToB = selects(srcB)

	if stall {
		out.Stall = 1
		out.Flush = 0
	}
	if in.J == 0 {
		out.Flush = 0
	}

	return out
}

func (h *HazardUnit) resolve(in HazardInput, sel uint8, used bool) (ForwardSource, bool) {
	if !used {
		return ForwardRegFile, false
	}

	selCEX := uint8(in.InsEX>>8) & 7
	if WritesRegister(in.CtlEX) && selCEX == sel {
		if WritesBackALU(in.CtlEX) {
			return ForwardFromEX, false
		}
		return ForwardRegFile, true
	}

	if WritesRegister(in.CtlMEM) && in.SelCMEM&7 == sel {
		if WritesBackALU(in.CtlMEM) {
			return ForwardFromMEM, false
		}
		return ForwardRegFile, true
	}

	return ForwardRegFile, false
}

// flagsHazard covers opcodes 24 to 31: the conditional branches, ADC and
// SBC, which consume the flags during decode.
func (h *HazardUnit) flagsHazard(in HazardInput) bool {
	readsFlags := in.Ins>>14&1 == 1 && in.Ins>>15&1 == 1
	return readsFlags && WritesFlags(in.CtlEX)
}

func selects(src ForwardSource) (regFile, ex, mem uint8) {
	regFile, ex, mem = 1, 1, 1
	switch src {
	case ForwardFromEX:
		ex = 0
	case ForwardFromMEM:
		mem = 0
	default:
		regFile = 0
	}
	return regFile, ex, mem
}

// CheckedHazardUnit wraps a HazardControl and panics if it ever asserts
// more or fewer than one forwarding select for an operand.
type CheckedHazardUnit struct {
	inner HazardControl
}

// NewCheckedHazardUnit wraps inner.
func NewCheckedHazardUnit(inner HazardControl) *CheckedHazardUnit {
	return &CheckedHazardUnit{inner: inner}
}

// Step evaluates the wrapped unit and validates its selects.
func (c *CheckedHazardUnit) Step(in HazardInput) HazardOutput {
	out := c.inner.Step(in)
	if !exactlyOneAsserted(out.FwdRegFileToA, out.FwdEXToA, out.FwdMEMToA) ||
		!exactlyOneAsserted(out.FwdRegFileToB, out.FwdEXToB, out.FwdMEMToB) {
		panic(fmt.Sprintf("illegal hazard resolution: %+v", out))
	}
	return out
}

func exactlyOneAsserted(signals ...uint8) bool {
	n := 0
	for _, s := range signals {
		if s == 0 {
			n++
		}
	}
	return n == 1
}
