package pipeline

import (
	"fmt"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
)

// InstructionPort is the read side of instruction memory used by IF.
type InstructionPort interface {
	Load(addr uint16) uint16
}

// DataPort is the memory bus used by MEM.
type DataPort interface {
	Load(addr uint16) uint16
	Store(value, addr uint16)
}

// RegisterReader is the register file read port used by ID.
type RegisterReader interface {
	ReadReg(sel uint8) uint16
}

// FetchInput carries the signals IF samples each cycle.
type FetchInput struct {
	// Stall replays the instruction currently held in IF/ID.
	Stall bool

	// Y, J and JABS come from EX. J is active-low.
	Y    uint16
	J    uint8
	JABS uint8

	// Reset forces the program counter to zero.
	Reset bool

	// Suppressed stops new fetches without moving the program counter.
	Suppressed bool
}

// FetchStage handles instruction fetch. It keeps the program counter and
// the last instruction it emitted.
type FetchStage struct {
	imem InstructionPort

	prevPC  uint16
	prevIns uint16
	prevTag Tag
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(imem InstructionPort) *FetchStage {
	return &FetchStage{imem: imem}
}

// PC returns the address of the next fetch.
func (s *FetchStage) PC() uint16 {
	return s.prevPC
}

// Redirect moves the program counter and forgets the held instruction.
func (s *FetchStage) Redirect(pc uint16) {
	s.prevPC = pc
	s.prevIns = 0
	s.prevTag = Tag{}
}

// Step evaluates IF for one cycle.
func (s *FetchStage) Step(in FetchInput) IFOutput {
	var out IFOutput

	switch {
	case in.Reset:
		out = IFOutput{PC: 0}
	case in.J == 0:
		pc := in.Y
		if in.JABS != 0 {
			pc = s.prevPC + in.Y
		}
		out = IFOutput{PC: pc}
	case in.Stall:
		out = IFOutput{Ins: s.prevIns, PC: s.prevPC, AssociatedPC: s.prevTag}
	case in.Suppressed:
		out = IFOutput{PC: s.prevPC}
	default:
		out = IFOutput{
			Ins:          s.imem.Load(s.prevPC),
			PC:           s.prevPC + 1,
			AssociatedPC: TagOf(s.prevPC),
		}
	}

	s.prevPC = out.PC
	s.prevIns = out.Ins
	s.prevTag = out.AssociatedPC
	return out
}

// DecodeInput carries the signals ID samples each cycle.
type DecodeInput struct {
	Ins          uint16
	AssociatedPC Tag

	// Forwarding sources.
	YEX  uint16
	YMEM uint16

	// State of the instructions in EX and MEM, for hazard detection.
	InsEX   uint16
	CtlEX   uint32
	SelCMEM uint8
	CtlMEM  uint32
	J       uint8

	// Flags as latched before this cycle.
	N, C, Z, V uint8
}

// DecodeStage handles decode, register read and hazard resolution.
type DecodeStage struct {
	regs   RegisterReader
	table  *DecodeTable
	hazard HazardControl
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regs RegisterReader, table *DecodeTable, hazard HazardControl) *DecodeStage {
	return &DecodeStage{
		regs:   regs,
		table:  table,
		hazard: hazard,
	}
}

// Step evaluates ID for one cycle.
func (s *DecodeStage) Step(in DecodeInput) IDOutput {
	opcode := uint8(in.Ins >> insts.OpcodeShift)
	ctlID := s.table.Lookup(in.N, in.C, in.Z, in.V, opcode)

	hz := s.hazard.Step(HazardInput{
		Ins:                  in.Ins,
		InsEX:                in.InsEX,
		CtlEX:                in.CtlEX,
		SelCMEM:              in.SelCMEM,
		CtlMEM:               in.CtlMEM,
		J:                    in.J,
		LeftOperandIsUnused:  ctlBit(ctlID, CtlLeftOperandIsUnused),
		RightOperandIsUnused: ctlBit(ctlID, CtlRightOperandIsUnused),
	})

	a := forward(hz.FwdRegFileToA, hz.FwdEXToA, hz.FwdMEMToA,
		s.regs.ReadReg(insts.SelA(in.Ins)), in.YEX, in.YMEM)
	b := forward(hz.FwdRegFileToB, hz.FwdEXToB, hz.FwdMEMToB,
		s.regs.ReadReg(insts.SelB(in.Ins)), in.YEX, in.YMEM)

	out := IDOutput{
		Stall:        hz.Stall,
		CtlEX:        ExecuteControl(ctlID),
		A:            a,
		B:            b,
		Ins:          in.Ins & 0x7ff,
		AssociatedPC: in.AssociatedPC,
	}
	if hz.Flush == 0 {
		out.CtlEX = NopControlWord
		out.AssociatedPC = Tag{}
	}
	return out
}

func forward(regFile, ex, mem uint8, fromRegFile, fromEX, fromMEM uint16) uint16 {
	switch {
	case regFile == 0 && ex != 0 && mem != 0:
		return fromRegFile
	case regFile != 0 && ex == 0 && mem != 0:
		return fromEX
	case regFile != 0 && ex != 0 && mem == 0:
		return fromMEM
	}
	panic(fmt.Sprintf("illegal hazard resolution: regfile=%d ex=%d mem=%d", regFile, ex, mem))
}

// ExecuteInput carries the ID/EX register and the PC sampled by EX.
type ExecuteInput struct {
	// PC is the IF program counter of the previous cycle. JALR links it.
	PC uint16

	Ctl          uint32
	A            uint16
	B            uint16
	Ins          uint16
	AssociatedPC Tag
}

// ExecuteStage drives the ALU.
type ExecuteStage struct{}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{}
}

// Step evaluates EX for one cycle.
func (s *ExecuteStage) Step(in ExecuteInput) EXOutput {
	ctl := in.Ctl

	alu := emu.IDT7381(emu.ALUInput{
		A:  in.A,
		B:  rightOperand(ctl, in.B, in.Ins),
		C0: ctlBit(ctl, CtlC0) == 1,
		I:  uint8(ctlField(ctl, CtlI0, 3)),
		RS: uint8(ctlField(ctl, CtlRS0, 2)),
	})

	return EXOutput{
		N:            uint8(alu.F >> 15),
		C:            bit(alu.C16),
		Z:            bit(alu.Z),
		V:            bit(alu.OVF),
		J:            ctlBit(ctl, CtlJ),
		JABS:         ctlBit(ctl, CtlJABS),
		HLT:          ctlBit(ctl, CtlHLT),
		Y:            alu.F,
		StoreOp:      storeOperand(ctl, in.B, in.PC, in.Ins),
		SelC:         insts.SelC(in.Ins),
		Ctl:          ctl,
		AssociatedPC: in.AssociatedPC,
	}
}

func rightOperand(ctl uint32, b, ins uint16) uint16 {
	switch ctlField(ctl, CtlSelRightOp, 2) {
	case RightOpRegister:
		return b
	case RightOpImm5:
		return insts.Imm5(ins)
	case RightOpSplitImm5:
		return insts.SplitImm5(ins)
	default:
		return insts.Imm11(ins)
	}
}

func storeOperand(ctl uint32, b, pc, ins uint16) uint16 {
	switch ctlField(ctl, CtlSelStoreOp, 2) {
	case StoreOpRegister:
		return b
	case StoreOpPC:
		return pc
	case StoreOpImm8:
		return insts.Imm8(ins)
	default:
		return (ins & 0xff) << 8
	}
}

func bit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// MemoryInput carries the EX/MEM register into MEM.
type MemoryInput struct {
	// RDY is active-low. MEM performs no access while it is high.
	RDY uint8

	Y            uint16
	StoreOp      uint16
	SelC         uint8
	Ctl          uint32
	AssociatedPC Tag
}

// MemoryStage performs loads and stores over the data bus.
type MemoryStage struct {
	bus DataPort
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(bus DataPort) *MemoryStage {
	return &MemoryStage{bus: bus}
}

// Step evaluates MEM for one cycle.
func (s *MemoryStage) Step(in MemoryInput) MEMOutput {
	var storeOp uint16
	if in.RDY == 0 {
		isLoad := ctlBit(in.Ctl, CtlMemLoad) == 0
		isStore := ctlBit(in.Ctl, CtlMemStore) == 0
		isAssertingStoreOp := ctlBit(in.Ctl, CtlAssertStoreOp) == 0

		if isAssertingStoreOp {
			storeOp = in.StoreOp
		}
		if isStore {
			s.bus.Store(storeOp, in.Y)
		}
		if isLoad {
			if isAssertingStoreOp {
				panic("load must not assert the store operand")
			}
			storeOp = s.bus.Load(in.Y)
		}
	}

	return MEMOutput{
		Y:            in.Y,
		StoreOp:      storeOp,
		SelC:         in.SelC,
		Ctl:          in.Ctl,
		AssociatedPC: in.AssociatedPC,
	}
}

// WritebackStage selects the value written to the register file.
type WritebackStage struct{}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage() *WritebackStage {
	return &WritebackStage{}
}

// Step evaluates WB for one cycle.
func (s *WritebackStage) Step(in MEMOutput) WBOutput {
	c := in.Y
	if !WritesBackALU(in.Ctl) {
		c = in.StoreOp
	}
	return WBOutput{
		C:            c,
		WRL:          ctlBit(in.Ctl, CtlWRL),
		WRH:          ctlBit(in.Ctl, CtlWRH),
		WBEN:         ctlBit(in.Ctl, CtlWBEN),
		AssociatedPC: in.AssociatedPC,
	}
}

// ByteMask converts the active-low byte enables to a register write mask.
func (o WBOutput) ByteMask() emu.ByteMask {
	var mask emu.ByteMask
	if o.WRL == 0 {
		mask |= emu.WriteLow
	}
	if o.WRH == 0 {
		mask |= emu.WriteHigh
	}
	return mask
}
