package emu

import (
	"fmt"

	"github.com/sarchlab/t16sim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true once HLT has executed.
	Halted bool

	// Err is set if the instruction limit was reached.
	Err error
}

// aluOp describes how an ALU instruction drives the IDT7381.
type aluOp struct {
	fn        uint8
	c0        bool
	useImm    bool
	setsFlags bool
	writes    bool
}

var aluOps = map[insts.Op]aluOp{
	insts.OpCMP:  {fn: ALUSubS, c0: true, setsFlags: true},
	insts.OpADD:  {fn: ALUAdd, setsFlags: true, writes: true},
	insts.OpSUB:  {fn: ALUSubS, c0: true, setsFlags: true, writes: true},
	insts.OpAND:  {fn: ALUAnd, setsFlags: true, writes: true},
	insts.OpOR:   {fn: ALUOr, setsFlags: true, writes: true},
	insts.OpXOR:  {fn: ALUXor, setsFlags: true, writes: true},
	insts.OpCMPI: {fn: ALUSubS, c0: true, useImm: true, setsFlags: true},
	insts.OpADDI: {fn: ALUAdd, useImm: true, setsFlags: true, writes: true},
	insts.OpSUBI: {fn: ALUSubS, c0: true, useImm: true, setsFlags: true, writes: true},
	insts.OpANDI: {fn: ALUAnd, useImm: true, setsFlags: true, writes: true},
	insts.OpORI:  {fn: ALUOr, useImm: true, setsFlags: true, writes: true},
	insts.OpXORI: {fn: ALUXor, useImm: true, setsFlags: true, writes: true},
}

// Emulator executes Turtle16 instructions functionally, one instruction
// per step, with no pipeline. It is the reference the pipelined model is
// validated against.
type Emulator struct {
	computer *Computer
	decoder  *insts.Decoder
	pc       uint16
	halted   bool

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithEntryPoint sets the initial program counter.
func WithEntryPoint(pc uint16) EmulatorOption {
	return func(e *Emulator) {
		e.pc = pc
	}
}

// NewEmulator creates a functional emulator over a computer.
func NewEmulator(computer *Computer, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		computer: computer,
		decoder:  insts.NewDecoder(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// PC returns the address of the next instruction.
func (e *Emulator) PC() uint16 {
	return e.pc
}

// Halted reports whether HLT has executed.
func (e *Emulator) Halted() bool {
	return e.halted
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.halted {
		return StepResult{Halted: true}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{
			Err: fmt.Errorf("max instructions reached"),
		}
	}

	inst := e.decoder.Decode(e.computer.IMem.Load(e.pc))
	e.execute(inst)
	e.instructionCount++

	return StepResult{Halted: e.halted}
}

// Run executes instructions until HLT or an error.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Halted {
			return nil
		}
		if result.Err != nil {
			return result.Err
		}
	}
}

func (e *Emulator) execute(inst *insts.Instruction) {
	c := e.computer
	a := c.Regs.ReadReg(inst.Ra)
	b := c.Regs.ReadReg(inst.Rb)
	next := e.pc + 1
	relative := e.pc + 2 + uint16(inst.Imm)

	switch inst.Op {
	case insts.OpHLT:
		e.halted = true
		return
	case insts.OpLOAD:
		c.Regs.WriteReg(inst.Rd, c.Bus.Load(a+uint16(inst.Imm)))
	case insts.OpSTORE:
		c.Bus.Store(b, a+uint16(inst.Imm))
	case insts.OpLI:
		c.Regs.WriteReg(inst.Rd, uint16(inst.Imm))
	case insts.OpLUI:
		c.Regs.WriteBytes(inst.Rd, uint16(inst.Imm)<<8, WriteHigh)
	case insts.OpNOT:
		c.Regs.WriteReg(inst.Rd, ^a)
	case insts.OpJMP:
		next = relative
	case insts.OpJR:
		next = a + uint16(inst.Imm)
	case insts.OpJALR:
		next = a + uint16(inst.Imm)
		c.Regs.WriteReg(inst.Rd, e.pc+2)
	case insts.OpADC:
		e.alu(inst, a, b, aluOp{fn: ALUAdd, c0: c.Flags.C, setsFlags: true, writes: true})
	case insts.OpSBC:
		e.alu(inst, a, b, aluOp{fn: ALUSubS, c0: !c.Flags.C, setsFlags: true, writes: true})
	default:
		if inst.Op.IsConditionalBranch() {
			if BranchTaken(inst.Op, c.Flags) {
				next = relative
			}
		} else if op, ok := aluOps[inst.Op]; ok {
			if op.useImm {
				b = uint16(inst.Imm)
			}
			e.alu(inst, a, b, op)
		}
	}

	e.pc = next
}

func (e *Emulator) alu(inst *insts.Instruction, a, b uint16, op aluOp) {
	out := IDT7381(ALUInput{A: a, B: b, C0: op.c0, I: op.fn, RS: 0b11})
	if op.setsFlags {
		e.computer.Flags = Flags{N: out.F&0x8000 != 0, C: out.C16, Z: out.Z, V: out.OVF}
	}
	if op.writes {
		e.computer.Regs.WriteReg(inst.Rd, out.F)
	}
}

// BranchTaken evaluates the condition of a conditional branch opcode.
func BranchTaken(op insts.Op, f Flags) bool {
	switch op {
	case insts.OpBEQ:
		return f.Z
	case insts.OpBNE:
		return !f.Z
	case insts.OpBLT:
		return f.N != f.V
	case insts.OpBGT:
		return !f.Z && f.N == f.V
	case insts.OpBLTU:
		return !f.C
	case insts.OpBGTU:
		return f.C && !f.Z
	}
	return false
}
