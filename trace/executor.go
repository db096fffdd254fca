package trace

import (
	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/timing/pipeline"
)

// ExitReason says why replay left a trace.
type ExitReason int

const (
	// ExitNone means the instruction ran and replay continues.
	ExitNone ExitReason = iota
	// ExitMarker means the trailing marker was reached.
	ExitMarker
	// ExitGuard means a flags or address guard did not match.
	ExitGuard
	// ExitModified means the instruction wrote instruction memory.
	ExitModified
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return "none"
	case ExitMarker:
		return "marker"
	case ExitGuard:
		return "guard"
	case ExitModified:
		return "modified"
	}
	return "unknown"
}

// Result is the outcome of replaying one trace instruction.
type Result struct {
	// Retired is set when the instruction ran; Retirement then holds its
	// effects.
	Retired    bool
	Retirement emu.Retirement

	Exit ExitReason
	// ExitPC is where interpretation resumes when Exit is not ExitNone.
	ExitPC uint16
}

// Executor replays trace instructions one at a time. Each instruction
// passes through the same decode table and EX, MEM and WB stages as the
// pipeline, with no overlap, so no hazards arise.
type Executor struct {
	computer *emu.Computer
	table    *pipeline.DecodeTable

	execute   *pipeline.ExecuteStage
	memory    *pipeline.MemoryStage
	writeback *pipeline.WritebackStage
}

// NewExecutor creates an executor over a computer.
func NewExecutor(computer *emu.Computer, table *pipeline.DecodeTable) *Executor {
	return &Executor{
		computer:  computer,
		table:     table,
		execute:   pipeline.NewExecuteStage(),
		memory:    pipeline.NewMemoryStage(computer.Bus),
		writeback: pipeline.NewWritebackStage(),
	}
}

// Execute checks the guards of ins and, if they hold, runs it.
func (x *Executor) Execute(ins Instruction) Result {
	c := x.computer

	if ins.GuardFail {
		return Result{Exit: ExitMarker, ExitPC: ins.PC}
	}
	if ins.HasGuardFlags && ins.GuardFlags != c.Flags {
		return Result{Exit: ExitGuard, ExitPC: ins.PC}
	}
	if ins.HasGuardAddress {
		target := c.Regs.ReadReg(insts.SelA(ins.Word)) + insts.Imm5(ins.Word)
		if target != ins.GuardAddress {
			return Result{Exit: ExitGuard, ExitPC: ins.PC}
		}
	}

	n, cf, z, v := c.Flags.Bits()
	ctl := x.table.Lookup(uint8(n), uint8(cf), uint8(z), uint8(v), uint8(insts.Opcode(ins.Word)))

	ex := x.execute.Step(pipeline.ExecuteInput{
		PC:           ins.PC + 2,
		Ctl:          pipeline.ExecuteControl(ctl),
		A:            c.Regs.ReadReg(insts.SelA(ins.Word)),
		B:            c.Regs.ReadReg(insts.SelB(ins.Word)),
		Ins:          ins.Word & 0x7ff,
		AssociatedPC: pipeline.TagOf(ins.PC),
	})

	rec := emu.Retirement{PC: ins.PC, Word: ins.Word}
	if pipeline.WritesFlags(ex.Ctl) {
		c.Flags = emu.Flags{N: ex.N == 1, C: ex.C == 1, Z: ex.Z == 1, V: ex.V == 1}
		rec.FlagsWritten = true
		rec.Flags = c.Flags
	}

	version := c.IMem.Version()
	mem := x.memory.Step(pipeline.MemoryInput{
		Y:            ex.Y,
		StoreOp:      ex.StoreOp,
		SelC:         ex.SelC,
		Ctl:          ex.Ctl,
		AssociatedPC: ex.AssociatedPC,
	})
	if pipeline.IsStore(ex.Ctl) {
		rec.Stored = true
		rec.StoreAddr = ex.Y
		rec.StoreValue = mem.StoreOp
	}

	wb := x.writeback.Step(mem)
	if wb.WBEN == 0 {
		c.Regs.WriteBytes(mem.SelC, wb.C, wb.ByteMask())
		rec.RegWritten = true
		rec.Reg = mem.SelC & 7
		rec.RegValue = c.Regs.ReadReg(mem.SelC)
	}

	result := Result{Retired: true, Retirement: rec}
	if c.IMem.Version() != version {
		result.Exit = ExitModified
		result.ExitPC = ins.PC + 1
	}
	return result
}
