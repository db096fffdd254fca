package pipeline

import (
	"github.com/sarchlab/t16sim/emu"
)

// ResetCycles is the default number of clocks a reset holds IF at address
// zero.
const ResetCycles = 100

// Execution describes an instruction leaving EX. The trace recorder
// consumes these; every field is known once EX has run.
type Execution struct {
	PC   uint16
	Word uint16

	// Flags is the flags register after this cycle's update. For a
	// conditional branch it equals the flags the branch was decoded with.
	Flags emu.Flags

	// Jumped is set when the instruction redirected fetch. Target is the
	// address IF will fetch next.
	Jumped bool
	Target uint16
}

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of clock cycles, reset cycles included.
	Cycles uint64
	// Instructions is the number of retired instructions.
	Instructions uint64
	// Stalls is the number of cycles ID held an instruction back.
	Stalls uint64
	// Flushes is the number of taken jumps that squashed IF and ID.
	Flushes uint64
	// MachineClears counts stores to instruction memory that restarted
	// fetch behind the storing instruction.
	MachineClears uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// CPUOption is a functional option for configuring the CPU.
type CPUOption func(*CPU)

// WithRetireHook installs a callback for every retired instruction.
func WithRetireHook(fn func(r emu.Retirement)) CPUOption {
	return func(c *CPU) {
		c.onRetire = fn
	}
}

// WithExecuteHook installs a callback for every instruction leaving EX.
func WithExecuteHook(fn func(e Execution)) CPUOption {
	return func(c *CPU) {
		c.onExecute = fn
	}
}

// WithHazardControl replaces the hazard unit.
func WithHazardControl(h HazardControl) CPUOption {
	return func(c *CPU) {
		c.hazard = h
	}
}

// WithResetCycles sets the length of the reset sequence.
func WithResetCycles(n int) CPUOption {
	return func(c *CPU) {
		c.resetLength = n
	}
}

// CPU is the cycle-accurate Turtle16 pipeline.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
type CPU struct {
	computer *emu.Computer
	hazard   HazardControl
	table    *DecodeTable

	fetch     *FetchStage
	decode    *DecodeStage
	execute   *ExecuteStage
	memory    *MemoryStage
	writeback *WritebackStage

	outIF  IFOutput
	outID  IDOutput
	outEX  EXOutput
	outMEM MEMOutput
	outWB  WBOutput

	// Partial retirement records of the instructions in MEM and WB.
	recEX  emu.Retirement
	recMEM emu.Retirement

	resetLength     int
	resetCycles     int
	stalling        bool
	fetchSuppressed bool
	redirected      bool
	machineCleared  bool
	halted          bool

	onRetire  func(r emu.Retirement)
	onExecute func(e Execution)

	stats Statistics
}

// NewCPU creates a pipeline over a computer. The pipeline starts empty
// with IF at address zero; call Reset to run the reset sequence.
func NewCPU(computer *emu.Computer, opts ...CPUOption) *CPU {
	c := &CPU{
		computer:    computer,
		table:       NewDecodeTable(),
		resetLength: ResetCycles,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.hazard == nil {
		c.hazard = NewHazardUnit()
	}

	c.fetch = NewFetchStage(computer.IMem)
	c.decode = NewDecodeStage(&computer.Regs, c.table, c.hazard)
	c.execute = NewExecuteStage()
	c.memory = NewMemoryStage(computer.Bus)
	c.writeback = NewWritebackStage()
	c.clearSlots(0)

	return c
}

// Computer returns the computer the pipeline runs on.
func (c *CPU) Computer() *emu.Computer {
	return c.computer
}

// DecodeTable returns the decode table in use.
func (c *CPU) DecodeTable() *DecodeTable {
	return c.table
}

// PC returns the address IF fetches next.
func (c *CPU) PC() uint16 {
	return c.outIF.PC
}

// Flags returns the architectural flags.
func (c *CPU) Flags() emu.Flags {
	return c.computer.Flags
}

// Registers returns the register file.
func (c *CPU) Registers() *emu.RegFile {
	return &c.computer.Regs
}

// Cycles returns the number of clocks stepped so far.
func (c *CPU) Cycles() uint64 {
	return c.stats.Cycles
}

// IsStalling reports whether ID held its instruction back in the last
// cycle.
func (c *CPU) IsStalling() bool {
	return c.stalling
}

// Stats returns pipeline statistics.
func (c *CPU) Stats() Statistics {
	return c.stats
}

// IsHalted reports whether HLT has reached EX.
func (c *CPU) IsHalted() bool {
	return c.halted
}

// IsResetting reports whether the reset sequence is still running.
func (c *CPU) IsResetting() bool {
	return c.resetCycles > 0
}

// IF returns the IF/ID register.
func (c *CPU) IF() IFOutput { return c.outIF }

// ID returns the ID/EX register.
func (c *CPU) ID() IDOutput { return c.outID }

// EX returns the EX/MEM register.
func (c *CPU) EX() EXOutput { return c.outEX }

// MEM returns the MEM/WB register.
func (c *CPU) MEM() MEMOutput { return c.outMEM }

// WB returns the last write-back output.
func (c *CPU) WB() WBOutput { return c.outWB }

// JumpTarget returns the fetch address after a taken jump in the last
// cycle. The second result is false if the last cycle did not jump.
func (c *CPU) JumpTarget() (uint16, bool) {
	return c.outIF.PC, c.redirected
}

// MachineCleared reports whether the last cycle restarted fetch after a
// store to instruction memory.
func (c *CPU) MachineCleared() bool {
	return c.machineCleared
}

// SetFetchSuppressed stops or resumes fetching. While suppressed, IF
// holds its program counter and emits bubbles so the pipeline drains.
func (c *CPU) SetFetchSuppressed(suppressed bool) {
	c.fetchSuppressed = suppressed
}

// IsEmpty reports whether IF, ID, EX and MEM all hold bubbles.
func (c *CPU) IsEmpty() bool {
	return !c.outIF.AssociatedPC.Valid && c.outIF.Ins == 0 &&
		!c.outID.AssociatedPC.Valid && c.outID.CtlEX == NopControlWord &&
		!c.outEX.AssociatedPC.Valid && c.outEX.Ctl == NopControlWord &&
		!c.outMEM.AssociatedPC.Valid && c.outMEM.Ctl == NopControlWord
}

// FlushTo empties the pipeline and restarts fetch at pc. Architectural
// state is untouched.
func (c *CPU) FlushTo(pc uint16) {
	c.clearSlots(pc)
	c.halted = false
}

// Reset empties the pipeline and runs the reset sequence, after which IF
// fetches from address zero. Registers, flags and memory are untouched.
func (c *CPU) Reset() {
	c.clearSlots(0)
	c.halted = false
	c.resetCycles = c.resetLength
	for c.resetCycles > 0 {
		c.Step()
	}
}

func (c *CPU) clearSlots(pc uint16) {
	c.outIF = IFOutput{PC: pc}
	c.outID = bubbleID()
	c.outEX = bubbleEX()
	c.outMEM = bubbleMEM()
	c.outWB = bubbleWB()
	c.recEX = emu.Retirement{}
	c.recMEM = emu.Retirement{}
	c.fetch.Redirect(pc)
	c.redirected = false
	c.machineCleared = false
}

// Run steps the pipeline until it halts.
func (c *CPU) Run() {
	for !c.halted {
		c.Step()
	}
}

// RunCycles steps the pipeline for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *CPU) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !c.halted; i++ {
		c.Step()
	}
	return !c.halted
}

// Step advances the pipeline by one clock.
//
// Stages are evaluated in reverse order (WB, MEM, EX, ID, IF) so each one
// sees the pipeline registers latched at the end of the previous cycle.
// ID additionally sees the results EX and MEM produce this cycle, which is
// where forwarding takes its values from.
func (c *CPU) Step() {
	c.redirected = false
	c.machineCleared = false
	resetting := c.resetCycles > 0

	retired, didRetire := c.stepWriteback()
	mem := c.stepMemory()

	ex := c.execute.Step(ExecuteInput{
		PC:           c.outIF.PC,
		Ctl:          c.outID.CtlEX,
		A:            c.outID.A,
		B:            c.outID.B,
		Ins:          c.outID.Ins,
		AssociatedPC: c.outID.AssociatedPC,
	})

	n, cf, z, v := c.computer.Flags.Bits()
	id := c.decode.Step(DecodeInput{
		Ins:          c.outIF.Ins,
		AssociatedPC: c.outIF.AssociatedPC,
		YEX:          ex.Y,
		YMEM:         mem.Y,
		InsEX:        c.outID.Ins,
		CtlEX:        ex.Ctl,
		SelCMEM:      mem.SelC,
		CtlMEM:       mem.Ctl,
		J:            ex.J,
		N:            uint8(n),
		C:            uint8(cf),
		Z:            uint8(z),
		V:            uint8(v),
	})

	if WritesFlags(ex.Ctl) {
		c.computer.Flags = emu.Flags{N: ex.N == 1, C: ex.C == 1, Z: ex.Z == 1, V: ex.V == 1}
	}

	out := c.fetch.Step(FetchInput{
		Stall:      id.Stall == 1,
		Y:          ex.Y,
		J:          ex.J,
		JABS:       ex.JABS,
		Reset:      resetting,
		Suppressed: c.fetchSuppressed,
	})

	c.recEX = emu.Retirement{}
	if ex.AssociatedPC.Valid {
		c.recEX = emu.Retirement{
			PC:   ex.AssociatedPC.PC,
			Word: c.computer.IMem.Load(ex.AssociatedPC.PC),
		}
		if WritesFlags(ex.Ctl) {
			c.recEX.FlagsWritten = true
			c.recEX.Flags = c.computer.Flags
		}
	}

	c.outMEM = mem
	c.outEX = ex
	c.outID = id
	c.outIF = out
	c.redirected = ex.J == 0 && !resetting
	c.halted = ex.HLT == 0
	if resetting {
		c.resetCycles--
	}

	c.stats.Cycles++
	c.stalling = id.Stall == 1
	if c.stalling {
		c.stats.Stalls++
	}
	if c.redirected {
		c.stats.Flushes++
	}

	if didRetire {
		c.stats.Instructions++
		if c.onRetire != nil {
			c.onRetire(retired)
		}
	}
	if ex.AssociatedPC.Valid && c.onExecute != nil {
		c.onExecute(Execution{
			PC:     c.recEX.PC,
			Word:   c.recEX.Word,
			Flags:  c.computer.Flags,
			Jumped: c.redirected,
			Target: out.PC,
		})
	}
}

func (c *CPU) stepWriteback() (emu.Retirement, bool) {
	wb := c.writeback.Step(c.outMEM)
	c.outWB = wb

	sel := c.outMEM.SelC & 7
	if wb.WBEN == 0 {
		c.computer.Regs.WriteBytes(sel, wb.C, wb.ByteMask())
	}

	if !c.outMEM.AssociatedPC.Valid {
		return emu.Retirement{}, false
	}

	rec := c.recMEM
	if wb.WBEN == 0 {
		rec.RegWritten = true
		rec.Reg = sel
		rec.RegValue = c.computer.Regs.ReadReg(sel)
	}
	return rec, true
}

// stepMemory runs MEM. A store that changes instruction memory squashes
// the younger instructions in EX, ID and IF and restarts fetch right after
// the store, so they observe the new code.
func (c *CPU) stepMemory() MEMOutput {
	version := c.computer.IMem.Version()

	mem := c.memory.Step(MemoryInput{
		Y:            c.outEX.Y,
		StoreOp:      c.outEX.StoreOp,
		SelC:         c.outEX.SelC,
		Ctl:          c.outEX.Ctl,
		AssociatedPC: c.outEX.AssociatedPC,
	})

	c.recMEM = c.recEX
	if IsStore(c.outEX.Ctl) && c.outEX.AssociatedPC.Valid {
		c.recMEM.Stored = true
		c.recMEM.StoreAddr = c.outEX.Y
		c.recMEM.StoreValue = mem.StoreOp
	}

	if c.computer.IMem.Version() != version && c.outEX.AssociatedPC.Valid {
		pc := c.outEX.AssociatedPC.PC + 1
		c.outIF = IFOutput{PC: pc}
		c.outID = bubbleID()
		c.fetch.Redirect(pc)
		c.machineCleared = true
		c.stats.MachineClears++
	}

	return mem
}
