// Package vm provides the tracing interpreting VM for Turtle16.
//
// The VM drives the cycle-accurate pipeline one clock per step. It profiles
// retired instructions, records a guarded trace from hot jump targets and
// replays cached traces one instruction per step until a guard fails or the
// trace ends. Any write to instruction memory drops every cached trace.
//
// Usage:
//
//	v, err := vm.NewVM(vm.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	v.LoadProgram(words, 0)
//	v.Reset()
//	err = v.RunUntilHalted(1_000_000)
package vm

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/timing/pipeline"
	"github.com/sarchlab/t16sim/trace"
)

// ErrStepLimit is returned when a run ends before the program halts.
var ErrStepLimit = errors.New("step limit reached before halt")

// State is the execution mode of the VM.
type State int

const (
	// Interpreting runs the pipeline cycle by cycle.
	Interpreting State = iota
	// Recording runs the pipeline while appending executed instructions
	// to a trace.
	Recording
	// Draining runs the pipeline with fetch held until it is empty, before
	// replay begins.
	Draining
	// Replaying executes one cached trace instruction per step.
	Replaying
)

func (s State) String() string {
	switch s {
	case Interpreting:
		return "Interpreting"
	case Recording:
		return "Recording"
	case Draining:
		return "Draining"
	case Replaying:
		return "Replaying"
	}
	return "Unknown"
}

// Snapshot is the architectural state visible after a step.
type Snapshot struct {
	Registers    [8]uint16
	Flags        emu.Flags
	PC           uint16
	MemoryDigest uint64
	SerialOutput string
}

// Option is a functional option for configuring the VM.
type Option func(*VM)

// WithName sets the name reported to hooks.
func WithName(name string) Option {
	return func(v *VM) {
		v.name = name
	}
}

// WithComputer runs the VM on an existing computer instead of a new one.
func WithComputer(c *emu.Computer) Option {
	return func(v *VM) {
		v.computer = c
	}
}

// WithRetireHook installs a callback for every retired instruction, from
// the pipeline or from replay.
func WithRetireHook(fn func(r emu.Retirement)) Option {
	return func(v *VM) {
		v.onRetire = fn
	}
}

// VM is the tracing interpreting virtual machine.
type VM struct {
	*sim.HookableBase

	name     string
	config   *Config
	computer *emu.Computer
	cpu      *pipeline.CPU

	profiler *trace.Profiler
	cache    *trace.Cache
	executor *trace.Executor
	recorder *trace.Recorder

	state State
	// pending is the trace to replay once draining completes.
	pending *trace.Trace
	// current and index locate the next trace instruction to replay.
	current *trace.Trace
	index   int
	// executing is set while the executor runs, so that an instruction
	// memory write it causes is left for the replay exit to handle.
	executing bool

	steps    uint64
	replayed uint64

	onRetire       func(r emu.Retirement)
	onSerialOutput func(b byte)
}

// NewVM creates a VM from a configuration.
func NewVM(config *Config, opts ...Option) (*VM, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	v := &VM{
		HookableBase: sim.NewHookableBase(),
		name:         "VM",
		config:       config.Clone(),
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.computer == nil {
		v.computer = emu.NewComputer(config.IO)
	}

	var hazard pipeline.HazardControl = pipeline.NewHazardUnit()
	if config.CheckHazards {
		hazard = pipeline.NewCheckedHazardUnit(hazard)
	}

	v.cpu = pipeline.NewCPU(v.computer,
		pipeline.WithHazardControl(hazard),
		pipeline.WithResetCycles(config.ResetCycles),
		pipeline.WithRetireHook(v.retiredByPipeline),
		pipeline.WithExecuteHook(v.executed),
	)
	v.profiler = trace.NewProfiler(config.HotThreshold)
	v.cache = trace.NewCache(config.CacheConfig())
	v.executor = trace.NewExecutor(v.computer, v.cpu.DecodeTable())

	v.computer.IMem.OnWrite(v.instructionMemoryWritten)
	v.computer.Serial.SetOutputHandler(func(b byte) {
		if v.onSerialOutput != nil {
			v.onSerialOutput(b)
		}
	})

	return v, nil
}

// Name returns the name of the VM.
func (v *VM) Name() string {
	return v.name
}

// Config returns a copy of the configuration.
func (v *VM) Config() *Config {
	return v.config.Clone()
}

// OnSerialOutput installs a callback invoked for every byte the program
// writes to the serial port.
func (v *VM) OnSerialOutput(fn func(b byte)) {
	v.onSerialOutput = fn
}

// AllowsRunningTraces reports whether cached traces are replayed.
func (v *VM) AllowsRunningTraces() bool {
	return v.config.AllowsRunningTraces
}

// SetAllowsRunningTraces enables or disables replay. Disabling takes
// effect at the next trace boundary.
func (v *VM) SetAllowsRunningTraces(allow bool) {
	v.config.AllowsRunningTraces = allow
}

// CPU returns the pipeline.
func (v *VM) CPU() *pipeline.CPU {
	return v.cpu
}

// Computer returns the machine state.
func (v *VM) Computer() *emu.Computer {
	return v.computer
}

// Profiler returns the retirement profiler.
func (v *VM) Profiler() *trace.Profiler {
	return v.profiler
}

// TraceCache returns the trace cache.
func (v *VM) TraceCache() *trace.Cache {
	return v.cache
}

// State returns the current execution mode.
func (v *VM) State() State {
	return v.state
}

// StepsExecuted returns the number of Step calls that did work.
func (v *VM) StepsExecuted() uint64 {
	return v.steps
}

// Cycles returns the number of pipeline clocks, reset included.
func (v *VM) Cycles() uint64 {
	return v.cpu.Cycles()
}

// ReplayedInstructions returns the number of instructions retired by
// replay.
func (v *VM) ReplayedInstructions() uint64 {
	return v.replayed
}

// PC returns the address of the next instruction to issue.
func (v *VM) PC() uint16 {
	if v.state == Replaying {
		return v.current.At(v.index).PC
	}
	return v.cpu.PC()
}

// IsHalted reports whether the program has executed HLT.
func (v *VM) IsHalted() bool {
	return v.state != Replaying && v.cpu.IsHalted()
}

// Snapshot captures the architectural state.
func (v *VM) Snapshot() Snapshot {
	c := v.computer
	return Snapshot{
		Registers:    c.Regs.R,
		Flags:        c.Flags,
		PC:           v.PC(),
		MemoryDigest: digest(c.Memory.Words()),
		SerialOutput: string(c.Serial.Output()),
	}
}

func digest(words []uint16) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 2*len(words))
	for i, w := range words {
		buf[2*i] = byte(w >> 8)
		buf[2*i+1] = byte(w)
	}
	_, _ = h.Write(buf)
	return h.Sum64()
}

// LoadProgram writes words into instruction memory at addr. Like any
// instruction memory write, this drops all cached traces.
func (v *VM) LoadProgram(words []uint16, addr uint16) {
	v.computer.LoadProgram(words, addr)
}

// Reset clears the architectural state, the profiler and the trace cache
// and runs the pipeline reset sequence. Instruction memory is kept.
func (v *VM) Reset() {
	v.abortRecording("reset")
	v.computer.ResetState()
	v.profiler.Reset()
	v.cache.Clear()
	v.leaveTrace()
	v.state = Interpreting
	v.steps = 0
	v.replayed = 0
	v.cpu.SetFetchSuppressed(false)
	v.cpu.Reset()
}

// Run steps until the program halts.
func (v *VM) Run() {
	for !v.IsHalted() {
		v.Step()
	}
}

// RunUntilHalted steps until the program halts or maxSteps steps have run,
// in which case it returns ErrStepLimit.
func (v *VM) RunUntilHalted(maxSteps uint64) error {
	for i := uint64(0); i < maxSteps; i++ {
		if v.IsHalted() {
			return nil
		}
		v.Step()
	}
	if v.IsHalted() {
		return nil
	}
	return ErrStepLimit
}

// RunContext steps until the program halts or ctx is done.
func (v *VM) RunContext(ctx context.Context) error {
	for !v.IsHalted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.Step()
	}
	return nil
}

// Step advances the VM by one pipeline clock or one replayed trace
// instruction.
func (v *VM) Step() {
	if v.IsHalted() {
		return
	}
	v.steps++

	switch v.state {
	case Interpreting, Recording:
		v.cpu.Step()
		if t, jumped := v.cpu.JumpTarget(); jumped {
			v.arrive(t)
		}
	case Draining:
		v.drain()
	case Replaying:
		v.replay()
	}
}

// arrive handles a taken jump to t while the pipeline runs.
func (v *VM) arrive(t uint16) {
	cached := v.cache.Contains(t)

	if v.recorder != nil && (cached || t == v.recorder.Start()) {
		v.finishRecording(t)
		cached = true
	}

	if cached {
		if v.config.AllowsRunningTraces {
			if tr, ok := v.cache.Lookup(t); ok {
				v.pending = tr
				v.state = Draining
				v.cpu.SetFetchSuppressed(true)
			}
		}
		return
	}

	if v.recorder == nil && v.profiler.IsHot(t) {
		v.recorder = trace.NewRecorder(t, v.config.MaxTraceLength)
		v.state = Recording
	}
}

// drain runs one clock with fetch held. Once the pipeline is empty the
// pending trace starts, provided fetch is still parked at its start.
func (v *VM) drain() {
	v.cpu.Step()
	if !v.cpu.IsEmpty() {
		return
	}

	v.cpu.SetFetchSuppressed(false)
	pending := v.pending
	v.pending = nil
	v.state = Interpreting

	if pending != nil && v.cpu.PC() == pending.PC() {
		v.enter(pending)
	}
}

func (v *VM) enter(t *trace.Trace) {
	v.current = t
	v.index = 1
	v.state = Replaying
	v.invoke(HookPosTraceEntered, t, nil)
}

func (v *VM) leaveTrace() {
	v.current = nil
	v.index = 0
	v.pending = nil
}

// replay executes the next trace instruction. Reaching the trailing marker
// right after an instruction ends the trace in the same step.
func (v *VM) replay() {
	ins := v.current.At(v.index)

	v.executing = true
	res := v.executor.Execute(ins)
	v.executing = false

	if res.Retired {
		v.retiredByReplay(res.Retirement)
	}

	if res.Exit == trace.ExitNone {
		v.index++
		next := v.current.At(v.index)
		if !next.GuardFail {
			return
		}
		res = v.executor.Execute(next)
	}

	v.exit(ins, res)
}

func (v *VM) exit(ins trace.Instruction, res trace.Result) {
	v.leaveTrace()
	v.state = Interpreting
	v.cpu.FlushTo(res.ExitPC)

	switch res.Exit {
	case trace.ExitGuard:
		v.invoke(HookPosGuardFailed, ins, nil)
	case trace.ExitMarker:
		v.chain(res.ExitPC)
	}
}

// chain continues at the exit of a completed trace. The pipeline is
// empty, so a cached trace there starts without draining.
func (v *VM) chain(pc uint16) {
	if v.config.AllowsRunningTraces {
		if t, ok := v.cache.Lookup(pc); ok {
			v.enter(t)
			return
		}
	}

	if v.profiler.IsHot(pc) {
		v.recorder = trace.NewRecorder(pc, v.config.MaxTraceLength)
		v.state = Recording
	}
}

func (v *VM) finishRecording(next uint16) {
	r := v.recorder
	v.recorder = nil
	v.state = Interpreting

	t, err := r.Finish(next)
	if err != nil {
		v.invoke(HookPosRecordingAborted, r.Start(), err.Error())
		return
	}

	v.cache.Insert(t)
	v.invoke(HookPosTraceRecorded, t, nil)
}

func (v *VM) abortRecording(reason string) {
	if v.recorder == nil {
		return
	}

	start := v.recorder.Start()
	v.recorder.Abort()
	v.recorder = nil
	if v.state == Recording {
		v.state = Interpreting
	}
	v.invoke(HookPosRecordingAborted, start, reason)
}

func (v *VM) executed(e pipeline.Execution) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.Record(e); err != nil {
		v.abortRecording(err.Error())
	}
}

func (v *VM) retiredByPipeline(r emu.Retirement) {
	v.profiler.RecordRetirement(r.PC)
	v.retire(r, false)
}

func (v *VM) retiredByReplay(r emu.Retirement) {
	v.replayed++
	v.retire(r, true)
}

func (v *VM) retire(r emu.Retirement, replayed bool) {
	if v.onRetire != nil {
		v.onRetire(r)
	}
	v.invoke(HookPosRetire, r, replayed)
}

// instructionMemoryWritten drops everything derived from the old code.
func (v *VM) instructionMemoryWritten(addr uint16) {
	v.cache.Clear()
	v.profiler.Reset()
	v.abortRecording("instruction memory written")

	switch v.state {
	case Draining:
		v.cpu.SetFetchSuppressed(false)
		v.pending = nil
		v.state = Interpreting
	case Replaying:
		if !v.executing {
			pc := v.current.At(v.index).PC
			v.leaveTrace()
			v.state = Interpreting
			v.cpu.FlushTo(pc)
		}
	}

	v.invoke(HookPosTraceInvalidated, addr, nil)
}

func (v *VM) invoke(pos *sim.HookPos, item, detail interface{}) {
	if v.NumHooks() == 0 {
		return
	}

	v.InvokeHook(sim.HookCtx{
		Domain: v,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
