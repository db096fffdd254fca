package vm_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/benchmarks"
	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/vm"
)

// counterProgram increments r0 from 0 to 10 in a loop headed at address 2.
var counterProgram = []uint16{
	insts.LI(0, 0),
	insts.LI(1, 10),
	insts.ADDI(0, 0, 1),
	insts.CMP(0, 1),
	insts.NOP(),
	insts.NOP(),
	insts.BNE(insts.BranchOffset(6, 2)),
	insts.NOP(),
	insts.NOP(),
	insts.HLT(),
}

const counterLoop = 2

func newVM(allowTraces bool, program []uint16, opts ...vm.Option) *vm.VM {
	config := vm.DefaultConfig()
	config.AllowsRunningTraces = allowTraces
	config.CheckHazards = true

	v, err := vm.NewVM(config, opts...)
	Expect(err).NotTo(HaveOccurred())

	v.LoadProgram(program, 0)
	v.Reset()
	return v
}

var _ = Describe("VM", func() {
	Describe("counter program", func() {
		It("should count to ten when interpreting", func() {
			v := newVM(false, counterProgram)

			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
			Expect(v.Computer().Serial.Output()).To(BeEmpty())
			Expect(v.ReplayedInstructions()).To(BeZero())
		})

		It("should count to ten when tracing", func() {
			v := newVM(true, counterProgram)

			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
			Expect(v.Computer().Serial.Output()).To(BeEmpty())
			Expect(v.ReplayedInstructions()).NotTo(BeZero())
			Expect(v.TraceCache().Len()).To(Equal(1))
		})

		It("should record the loop body between two markers", func() {
			v := newVM(true, counterProgram)
			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			t, ok := v.TraceCache().Lookup(counterLoop)
			Expect(ok).To(BeTrue())
			Expect(t.Len()).To(Equal(7))

			head := t.At(0)
			Expect(head.PC).To(Equal(uint16(counterLoop)))
			Expect(head.IsBreakpoint).To(BeTrue())
			Expect(head.GuardFail).To(BeFalse())

			branch := t.At(5)
			Expect(branch.PC).To(Equal(uint16(6)))
			Expect(branch.HasGuardFlags).To(BeTrue())
			Expect(branch.GuardFlags.Z).To(BeFalse())

			tail := t.At(6)
			Expect(tail.PC).To(Equal(uint16(counterLoop)))
			Expect(tail.GuardFail).To(BeTrue())
			Expect(tail.IsBreakpoint).To(BeTrue())
		})

		It("should walk through every state in order", func() {
			v := newVM(true, counterProgram)

			states := []vm.State{v.State()}
			for i := 0; i < 10_000 && !v.IsHalted(); i++ {
				v.Step()
				if s := v.State(); s != states[len(states)-1] {
					states = append(states, s)
				}
			}

			Expect(states).To(Equal([]vm.State{
				vm.Interpreting,
				vm.Recording,
				vm.Draining,
				vm.Replaying,
				vm.Interpreting,
			}))
		})

		It("should record without replaying when traces are disabled", func() {
			v := newVM(false, counterProgram)

			states := []vm.State{v.State()}
			for i := 0; i < 10_000 && !v.IsHalted(); i++ {
				v.Step()
				if s := v.State(); s != states[len(states)-1] {
					states = append(states, s)
				}
			}

			Expect(states).To(Equal([]vm.State{vm.Interpreting, vm.Recording, vm.Interpreting}))
			Expect(v.TraceCache().Len()).To(Equal(1))
		})

		It("should record the same trace on every run", func() {
			first := newVM(true, counterProgram)
			Expect(first.RunUntilHalted(10_000)).To(Succeed())
			second := newVM(true, counterProgram)
			Expect(second.RunUntilHalted(10_000)).To(Succeed())

			a := first.TraceCache().Traces()
			b := second.TraceCache().Traces()
			Expect(a).To(HaveLen(1))
			Expect(b).To(HaveLen(1))
			Expect(a[0].Equal(b[0])).To(BeTrue())
			Expect(a[0].String()).To(Equal(b[0].String()))
		})

		It("should render the trace listing", func() {
			v := newVM(true, counterProgram)
			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			t, _ := v.TraceCache().Lookup(counterLoop)
			Expect(t.String()).To(HavePrefix(
				"0x0002: NOP ; isBreakpoint=true\n" +
					"0x0002: ADDI r0, r0, 1\n" +
					"0x0003: CMP r0, r1\n"))
			Expect(t.String()).To(HaveSuffix(
				"\n0x0002: NOP ; guardFail=true ; isBreakpoint=true"))
			Expect(t.String()).To(ContainSubstring("0x0006: BNE -6 ; guardFlags={carryFlag: "))
		})
	})

	Describe("step count", func() {
		It("should need fewer steps with trace replay", func() {
			bench := benchmarks.CountedLoop(100)

			plain := newVM(false, bench.Program)
			Expect(plain.RunUntilHalted(1_000_000)).To(Succeed())
			traced := newVM(true, bench.Program)
			Expect(traced.RunUntilHalted(1_000_000)).To(Succeed())

			Expect(traced.StepsExecuted()).To(BeNumerically("<", plain.StepsExecuted()))
			Expect(traced.Computer().Regs.ReadReg(0)).To(Equal(uint16(100)))
		})

		It("should run one pipeline cycle per step when interpreting", func() {
			v := newVM(false, counterProgram)
			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			Expect(v.Cycles()).To(Equal(v.StepsExecuted() + uint64(v.Config().ResetCycles)))
		})
	})

	Describe("trace cache invalidation", func() {
		It("should drop every trace when a program patches its hot loop", func() {
			bench, loop := benchmarks.PatchedLoop(insts.ADDI(0, 0, 2))
			v := newVM(true, bench.Program)

			Expect(v.RunUntilHalted(100_000)).To(Succeed())

			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
			Expect(v.Computer().IMem.Load(loop)).To(Equal(insts.ADDI(0, 0, 2)))
			Expect(v.TraceCache().Stats().Inserts).NotTo(BeZero())
			Expect(v.TraceCache().Stats().Invalidations).To(Equal(uint64(1)))
			Expect(v.Profiler().IsHot(loop)).To(BeFalse())
			_, ok := v.TraceCache().Lookup(loop)
			Expect(ok).To(BeFalse())
		})

		It("should drop every trace when the host writes instruction memory", func() {
			v := newVM(true, counterProgram)
			for i := 0; i < 10_000 && v.State() != vm.Replaying; i++ {
				v.Step()
			}
			Expect(v.State()).To(Equal(vm.Replaying))
			Expect(v.TraceCache().Len()).To(Equal(1))

			v.Computer().IMem.Write(0x100, insts.NOP())

			Expect(v.TraceCache().Len()).To(BeZero())
			_, ok := v.TraceCache().Lookup(counterLoop)
			Expect(ok).To(BeFalse())
			Expect(v.Profiler().IsHot(counterLoop)).To(BeFalse())
			Expect(v.State()).To(Equal(vm.Interpreting))

			Expect(v.RunUntilHalted(10_000)).To(Succeed())
			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
		})

		It("should abort a recording in progress", func() {
			v := newVM(true, counterProgram)
			for i := 0; i < 10_000 && v.State() != vm.Recording; i++ {
				v.Step()
			}
			Expect(v.State()).To(Equal(vm.Recording))

			v.Computer().IMem.Write(0x100, insts.NOP())

			Expect(v.State()).To(Equal(vm.Interpreting))
			Expect(v.TraceCache().Len()).To(BeZero())
			Expect(v.RunUntilHalted(10_000)).To(Succeed())
			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
		})

		It("should give up draining when instruction memory changes", func() {
			v := newVM(true, counterProgram)
			for i := 0; i < 10_000 && v.State() != vm.Draining; i++ {
				v.Step()
			}
			Expect(v.State()).To(Equal(vm.Draining))

			v.Computer().IMem.Write(0x100, insts.NOP())

			Expect(v.State()).To(Equal(vm.Interpreting))
			Expect(v.RunUntilHalted(10_000)).To(Succeed())
			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
		})
	})

	Describe("nested loops", func() {
		It("should cache exactly two traces", func() {
			bench := benchmarks.NestedLoops(250, 250)
			v := newVM(true, bench.Program)

			Expect(v.RunUntilHalted(10_000_000)).To(Succeed())

			Expect(v.TraceCache().Len()).To(Equal(2))
			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(250)))
			Expect(v.Computer().Regs.ReadReg(2)).To(Equal(uint16(250)))
		})

		It("should chain from the outer trace into the inner one", func() {
			bench := benchmarks.NestedLoops(10, 10)
			v := newVM(true, bench.Program)
			Expect(v.RunUntilHalted(1_000_000)).To(Succeed())

			traces := v.TraceCache().Traces()
			Expect(traces).To(HaveLen(2))
			outer, inner := traces[0], traces[1]
			Expect(outer.PC()).To(BeNumerically("<", inner.PC()))
			Expect(outer.ExitPC()).To(Equal(inner.PC()))
			Expect(inner.ExitPC()).To(Equal(inner.PC()))
		})
	})

	Describe("running", func() {
		It("should stop at the step limit", func() {
			v := newVM(true, []uint16{insts.JMP(-2)})

			Expect(v.RunUntilHalted(1000)).To(MatchError(vm.ErrStepLimit))
			Expect(v.StepsExecuted()).To(Equal(uint64(1000)))
		})

		It("should stop when the context is cancelled", func() {
			v := newVM(true, []uint16{insts.JMP(-2)})
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Expect(v.RunContext(ctx)).To(MatchError(context.Canceled))
		})

		It("should replay a loop without any exit", func() {
			v := newVM(true, []uint16{insts.ADDI(0, 0, 1), insts.JMP(-3)})

			Expect(v.RunUntilHalted(1000)).To(MatchError(vm.ErrStepLimit))
			Expect(v.State()).To(Equal(vm.Replaying))
			Expect(v.ReplayedInstructions()).NotTo(BeZero())
		})

		It("should not step after halting", func() {
			v := newVM(true, counterProgram)
			v.Run()
			steps := v.StepsExecuted()

			v.Step()

			Expect(v.IsHalted()).To(BeTrue())
			Expect(v.StepsExecuted()).To(Equal(steps))
		})

		It("should start over after Reset", func() {
			v := newVM(true, counterProgram)
			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			v.Reset()

			Expect(v.StepsExecuted()).To(BeZero())
			Expect(v.TraceCache().Len()).To(BeZero())
			Expect(v.Profiler().Count(counterLoop)).To(BeZero())
			Expect(v.Computer().Regs.ReadReg(0)).To(BeZero())
			Expect(v.PC()).To(BeZero())
			Expect(v.State()).To(Equal(vm.Interpreting))

			Expect(v.RunUntilHalted(10_000)).To(Succeed())
			Expect(v.Computer().Regs.ReadReg(0)).To(Equal(uint16(10)))
		})
	})

	Describe("callbacks", func() {
		It("should pass serial output to the callback", func() {
			bench := benchmarks.SerialAlphabet()
			v := newVM(true, bench.Program)
			var out []byte
			v.OnSerialOutput(func(b byte) {
				out = append(out, b)
			})

			Expect(v.RunUntilHalted(100_000)).To(Succeed())

			Expect(string(out)).To(Equal(bench.ExpectedOutput))
			Expect(v.ReplayedInstructions()).NotTo(BeZero())
		})

		It("should report retirements from both the pipeline and replay", func() {
			var retired []emu.Retirement
			v := newVM(true, counterProgram, vm.WithRetireHook(func(r emu.Retirement) {
				retired = append(retired, r)
			}))

			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			// LI, LI, ten passes of five and the first NOP behind the loop
			Expect(retired).To(HaveLen(53))
			Expect(v.ReplayedInstructions()).To(BeNumerically("<", uint64(len(retired))))
		})

		It("should not profile replayed instructions", func() {
			v := newVM(true, counterProgram)
			Expect(v.RunUntilHalted(10_000)).To(Succeed())

			Expect(v.Profiler().Count(counterLoop)).To(BeNumerically("<", 10))
			Expect(v.Profiler().Count(0)).To(Equal(uint64(1)))
		})
	})

	Describe("snapshots", func() {
		It("should match between modes at halt", func() {
			bench := benchmarks.MemorySum(40)
			plain := newVM(false, bench.Program)
			Expect(plain.RunUntilHalted(1_000_000)).To(Succeed())
			traced := newVM(true, bench.Program)
			Expect(traced.RunUntilHalted(1_000_000)).To(Succeed())

			Expect(traced.Snapshot()).To(Equal(plain.Snapshot()))
			Expect(traced.Snapshot().MemoryDigest).NotTo(Equal(newVM(true, nil).Snapshot().MemoryDigest))
		})
	})

	Describe("construction", func() {
		It("should reject an invalid configuration", func() {
			config := vm.DefaultConfig()
			config.TraceCacheWays = 0

			_, err := vm.NewVM(config)

			Expect(err).To(HaveOccurred())
		})

		It("should run on a provided computer", func() {
			computer := emu.NewComputer(emu.DefaultIOConfig())
			v, err := vm.NewVM(vm.DefaultConfig(), vm.WithComputer(computer), vm.WithName("core0"))
			Expect(err).NotTo(HaveOccurred())

			Expect(v.Computer()).To(BeIdenticalTo(computer))
			Expect(v.Name()).To(Equal("core0"))
		})
	})
})
