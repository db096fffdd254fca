package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
)

var _ = Describe("Emulator", func() {
	var computer *emu.Computer

	BeforeEach(func() {
		computer = emu.NewComputer(emu.DefaultIOConfig())
	})

	run := func(program ...uint16) *emu.Emulator {
		computer.LoadProgram(program, 0)
		e := emu.NewEmulator(computer, emu.WithMaxInstructions(10_000))
		Expect(e.Run()).To(Succeed())
		return e
	}

	It("should count to ten", func() {
		e := run(
			insts.LI(0, 0),
			insts.LI(1, 10),
			insts.ADDI(0, 0, 1),
			insts.CMP(0, 1),
			insts.BNE(-4),
			insts.HLT(),
		)

		Expect(computer.Regs.ReadReg(0)).To(Equal(uint16(10)))
		Expect(computer.Flags.Z).To(BeTrue())
		Expect(e.Halted()).To(BeTrue())
		Expect(e.PC()).To(Equal(uint16(5)))
		Expect(e.InstructionCount()).To(Equal(uint64(2 + 3*10 + 1)))
	})

	It("should build wide constants with LI and LUI", func() {
		run(
			insts.LI(2, 0xfa),
			insts.LUI(2, 0x12),
			insts.LI(3, -1),
			insts.HLT(),
		)

		Expect(computer.Regs.ReadReg(2)).To(Equal(uint16(0x12fa)))
		Expect(computer.Regs.ReadReg(3)).To(Equal(uint16(0xffff)))
	})

	It("should load and store through the bus", func() {
		run(
			insts.LI(3, 0x40),
			insts.LI(0, 7),
			insts.STORE(0, 3, 2),
			insts.LOAD(1, 3, 2),
			insts.HLT(),
		)

		Expect(computer.Memory.Load(0x42)).To(Equal(uint16(7)))
		Expect(computer.Regs.ReadReg(1)).To(Equal(uint16(7)))
	})

	It("should call and return", func() {
		program := make([]uint16, 0x13)
		copy(program, []uint16{
			insts.LI(5, 0x10),
			insts.JALR(7, 5, 0),
			insts.ADDI(1, 1, 1),
			insts.HLT(),
		})
		program[0x10] = insts.ADDI(0, 0, 3)
		program[0x11] = insts.JR(7, -1)

		run(program...)

		Expect(computer.Regs.ReadReg(7)).To(Equal(uint16(3)))
		Expect(computer.Regs.ReadReg(0)).To(Equal(uint16(3)))
		Expect(computer.Regs.ReadReg(1)).To(Equal(uint16(1)))
	})

	It("should chain ADC through the carry", func() {
		run(
			insts.LI(0, -1),
			insts.LI(1, 1),
			insts.LI(2, 0),
			insts.LI(3, 0),
			insts.ADD(4, 0, 1),
			insts.ADC(5, 2, 3),
			insts.HLT(),
		)

		Expect(computer.Regs.ReadReg(4)).To(BeZero())
		Expect(computer.Regs.ReadReg(5)).To(Equal(uint16(1)))
	})

	It("should write to serial out", func() {
		io := emu.DefaultIOConfig()
		computer.Serial.Feed([]byte("q"))
		run(
			insts.LI(4, int(io.SerialOut&0xff)),
			insts.LUI(4, int(io.SerialOut>>8)),
			insts.LOAD(0, 4, int(io.SerialIn-io.SerialOut)),
			insts.STORE(0, 4, 0),
			insts.HLT(),
		)

		Expect(string(computer.Serial.Output())).To(Equal("q"))
	})

	It("should stop at the instruction limit", func() {
		computer.LoadProgram([]uint16{insts.JMP(-2)}, 0)
		e := emu.NewEmulator(computer, emu.WithMaxInstructions(100))

		Expect(e.Run()).To(HaveOccurred())
		Expect(e.InstructionCount()).To(Equal(uint64(100)))
		Expect(e.Halted()).To(BeFalse())
	})

	It("should start at the entry point", func() {
		computer.LoadProgram([]uint16{insts.LI(0, 1), insts.HLT(), insts.LI(0, 2), insts.HLT()}, 0)
		e := emu.NewEmulator(computer, emu.WithEntryPoint(2))

		Expect(e.Run()).To(Succeed())
		Expect(computer.Regs.ReadReg(0)).To(Equal(uint16(2)))
	})

	It("should stay halted", func() {
		e := run(insts.HLT())

		Expect(e.Step().Halted).To(BeTrue())
		Expect(e.InstructionCount()).To(Equal(uint64(1)))
	})

	DescribeTable("branch conditions",
		func(op insts.Op, f emu.Flags, taken bool) {
			Expect(emu.BranchTaken(op, f)).To(Equal(taken))
		},
		Entry("BEQ on Z", insts.OpBEQ, emu.Flags{Z: true}, true),
		Entry("BNE on Z", insts.OpBNE, emu.Flags{Z: true}, false),
		Entry("BLT when N differs from V", insts.OpBLT, emu.Flags{N: true}, true),
		Entry("BLT when N equals V", insts.OpBLT, emu.Flags{N: true, V: true}, false),
		Entry("BGT when greater", insts.OpBGT, emu.Flags{}, true),
		Entry("BGT when equal", insts.OpBGT, emu.Flags{Z: true}, false),
		Entry("BLTU on borrow", insts.OpBLTU, emu.Flags{}, true),
		Entry("BGTU when above", insts.OpBGTU, emu.Flags{C: true}, true),
		Entry("BGTU when equal", insts.OpBGTU, emu.Flags{C: true, Z: true}, false),
	)
})
