package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/emu"
)

var _ = Describe("Bus", func() {
	var (
		io       emu.IOConfig
		computer *emu.Computer
	)

	BeforeEach(func() {
		io = emu.DefaultIOConfig()
		computer = emu.NewComputer(io)
	})

	It("should route plain addresses to data memory", func() {
		computer.Bus.Store(0x1234, 0x0100)
		Expect(computer.Memory.Load(0x0100)).To(Equal(uint16(0x1234)))
		Expect(computer.Bus.Load(0x0100)).To(Equal(uint16(0x1234)))
	})

	It("should send the low byte to serial out", func() {
		var seen []byte
		computer.Serial.SetOutputHandler(func(b byte) { seen = append(seen, b) })

		computer.Bus.Store(0x4148, io.SerialOut)
		computer.Bus.Store('i', io.SerialOut)

		Expect(string(computer.Serial.Output())).To(Equal("Hi"))
		Expect(seen).To(Equal([]byte("Hi")))
		Expect(computer.Memory.Load(io.SerialOut)).To(BeZero())
	})

	It("should pop serial input and report the queue length", func() {
		computer.Serial.Feed([]byte("ok"))

		Expect(computer.Bus.Load(io.SerialCount)).To(Equal(uint16(2)))
		Expect(computer.Bus.Load(io.SerialIn)).To(Equal(uint16('o')))
		Expect(computer.Bus.Load(io.SerialIn)).To(Equal(uint16('k')))
		Expect(computer.Bus.Load(io.SerialCount)).To(BeZero())
		Expect(computer.Bus.Load(io.SerialIn)).To(Equal(emu.SerialEmpty))
	})

	It("should ignore stores to input ports", func() {
		computer.Serial.Feed([]byte("x"))
		computer.Bus.Store(7, io.SerialIn)
		computer.Bus.Store(7, io.SerialCount)

		Expect(computer.Serial.Pending()).To(Equal(1))
		Expect(computer.Memory.Load(io.SerialIn)).To(BeZero())
	})

	It("should write instruction memory through the latch", func() {
		var written []uint16
		computer.IMem.OnWrite(func(addr uint16) { written = append(written, addr) })

		computer.Bus.Store(0x20, io.IMemAddr)
		Expect(computer.Bus.Load(io.IMemAddr)).To(Equal(uint16(0x20)))

		computer.Bus.Store(0xaaaa, io.IMemData)
		computer.Bus.Store(0xbbbb, io.IMemData)

		Expect(computer.IMem.Load(0x20)).To(Equal(uint16(0xaaaa)))
		Expect(computer.IMem.Load(0x21)).To(Equal(uint16(0xbbbb)))
		Expect(computer.Bus.IMemLatch()).To(Equal(uint16(0x22)))
		Expect(written).To(Equal([]uint16{0x20, 0x21}))
	})

	It("should read instruction memory at the latch", func() {
		computer.LoadProgram([]uint16{0x1111, 0x2222}, 0x40)
		computer.Bus.Store(0x41, io.IMemAddr)

		Expect(computer.Bus.Load(io.IMemData)).To(Equal(uint16(0x2222)))
		Expect(computer.Bus.IMemLatch()).To(Equal(uint16(0x41)))
	})

	It("should honor a custom port map", func() {
		custom := io
		custom.SerialOut = 0x0010
		c := emu.NewComputer(custom)

		c.Bus.Store('z', 0x0010)
		c.Bus.Store(5, io.SerialOut)

		Expect(string(c.Serial.Output())).To(Equal("z"))
		Expect(c.Memory.Load(io.SerialOut)).To(Equal(uint16(5)))
	})

	It("should detect shared ports", func() {
		Expect(io.Distinct()).To(BeTrue())
		shared := io
		shared.IMemData = shared.IMemAddr
		Expect(shared.Distinct()).To(BeFalse())
	})
})

var _ = Describe("InstructionMemory", func() {
	It("should advance its version on every write", func() {
		imem := emu.NewInstructionMemory()
		v0 := imem.Version()

		imem.Write(3, 0x1234)
		v1 := imem.Version()
		imem.Store([]uint16{1, 2, 3}, 0xfffe)

		Expect(v1).NotTo(Equal(v0))
		Expect(imem.Version()).NotTo(Equal(v1))
		Expect(imem.Load(0xffff)).To(Equal(uint16(2)))
		Expect(imem.Load(0)).To(Equal(uint16(3)))
	})
})

var _ = Describe("Computer", func() {
	It("should reset everything except instruction memory", func() {
		io := emu.DefaultIOConfig()
		c := emu.NewComputer(io)
		c.LoadProgram([]uint16{0xabcd}, 0)
		c.Regs.WriteReg(1, 5)
		c.Flags.Z = true
		c.Memory.Store(9, 0x100)
		c.Serial.Feed([]byte("a"))
		c.Bus.Store('b', io.SerialOut)
		c.Bus.Store(0x40, io.IMemAddr)

		c.ResetState()

		Expect(c.Regs.ReadReg(1)).To(BeZero())
		Expect(c.Flags).To(Equal(emu.Flags{}))
		Expect(c.Memory.Load(0x100)).To(BeZero())
		Expect(c.Serial.Pending()).To(BeZero())
		Expect(c.Serial.Output()).To(BeEmpty())
		Expect(c.Bus.IMemLatch()).To(BeZero())
		Expect(c.IMem.Load(0)).To(Equal(uint16(0xabcd)))
	})
})
