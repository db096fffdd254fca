package trace_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/trace"
)

func marker(pc uint16, trailing bool) trace.Instruction {
	return trace.Instruction{
		PC:           pc,
		Word:         insts.NOP(),
		GuardFail:    trailing,
		IsBreakpoint: true,
	}
}

func newTrace(start, exit uint16, body ...trace.Instruction) *trace.Trace {
	entries := []trace.Instruction{marker(start, false)}
	entries = append(entries, body...)
	entries = append(entries, marker(exit, true))

	t, err := trace.NewTrace(entries)
	Expect(err).NotTo(HaveOccurred())
	return t
}

var _ = Describe("Trace", func() {
	It("should need both markers", func() {
		_, err := trace.NewTrace([]trace.Instruction{marker(2, false)})
		Expect(err).To(HaveOccurred())
	})

	It("should report its start and exit", func() {
		t := newTrace(2, 2, trace.Instruction{PC: 2, Word: insts.ADDI(0, 0, 1)})

		Expect(t.PC()).To(Equal(uint16(2)))
		Expect(t.ExitPC()).To(Equal(uint16(2)))
		Expect(t.Len()).To(Equal(3))
		Expect(t.At(1).Word).To(Equal(insts.ADDI(0, 0, 1)))
	})

	It("should not share its entries", func() {
		entries := []trace.Instruction{marker(4, false), marker(8, true)}
		t, err := trace.NewTrace(entries)
		Expect(err).NotTo(HaveOccurred())

		entries[0].PC = 0x99
		copied := t.Instructions()
		copied[1].PC = 0x77

		Expect(t.PC()).To(Equal(uint16(4)))
		Expect(t.ExitPC()).To(Equal(uint16(8)))
	})

	It("should render the listing format", func() {
		branch := trace.Instruction{
			PC:            6,
			Word:          insts.BNE(-6),
			GuardFlags:    emu.Flags{C: true},
			HasGuardFlags: true,
		}
		ret := trace.Instruction{
			PC:              0x42,
			Word:            insts.JR(7, -1),
			GuardAddress:    0x05,
			HasGuardAddress: true,
		}
		t := newTrace(2, 2, branch, ret)

		lines := strings.Split(t.String(), "\n")
		Expect(lines).To(HaveLen(4))
		Expect(lines[0]).To(Equal("0x0002: NOP ; isBreakpoint=true"))
		Expect(lines[1]).To(Equal("0x0006: BNE -6 ; guardFlags={carryFlag: 1, equalFlag: 0, overflowFlag: 0, negativeFlag: 0}"))
		Expect(lines[2]).To(HavePrefix("0x0042: JR "))
		Expect(lines[2]).To(HaveSuffix(" ; guardAddress=0x0005"))
		Expect(lines[3]).To(Equal("0x0002: NOP ; guardFail=true ; isBreakpoint=true"))
	})

	It("should compare entries", func() {
		body := trace.Instruction{PC: 2, Word: insts.ADDI(0, 0, 1)}
		a := newTrace(2, 2, body)
		b := newTrace(2, 2, body)
		c := newTrace(2, 4, body)

		Expect(a.Equal(b)).To(BeTrue())
		Expect(a.Equal(c)).To(BeFalse())
		Expect(a.Equal(nil)).To(BeFalse())
		Expect((*trace.Trace)(nil).Equal(nil)).To(BeTrue())
	})
})
