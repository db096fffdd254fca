package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/timing/pipeline"
)

type brokenHazardUnit struct{}

func (brokenHazardUnit) Step(pipeline.HazardInput) pipeline.HazardOutput {
	return pipeline.HazardOutput{Flush: 1}
}

var _ = Describe("HazardUnit", func() {
	var (
		table  *pipeline.DecodeTable
		hazard *pipeline.HazardUnit
	)

	ctlOf := func(op insts.Op) uint32 {
		return pipeline.ExecuteControl(table.Lookup(0, 0, 0, 0, uint8(op)))
	}

	inputFor := func(ins uint16) pipeline.HazardInput {
		ctl := table.Lookup(0, 0, 0, 0, uint8(ins>>insts.OpcodeShift))
		return pipeline.HazardInput{
			Ins:                  ins,
			CtlEX:                pipeline.NopControlWord,
			CtlMEM:               pipeline.NopControlWord,
			J:                    1,
			LeftOperandIsUnused:  uint8(ctl>>pipeline.CtlLeftOperandIsUnused) & 1,
			RightOperandIsUnused: uint8(ctl>>pipeline.CtlRightOperandIsUnused) & 1,
		}
	}

	BeforeEach(func() {
		table = pipeline.NewDecodeTable()
		hazard = pipeline.NewHazardUnit()
	})

	It("should read both operands from the register file without hazards", func() {
		out := hazard.Step(inputFor(insts.ADD(1, 2, 3)))

		Expect(out.Stall).To(BeZero())
		Expect(out.Flush).To(Equal(uint8(1)))
		Expect(out.FwdRegFileToA).To(BeZero())
		Expect(out.FwdRegFileToB).To(BeZero())
		Expect(out.FwdEXToA).To(Equal(uint8(1)))
		Expect(out.FwdMEMToB).To(Equal(uint8(1)))
	})

	Context("when EX produces an operand", func() {
		It("should forward an ALU result to A", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.InsEX = insts.ADDI(2, 0, 1) & 0x7ff
			in.CtlEX = ctlOf(insts.OpADDI)

			out := hazard.Step(in)

			Expect(out.Stall).To(BeZero())
			Expect(out.FwdEXToA).To(BeZero())
			Expect(out.FwdRegFileToA).To(Equal(uint8(1)))
			Expect(out.FwdRegFileToB).To(BeZero())
		})

		It("should forward an ALU result to B", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.InsEX = insts.ADD(3, 0, 0) & 0x7ff
			in.CtlEX = ctlOf(insts.OpADD)

			out := hazard.Step(in)

			Expect(out.Stall).To(BeZero())
			Expect(out.FwdEXToB).To(BeZero())
		})

		It("should stall on a pending load", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.InsEX = insts.LOAD(2, 0, 0) & 0x7ff
			in.CtlEX = ctlOf(insts.OpLOAD)

			out := hazard.Step(in)

			Expect(out.Stall).To(Equal(uint8(1)))
			Expect(out.Flush).To(BeZero())
		})

		It("should stall on LI since its value comes from the store operand", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.InsEX = insts.LI(3, 9) & 0x7ff
			in.CtlEX = ctlOf(insts.OpLI)

			Expect(hazard.Step(in).Stall).To(Equal(uint8(1)))
		})

		It("should ignore an instruction that does not write back", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.InsEX = insts.CMP(0, 0) & 0x7ff
			in.CtlEX = ctlOf(insts.OpCMP)
			in.InsEX |= 2 << insts.SelCShift

			out := hazard.Step(in)

			Expect(out.Stall).To(BeZero())
			Expect(out.FwdRegFileToA).To(BeZero())
		})
	})

	Context("when MEM produces an operand", func() {
		It("should forward an ALU result", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.SelCMEM = 2
			in.CtlMEM = ctlOf(insts.OpADD)

			out := hazard.Step(in)

			Expect(out.Stall).To(BeZero())
			Expect(out.FwdMEMToA).To(BeZero())
		})

		It("should stall on a pending load", func() {
			in := inputFor(insts.ADD(1, 2, 3))
			in.SelCMEM = 3
			in.CtlMEM = ctlOf(insts.OpLOAD)

			Expect(hazard.Step(in).Stall).To(Equal(uint8(1)))
		})

		It("should prefer the younger producer in EX", func() {
			in := inputFor(insts.ADD(1, 2, 2))
			in.InsEX = insts.ADD(2, 0, 0) & 0x7ff
			in.CtlEX = ctlOf(insts.OpADD)
			in.SelCMEM = 2
			in.CtlMEM = ctlOf(insts.OpLOAD)

			out := hazard.Step(in)

			Expect(out.Stall).To(BeZero())
			Expect(out.FwdEXToA).To(BeZero())
			Expect(out.FwdEXToB).To(BeZero())
			Expect(out.FwdMEMToA).To(Equal(uint8(1)))
		})
	})

	It("should not forward to an unused operand", func() {
		in := inputFor(insts.NOT(1, 2))
		in.InsEX = insts.ADD(0, 0, 0) & 0x7ff
		in.CtlEX = ctlOf(insts.OpADD)

		out := hazard.Step(in)

		Expect(out.Stall).To(BeZero())
		Expect(out.FwdRegFileToB).To(BeZero())
	})

	Describe("flags hazard", func() {
		DescribeTable("flag readers stall behind a flag writer",
			func(ins uint16) {
				in := inputFor(ins)
				in.CtlEX = ctlOf(insts.OpCMP)
				Expect(hazard.Step(in).Stall).To(Equal(uint8(1)))
			},
			Entry("BEQ", insts.BEQ(0)),
			Entry("BGTU", insts.BGTU(4)),
			Entry("ADC", insts.ADC(1, 2, 3)),
			Entry("SBC", insts.SBC(1, 2, 3)),
		)

		It("should not stall when EX leaves the flags alone", func() {
			in := inputFor(insts.BNE(-3))
			in.CtlEX = ctlOf(insts.OpLI)
			Expect(hazard.Step(in).Stall).To(BeZero())
		})

		It("should not stall a JMP behind a flag writer", func() {
			in := inputFor(insts.JMP(5))
			in.CtlEX = ctlOf(insts.OpCMP)
			Expect(hazard.Step(in).Stall).To(BeZero())
		})
	})

	It("should flush without stalling when EX jumps", func() {
		in := inputFor(insts.ADD(1, 2, 3))
		in.J = 0

		out := hazard.Step(in)

		Expect(out.Flush).To(BeZero())
		Expect(out.Stall).To(BeZero())
	})

	Describe("CheckedHazardUnit", func() {
		It("should pass through a legal resolution", func() {
			checked := pipeline.NewCheckedHazardUnit(hazard)
			Expect(checked.Step(inputFor(insts.ADD(1, 2, 3)))).
				To(Equal(hazard.Step(inputFor(insts.ADD(1, 2, 3)))))
		})

		It("should panic when no source is selected", func() {
			checked := pipeline.NewCheckedHazardUnit(brokenHazardUnit{})
			Expect(func() { checked.Step(inputFor(insts.NOP())) }).
				To(PanicWith(ContainSubstring("illegal hazard resolution")))
		})
	})
})
