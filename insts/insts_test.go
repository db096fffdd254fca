package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
	})

	It("should have a Decoder type", func() {
		decoder := insts.NewDecoder()
		Expect(decoder).ToNot(BeNil())
	})

	DescribeTable("opcode classification",
		func(op insts.Op, branch, computed, readsFlags bool) {
			Expect(op.IsConditionalBranch()).To(Equal(branch))
			Expect(op.IsComputedJump()).To(Equal(computed))
			Expect(op.ReadsFlags()).To(Equal(readsFlags))
		},
		Entry("ADD", insts.OpADD, false, false, false),
		Entry("JMP", insts.OpJMP, false, false, false),
		Entry("JR", insts.OpJR, false, true, false),
		Entry("JALR", insts.OpJALR, false, true, false),
		Entry("BEQ", insts.OpBEQ, true, false, true),
		Entry("BGTU", insts.OpBGTU, true, false, true),
		Entry("ADC", insts.OpADC, false, false, true),
		Entry("SBC", insts.OpSBC, false, false, true),
	)

	It("should render unassigned opcodes as NOP", func() {
		Expect(insts.Op(19).String()).To(Equal("NOP"))
		Expect(insts.Op(23).String()).To(Equal("NOP"))
	})

	Describe("Encoders", func() {
		It("should place the opcode in the top five bits", func() {
			Expect(insts.HLT()).To(Equal(uint16(0x0800)))
			Expect(insts.Opcode(insts.SBC(1, 2, 3))).To(Equal(insts.OpSBC))
		})

		It("should split the STORE immediate around the register fields", func() {
			word := insts.STORE(3, 2, -7)
			Expect(insts.SelA(word)).To(Equal(uint8(2)))
			Expect(insts.SelB(word)).To(Equal(uint8(3)))
			Expect(int16(insts.SplitImm5(word))).To(Equal(int16(-7)))
		})

		It("should panic on an out-of-range immediate", func() {
			Expect(func() { insts.ADDI(0, 0, 16) }).To(Panic())
			Expect(func() { insts.LI(0, -129) }).To(Panic())
			Expect(func() { insts.JMP(1024) }).To(Panic())
		})

		It("should compute branch offsets relative to the address plus two", func() {
			Expect(insts.BranchOffset(10, 4)).To(Equal(-8))
			Expect(insts.BranchOffset(1, 1026)).To(Equal(1023))
		})
	})
})
