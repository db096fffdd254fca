package insts

import "fmt"

// The encoders below build instruction words for programs constructed in
// Go code. Register arguments are 0..7. An immediate outside the range of
// its field panics, since it can only come from a programming error.

func checkRange(name string, imm, lo, hi int) {
	if imm < lo || imm > hi {
		panic(fmt.Sprintf("%s: immediate %d outside [%d, %d]", name, imm, lo, hi))
	}
}

func encodeRRR(op Op, c, a, b uint8) uint16 {
	return uint16(op)<<OpcodeShift |
		uint16(c&7)<<SelCShift |
		uint16(a&7)<<SelAShift |
		uint16(b&7)<<SelBShift
}

func encodeRRI(op Op, c, a uint8, imm int) uint16 {
	checkRange(op.String(), imm, -16, 15)
	return uint16(op)<<OpcodeShift |
		uint16(c&7)<<SelCShift |
		uint16(a&7)<<SelAShift |
		uint16(imm)&0x1f
}

func encodeRII(op Op, c uint8, imm int) uint16 {
	checkRange(op.String(), imm, -128, 255)
	return uint16(op)<<OpcodeShift |
		uint16(c&7)<<SelCShift |
		uint16(imm)&0xff
}

func encodeIRR(op Op, a, b uint8, imm int) uint16 {
	checkRange(op.String(), imm, -16, 15)
	return uint16(op)<<OpcodeShift |
		((uint16(imm)&0b11100)>>2)<<SelCShift |
		uint16(a&7)<<SelAShift |
		uint16(b&7)<<SelBShift |
		uint16(imm)&0b11
}

func encodeIII(op Op, imm int) uint16 {
	checkRange(op.String(), imm, -1024, 1023)
	return uint16(op)<<OpcodeShift | uint16(imm)&0x7ff
}

// NOP encodes a no-operation.
func NOP() uint16 { return 0 }

// HLT encodes a halt.
func HLT() uint16 { return uint16(OpHLT) << OpcodeShift }

// LOAD encodes dst = mem[addr + offset].
func LOAD(dst, addr uint8, offset int) uint16 { return encodeRRI(OpLOAD, dst, addr, offset) }

// STORE encodes mem[addr + offset] = val.
func STORE(val, addr uint8, offset int) uint16 { return encodeIRR(OpSTORE, addr, val, offset) }

// LI encodes dst = sign-extended imm8.
func LI(dst uint8, imm int) uint16 { return encodeRII(OpLI, dst, imm) }

// LUI encodes the upper byte of dst = imm8, leaving the lower byte alone.
func LUI(dst uint8, imm int) uint16 { return encodeRII(OpLUI, dst, imm) }

// CMP encodes flags = left - right.
func CMP(left, right uint8) uint16 { return encodeRRR(OpCMP, 0, left, right) }

// ADD encodes dst = left + right.
func ADD(dst, left, right uint8) uint16 { return encodeRRR(OpADD, dst, left, right) }

// SUB encodes dst = left - right.
func SUB(dst, left, right uint8) uint16 { return encodeRRR(OpSUB, dst, left, right) }

// AND encodes dst = left & right.
func AND(dst, left, right uint8) uint16 { return encodeRRR(OpAND, dst, left, right) }

// OR encodes dst = left | right.
func OR(dst, left, right uint8) uint16 { return encodeRRR(OpOR, dst, left, right) }

// XOR encodes dst = left ^ right.
func XOR(dst, left, right uint8) uint16 { return encodeRRR(OpXOR, dst, left, right) }

// NOT encodes dst = ^src.
func NOT(dst, src uint8) uint16 { return encodeRRR(OpNOT, dst, src, 0) }

// CMPI encodes flags = left - imm5.
func CMPI(left uint8, imm int) uint16 { return encodeRRI(OpCMPI, 0, left, imm) }

// ADDI encodes dst = left + imm5.
func ADDI(dst, left uint8, imm int) uint16 { return encodeRRI(OpADDI, dst, left, imm) }

// SUBI encodes dst = left - imm5.
func SUBI(dst, left uint8, imm int) uint16 { return encodeRRI(OpSUBI, dst, left, imm) }

// ANDI encodes dst = left & imm5.
func ANDI(dst, left uint8, imm int) uint16 { return encodeRRI(OpANDI, dst, left, imm) }

// ORI encodes dst = left | imm5.
func ORI(dst, left uint8, imm int) uint16 { return encodeRRI(OpORI, dst, left, imm) }

// XORI encodes dst = left ^ imm5.
func XORI(dst, left uint8, imm int) uint16 { return encodeRRI(OpXORI, dst, left, imm) }

// JMP encodes a relative jump. The target is the address of the JMP plus
// two plus offset.
func JMP(offset int) uint16 { return encodeIII(OpJMP, offset) }

// JR encodes an absolute jump to target + offset.
func JR(target uint8, offset int) uint16 { return encodeRRI(OpJR, 0, target, offset) }

// JALR encodes an absolute jump to target + offset which stores the return
// address in link. The return address is the JALR address plus two.
func JALR(link, target uint8, offset int) uint16 {
	return encodeRRI(OpJALR, link, target, offset)
}

// BEQ encodes a relative branch taken when Z is set.
func BEQ(offset int) uint16 { return encodeIII(OpBEQ, offset) }

// BNE encodes a relative branch taken when Z is clear.
func BNE(offset int) uint16 { return encodeIII(OpBNE, offset) }

// BLT encodes a relative branch taken when N != V.
func BLT(offset int) uint16 { return encodeIII(OpBLT, offset) }

// BGT encodes a relative branch taken when Z is clear and N == V.
func BGT(offset int) uint16 { return encodeIII(OpBGT, offset) }

// BLTU encodes a relative branch taken when C is clear.
func BLTU(offset int) uint16 { return encodeIII(OpBLTU, offset) }

// BGTU encodes a relative branch taken when C is set and Z is clear.
func BGTU(offset int) uint16 { return encodeIII(OpBGTU, offset) }

// ADC encodes dst = left + right + carry.
func ADC(dst, left, right uint8) uint16 { return encodeRRR(OpADC, dst, left, right) }

// SBC encodes dst = left - right - carry.
func SBC(dst, left, right uint8) uint16 { return encodeRRR(OpSBC, dst, left, right) }

// BranchOffset returns the offset a branch or JMP at address from needs to
// reach address to.
func BranchOffset(from, to uint16) int {
	return int(int16(to - from - 2))
}
