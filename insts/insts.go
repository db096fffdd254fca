// Package insts provides Turtle16 instruction definitions, decoding,
// disassembly and encoding.
//
// Every Turtle16 instruction is a single 16-bit word. The top five bits hold
// the opcode and the remaining eleven bits hold register selectors and
// immediates whose layout depends on the instruction format:
//
//	RRR  ooooo ccc aaa bbb xx   ADD c, a, b
//	RRI  ooooo ccc aaa iiiii    ADDI c, a, imm5
//	RII  ooooo ccc iiiiiiii     LI c, imm8
//	IRR  ooooo iii aaa bbb ii   STORE b, a, imm5 (split immediate)
//	III  ooooo iiiiiiiiiii      JMP imm11
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(insts.ADDI(0, 0, 1))
//	fmt.Println(inst) // ADDI r0, r0, 1
package insts

// Op represents a Turtle16 opcode. The numeric value is the 5-bit opcode
// field of the instruction word.
type Op uint8

// Turtle16 opcodes.
const (
	OpNOP   Op = 0
	OpHLT   Op = 1
	OpLOAD  Op = 2
	OpSTORE Op = 3
	OpLI    Op = 4
	OpLUI   Op = 5
	OpCMP   Op = 6
	OpADD   Op = 7
	OpSUB   Op = 8
	OpAND   Op = 9
	OpOR    Op = 10
	OpXOR   Op = 11
	OpNOT   Op = 12
	OpCMPI  Op = 13
	OpADDI  Op = 14
	OpSUBI  Op = 15
	OpANDI  Op = 16
	OpORI   Op = 17
	OpXORI  Op = 18
	OpJMP   Op = 20
	OpJR    Op = 21
	OpJALR  Op = 22
	OpBEQ   Op = 24
	OpBNE   Op = 25
	OpBLT   Op = 26
	OpBGT   Op = 27
	OpBLTU  Op = 28
	OpBGTU  Op = 29
	OpADC   Op = 30
	OpSBC   Op = 31
)

// Field positions within an instruction word.
const (
	OpcodeShift = 11
	SelCShift   = 8
	SelAShift   = 5
	SelBShift   = 2
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatX              // No operands (NOP, HLT)
	FormatRRR            // Three registers
	FormatRRI            // Two registers and a 5-bit immediate
	FormatRII            // One register and an 8-bit immediate
	FormatIRR            // Two source registers and a split 5-bit immediate
	FormatIII            // 11-bit immediate
)

var mnemonics = [32]string{
	OpNOP:   "NOP",
	OpHLT:   "HLT",
	OpLOAD:  "LOAD",
	OpSTORE: "STORE",
	OpLI:    "LI",
	OpLUI:   "LUI",
	OpCMP:   "CMP",
	OpADD:   "ADD",
	OpSUB:   "SUB",
	OpAND:   "AND",
	OpOR:    "OR",
	OpXOR:   "XOR",
	OpNOT:   "NOT",
	OpCMPI:  "CMPI",
	OpADDI:  "ADDI",
	OpSUBI:  "SUBI",
	OpANDI:  "ANDI",
	OpORI:   "ORI",
	OpXORI:  "XORI",
	OpJMP:   "JMP",
	OpJR:    "JR",
	OpJALR:  "JALR",
	OpBEQ:   "BEQ",
	OpBNE:   "BNE",
	OpBLT:   "BLT",
	OpBGT:   "BGT",
	OpBLTU:  "BLTU",
	OpBGTU:  "BGTU",
	OpADC:   "ADC",
	OpSBC:   "SBC",
}

// String returns the assembler mnemonic of the opcode. Unassigned opcodes
// execute as NOP and are rendered as such.
func (op Op) String() string {
	if int(op) < len(mnemonics) && mnemonics[op] != "" {
		return mnemonics[op]
	}
	return "NOP"
}

// IsConditionalBranch reports whether the opcode is one of BEQ..BGTU.
func (op Op) IsConditionalBranch() bool {
	return op >= OpBEQ && op <= OpBGTU
}

// IsComputedJump reports whether the jump target depends on a register.
func (op Op) IsComputedJump() bool {
	return op == OpJR || op == OpJALR
}

// IsJump reports whether the opcode can redirect the program counter.
func (op Op) IsJump() bool {
	return op == OpJMP || op.IsComputedJump() || op.IsConditionalBranch()
}

// ReadsFlags reports whether the instruction consumes the condition flags
// when it is decoded. These are exactly the opcodes with the top two opcode
// bits set.
func (op Op) ReadsFlags() bool {
	return op&0b11000 == 0b11000
}

// Instruction represents a decoded Turtle16 instruction.
type Instruction struct {
	Word   uint16 // Raw instruction word
	Op     Op     // Operation code
	Format Format // Encoding format

	Rd uint8 // Destination register (selector C)
	Ra uint8 // First source register (selector A)
	Rb uint8 // Second source register (selector B)

	// Imm is the sign-extended immediate for formats that carry one.
	Imm int16
}
