package insts

// Decoder decodes Turtle16 machine words into instructions.
type Decoder struct{}

// NewDecoder creates a new Turtle16 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Opcode extracts the opcode field of an instruction word.
func Opcode(word uint16) Op {
	return Op((word >> OpcodeShift) & 0x1f)
}

// SelC extracts the destination register selector.
func SelC(word uint16) uint8 {
	return uint8((word >> SelCShift) & 7)
}

// SelA extracts the first source register selector.
func SelA(word uint16) uint8 {
	return uint8((word >> SelAShift) & 7)
}

// SelB extracts the second source register selector.
func SelB(word uint16) uint8 {
	return uint8((word >> SelBShift) & 7)
}

// Imm5 returns the 5-bit immediate sign-extended to 16 bits.
func Imm5(word uint16) uint16 {
	imm := word & 0x1f
	if imm&0x10 != 0 {
		imm |= 0xffe0
	}
	return imm
}

// SplitImm5 returns the split 5-bit immediate of the IRR format
// sign-extended to 16 bits.
func SplitImm5(word uint16) uint16 {
	imm := ((word >> 6) & 0b11100) | (word & 0b11)
	if imm&0x10 != 0 {
		imm |= 0xffe0
	}
	return imm
}

// Imm8 returns the 8-bit immediate sign-extended to 16 bits.
func Imm8(word uint16) uint16 {
	imm := word & 0xff
	if imm&0x80 != 0 {
		imm |= 0xff00
	}
	return imm
}

// Imm11 returns the 11-bit immediate sign-extended to 16 bits.
func Imm11(word uint16) uint16 {
	imm := word & 0x7ff
	if imm&0x400 != 0 {
		imm |= 0xf800
	}
	return imm
}

// Decode decodes a 16-bit Turtle16 instruction word.
func (d *Decoder) Decode(word uint16) *Instruction {
	inst := &Instruction{
		Word:   word,
		Op:     Opcode(word),
		Format: FormatUnknown,
	}

	switch inst.Op {
	case OpNOP, OpHLT:
		inst.Format = FormatX
	case OpCMP, OpADD, OpSUB, OpAND, OpOR, OpXOR, OpNOT, OpADC, OpSBC:
		d.decodeRRR(word, inst)
	case OpLOAD, OpCMPI, OpADDI, OpSUBI, OpANDI, OpORI, OpXORI, OpJR, OpJALR:
		d.decodeRRI(word, inst)
	case OpLI, OpLUI:
		d.decodeRII(word, inst)
	case OpSTORE:
		d.decodeIRR(word, inst)
	case OpJMP, OpBEQ, OpBNE, OpBLT, OpBGT, OpBLTU, OpBGTU:
		inst.Format = FormatIII
		inst.Imm = int16(Imm11(word))
	default:
		// Unassigned opcodes behave as NOP.
		inst.Op = OpNOP
		inst.Format = FormatX
	}

	return inst
}

func (d *Decoder) decodeRRR(word uint16, inst *Instruction) {
	inst.Format = FormatRRR
	inst.Rd = SelC(word)
	inst.Ra = SelA(word)
	inst.Rb = SelB(word)
}

func (d *Decoder) decodeRRI(word uint16, inst *Instruction) {
	inst.Format = FormatRRI
	inst.Rd = SelC(word)
	inst.Ra = SelA(word)
	inst.Imm = int16(Imm5(word))
}

func (d *Decoder) decodeRII(word uint16, inst *Instruction) {
	inst.Format = FormatRII
	inst.Rd = SelC(word)
	if inst.Op == OpLUI {
		inst.Imm = int16(word & 0xff)
		return
	}
	inst.Imm = int16(Imm8(word))
}

func (d *Decoder) decodeIRR(word uint16, inst *Instruction) {
	inst.Format = FormatIRR
	inst.Ra = SelA(word)
	inst.Rb = SelB(word)
	inst.Imm = int16(SplitImm5(word))
}
