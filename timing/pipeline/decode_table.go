package pipeline

import "github.com/sarchlab/t16sim/insts"

// DecodeTableSize is the number of entries in the decode table. The index
// packs the four condition flags above the five opcode bits.
const DecodeTableSize = 512

// DecodeIndex returns the table index for an opcode under the given flags.
// Each flag argument is 0 or 1.
func DecodeIndex(n, c, z, v uint8, opcode uint8) int {
	return int(n&1)<<8 | int(c&1)<<7 | int(z&1)<<6 | int(v&1)<<5 | int(opcode&0x1f)
}

// signal sets one field of an ID control word.
type signal struct {
	pos   uint
	width uint
	value uint32
}

func (s signal) apply(ctl uint32) uint32 {
	mask := uint32(1<<s.width-1) << s.pos
	return ctl&^mask | (s.value<<s.pos)&mask
}

func assert(pos uint) signal { return signal{pos: pos, width: 1, value: 0} }

func hlt() signal                 { return assert(CtlHLT) }
func selStoreOp(v uint32) signal  { return signal{pos: CtlSelStoreOp, width: 2, value: v} }
func selRightOp(v uint32) signal  { return signal{pos: CtlSelRightOp, width: 2, value: v} }
func flagsIn() signal             { return assert(CtlFI) }
func carryIn(v uint32) signal     { return signal{pos: CtlC0, width: 1, value: v} }
func aluFunction(v uint32) signal { return signal{pos: CtlI0, width: 3, value: v} }
func aluSources(v uint32) signal  { return signal{pos: CtlRS0, width: 2, value: v} }
func jump() signal                { return assert(CtlJ) }
func jumpAbsolute() signal        { return signal{pos: CtlJABS, width: 1, value: 0} }
func jumpRelative() signal        { return signal{pos: CtlJABS, width: 1, value: 1} }
func memLoad() signal             { return assert(CtlMemLoad) }
func memStore() signal            { return assert(CtlMemStore) }
func assertStoreOp() signal       { return assert(CtlAssertStoreOp) }
func writeBackALU() signal        { return signal{pos: CtlWriteBackSrc, width: 1, value: 0} }
func writeBackStoreOp() signal    { return signal{pos: CtlWriteBackSrc, width: 1, value: 1} }
func writeLow() signal            { return assert(CtlWRL) }
func writeHigh() signal           { return assert(CtlWRH) }
func writeBackEnable() signal     { return assert(CtlWBEN) }

func operandUsage(leftUnused, rightUnused uint32) []signal {
	return []signal{
		{pos: CtlLeftOperandIsUnused, width: 1, value: leftUnused},
		{pos: CtlRightOperandIsUnused, width: 1, value: rightUnused},
	}
}

func writeWord() []signal {
	return []signal{writeLow(), writeHigh(), writeBackEnable()}
}

func controlWord(groups ...[]signal) uint32 {
	ctl := NopControlWordID
	for _, group := range groups {
		for _, s := range group {
			ctl = s.apply(ctl)
		}
	}
	return ctl
}

func sigs(s ...signal) []signal { return s }

// aluEncoding is the C0 and function pair of an ALU operation.
type aluEncoding struct {
	c0 uint32
	fn uint32
}

var (
	encAdd = aluEncoding{c0: 0, fn: 0b011}
	encSub = aluEncoding{c0: 1, fn: 0b010}
	encAnd = aluEncoding{c0: 0, fn: 0b110}
	encOr  = aluEncoding{c0: 0, fn: 0b101}
	encXor = aluEncoding{c0: 0, fn: 0b100}
)

func aluRegister(enc aluEncoding) uint32 {
	return controlWord(
		sigs(selRightOp(RightOpRegister), flagsIn(), carryIn(enc.c0),
			aluFunction(enc.fn), aluSources(0b11), writeBackALU()),
		writeWord(),
		operandUsage(0, 0),
	)
}

func aluImmediate(enc aluEncoding) uint32 {
	return controlWord(
		sigs(selRightOp(RightOpImm5), flagsIn(), carryIn(enc.c0),
			aluFunction(enc.fn), aluSources(0b11), writeBackALU()),
		writeWord(),
		operandUsage(0, 1),
	)
}

// staticControl lists the control word of every opcode whose behavior does
// not depend on the flags. Opcodes missing here decode as NOP unless they
// are listed in conditionalControl.
var staticControl = map[insts.Op]uint32{
	insts.OpNOP: NopControlWordID,
	insts.OpHLT: controlWord(sigs(hlt()), operandUsage(1, 1)),
	insts.OpLOAD: controlWord(
		sigs(selRightOp(RightOpImm5), carryIn(0), aluFunction(0b011),
			aluSources(0b11), memLoad(), writeBackStoreOp()),
		writeWord(),
		operandUsage(0, 0),
	),
	insts.OpSTORE: controlWord(
		sigs(selStoreOp(StoreOpRegister), selRightOp(RightOpSplitImm5),
			carryIn(0), aluFunction(0b011), aluSources(0b11), memStore(),
			assertStoreOp(), writeBackStoreOp()),
		operandUsage(0, 0),
	),
	insts.OpLI: controlWord(
		sigs(selStoreOp(StoreOpImm8), assertStoreOp(), writeBackStoreOp()),
		writeWord(),
		operandUsage(1, 1),
	),
	insts.OpLUI: controlWord(
		sigs(selStoreOp(StoreOpImm8High), assertStoreOp(), writeBackStoreOp(),
			writeHigh(), writeBackEnable()),
		operandUsage(1, 1),
	),
	insts.OpCMP: controlWord(
		sigs(selRightOp(RightOpRegister), flagsIn(), carryIn(1),
			aluFunction(0b010), aluSources(0b11)),
		operandUsage(0, 0),
	),
	insts.OpADD: aluRegister(encAdd),
	insts.OpSUB: aluRegister(encSub),
	insts.OpAND: aluRegister(encAnd),
	insts.OpOR:  aluRegister(encOr),
	insts.OpXOR: aluRegister(encXor),
	insts.OpNOT: controlWord(
		sigs(carryIn(0), aluFunction(0b001), aluSources(0b01), writeBackALU()),
		writeWord(),
		operandUsage(0, 1),
	),
	insts.OpCMPI: controlWord(
		sigs(selRightOp(RightOpImm5), flagsIn(), carryIn(1),
			aluFunction(0b010), aluSources(0b11)),
		operandUsage(0, 1),
	),
	insts.OpADDI: aluImmediate(encAdd),
	insts.OpSUBI: aluImmediate(encSub),
	insts.OpANDI: aluImmediate(encAnd),
	insts.OpORI:  aluImmediate(encOr),
	insts.OpXORI: aluImmediate(encXor),
	insts.OpJMP: controlWord(
		sigs(selRightOp(RightOpImm11), carryIn(0), aluFunction(0b101),
			aluSources(0b10), jump(), jumpRelative()),
		operandUsage(1, 1),
	),
	insts.OpJR: controlWord(
		sigs(selRightOp(RightOpImm5), carryIn(0), aluFunction(0b011),
			aluSources(0b11), jump(), jumpAbsolute()),
		operandUsage(0, 1),
	),
	insts.OpJALR: controlWord(
		sigs(selStoreOp(StoreOpPC), selRightOp(RightOpImm5), carryIn(0),
			aluFunction(0b011), aluSources(0b11), jump(), jumpAbsolute(),
			assertStoreOp(), writeBackStoreOp()),
		writeWord(),
		operandUsage(0, 1),
	),
}

// relativeJump is the control word of a taken conditional branch. The ALU
// passes the 11-bit offset through and IF adds it to the program counter.
var relativeJump = controlWord(
	sigs(selStoreOp(StoreOpImm8High), selRightOp(RightOpImm11), carryIn(0),
		aluFunction(0b011), aluSources(0b10), jump(), jumpRelative()),
	operandUsage(1, 1),
)

// conditionalControl computes the control word of a flag-dependent opcode.
var conditionalControl = map[insts.Op]func(f flagBits) uint32{
	insts.OpBEQ:  branchOn(func(f flagBits) bool { return f.z == 1 }),
	insts.OpBNE:  branchOn(func(f flagBits) bool { return f.z == 0 }),
	insts.OpBLT:  branchOn(func(f flagBits) bool { return f.n != f.v }),
	insts.OpBGT:  branchOn(func(f flagBits) bool { return f.z == 0 && f.n == f.v }),
	insts.OpBLTU: branchOn(func(f flagBits) bool { return f.c == 0 }),
	insts.OpBGTU: branchOn(func(f flagBits) bool { return f.c == 1 && f.z == 0 }),
	insts.OpADC: func(f flagBits) uint32 {
		return aluRegister(aluEncoding{c0: uint32(f.c), fn: 0b011})
	},
	insts.OpSBC: func(f flagBits) uint32 {
		return aluRegister(aluEncoding{c0: uint32(f.c ^ 1), fn: 0b010})
	},
}

type flagBits struct {
	n, c, z, v uint8
}

func branchOn(cond func(f flagBits) bool) func(f flagBits) uint32 {
	return func(f flagBits) uint32 {
		if cond(f) {
			return relativeJump
		}
		return NopControlWordID
	}
}

// DecodeTable maps (flags, opcode) to the 23-bit ID control word.
type DecodeTable struct {
	entries [DecodeTableSize]uint32
}

// NewDecodeTable builds the decode table.
func NewDecodeTable() *DecodeTable {
	t := &DecodeTable{}
	for i := range t.entries {
		f := flagBits{
			n: uint8(i>>8) & 1,
			c: uint8(i>>7) & 1,
			z: uint8(i>>6) & 1,
			v: uint8(i>>5) & 1,
		}
		op := insts.Op(i & 0x1f)

		switch {
		case conditionalControl[op] != nil:
			t.entries[i] = conditionalControl[op](f)
		default:
			ctl, ok := staticControl[op]
			if !ok {
				ctl = NopControlWordID
			}
			t.entries[i] = ctl
		}
	}
	return t
}

// Lookup returns the control word for an opcode under the given flags.
func (t *DecodeTable) Lookup(n, c, z, v uint8, opcode uint8) uint32 {
	return t.entries[DecodeIndex(n, c, z, v, opcode)]
}

// Entry returns the control word at a raw table index.
func (t *DecodeTable) Entry(index int) uint32 {
	return t.entries[index]
}

// Entries returns a copy of the whole table.
func (t *DecodeTable) Entries() [DecodeTableSize]uint32 {
	return t.entries
}
