package emu

// ALUInput holds the inputs of the IDT7381 sixteen-bit ALU as wired in the
// Turtle16 EX stage: both operand registers are transparent and the result
// is driven straight to the F port.
type ALUInput struct {
	A, B uint16
	// F is the value of the internal F register, selected as the S operand
	// when RS is 0b00.
	F uint16
	// C0 is the carry in.
	C0 bool
	// I selects the function (I2 I1 I0).
	I uint8
	// RS selects the R and S operand sources (RS1 RS0).
	RS uint8
}

// ALUOutput holds the IDT7381 outputs.
type ALUOutput struct {
	F   uint16
	C16 bool
	Z   bool
	OVF bool
}

// ALU functions selected by I2 I1 I0.
const (
	ALUClear  uint8 = 0b000
	ALUSubR   uint8 = 0b001 // ~R + S + C0
	ALUSubS   uint8 = 0b010 // R + ~S + C0
	ALUAdd    uint8 = 0b011 // R + S + C0
	ALUXor    uint8 = 0b100
	ALUOr     uint8 = 0b101
	ALUAnd    uint8 = 0b110
	ALUPreset uint8 = 0b111
)

// IDT7381 computes one evaluation of the ALU.
func IDT7381(in ALUInput) ALUOutput {
	r, s := aluOperands(in)

	var c0 uint32
	if in.C0 {
		c0 = 1
	}

	var out ALUOutput
	var r1, s1 uint16
	arithmetic := true

	switch in.I & 7 {
	case ALUClear:
		out.F = 0
		arithmetic = false
	case ALUSubR:
		r1, s1 = ^r, s
	case ALUSubS:
		r1, s1 = r, ^s
	case ALUAdd:
		r1, s1 = r, s
	case ALUXor:
		out.F = r ^ s
		arithmetic = false
	case ALUOr:
		out.F = r | s
		arithmetic = false
	case ALUAnd:
		out.F = r & s
		arithmetic = false
	case ALUPreset:
		out.F = 0xffff
		arithmetic = false
	}

	if arithmetic {
		sum := uint32(r1) + uint32(s1) + c0
		out.F = uint16(sum)
		out.C16 = sum > 0xffff
		if r1&0x8000 == s1&0x8000 {
			out.OVF = r1&0x8000 != out.F&0x8000
		}
	}

	out.Z = out.F == 0
	return out
}

func aluOperands(in ALUInput) (r, s uint16) {
	switch in.RS & 3 {
	case 0b00:
		return in.A, in.F
	case 0b01:
		return in.A, 0
	case 0b10:
		return 0, in.B
	default:
		return in.A, in.B
	}
}
