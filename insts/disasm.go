package insts

import "fmt"

// String renders the instruction in assembler syntax.
func (i *Instruction) String() string {
	switch i.Format {
	case FormatRRR:
		switch i.Op {
		case OpCMP:
			return fmt.Sprintf("CMP r%d, r%d", i.Ra, i.Rb)
		case OpNOT:
			return fmt.Sprintf("NOT r%d, r%d", i.Rd, i.Ra)
		}
		return fmt.Sprintf("%s r%d, r%d, r%d", i.Op, i.Rd, i.Ra, i.Rb)
	case FormatRRI:
		switch i.Op {
		case OpCMPI:
			return fmt.Sprintf("CMPI r%d, %d", i.Ra, i.Imm)
		case OpJR:
			return fmt.Sprintf("JR r%d, %d", i.Ra, i.Imm)
		}
		return fmt.Sprintf("%s r%d, r%d, %d", i.Op, i.Rd, i.Ra, i.Imm)
	case FormatRII:
		return fmt.Sprintf("%s r%d, %d", i.Op, i.Rd, i.Imm)
	case FormatIRR:
		return fmt.Sprintf("STORE r%d, r%d, %d", i.Rb, i.Ra, i.Imm)
	case FormatIII:
		return fmt.Sprintf("%s %d", i.Op, i.Imm)
	}
	return i.Op.String()
}

// Disassemble decodes a word and renders it in assembler syntax.
func Disassemble(word uint16) string {
	return NewDecoder().Decode(word).String()
}

// DisassembleProgram renders one line per word, prefixed with its address.
func DisassembleProgram(words []uint16, origin uint16) []string {
	decoder := NewDecoder()
	lines := make([]string, len(words))
	for i, word := range words {
		lines[i] = fmt.Sprintf("0x%04x: %s", origin+uint16(i), decoder.Decode(word))
	}
	return lines
}
