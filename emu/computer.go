package emu

// Computer models the Turtle16 computer as a whole: the architectural
// register file and flags, both memories and the peripherals reachable
// through the bus. Execution engines borrow it; it holds no execution
// policy of its own.
type Computer struct {
	Regs   RegFile
	Flags  Flags
	Memory *Memory
	IMem   *InstructionMemory
	Serial *Serial
	Bus    *Bus
}

// NewComputer creates a computer with zeroed state and the given port map.
func NewComputer(io IOConfig) *Computer {
	c := &Computer{
		Memory: NewMemory(),
		IMem:   NewInstructionMemory(),
		Serial: NewSerial(),
	}
	c.Bus = NewBus(io, c.Memory, c.IMem, c.Serial)
	return c
}

// LoadProgram writes words into instruction memory at addr.
func (c *Computer) LoadProgram(words []uint16, addr uint16) {
	c.IMem.Store(words, addr)
}

// ResetState clears registers, flags, data memory, serial buffers and the
// port latch. Instruction memory is left alone.
func (c *Computer) ResetState() {
	c.Regs = RegFile{}
	c.Flags = Flags{}
	c.Memory.Reset()
	c.Serial.Reset()
	c.Bus.Reset()
}
