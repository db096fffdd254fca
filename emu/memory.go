package emu

// MemorySize is the number of 16-bit words in each address space.
const MemorySize = 1 << 16

// Memory is a word-addressed 64K x 16-bit data memory.
type Memory struct {
	words []uint16
}

// NewMemory creates a zero-filled data memory.
func NewMemory() *Memory {
	return &Memory{words: make([]uint16, MemorySize)}
}

// Load reads the word at addr.
func (m *Memory) Load(addr uint16) uint16 {
	return m.words[addr]
}

// Store writes value to addr.
func (m *Memory) Store(value, addr uint16) {
	m.words[addr] = value
}

// StoreWords copies words into memory starting at addr, wrapping at the
// end of the address space.
func (m *Memory) StoreWords(words []uint16, addr uint16) {
	for i, w := range words {
		m.words[addr+uint16(i)] = w
	}
}

// Reset clears all of memory.
func (m *Memory) Reset() {
	clear(m.words)
}

// Words returns the backing slice. Callers must not retain it across
// writes they do not own.
func (m *Memory) Words() []uint16 {
	return m.words
}

// InstructionMemory is the 64K x 16-bit instruction store. It keeps a
// version counter which every write advances, and notifies listeners of
// each write so that derived state such as a trace cache can be dropped.
type InstructionMemory struct {
	words     []uint16
	version   uint64
	listeners []func(addr uint16)
}

// NewInstructionMemory creates a zero-filled instruction memory. A zero
// word decodes as NOP.
func NewInstructionMemory() *InstructionMemory {
	return &InstructionMemory{words: make([]uint16, MemorySize)}
}

// Load fetches the word at addr.
func (m *InstructionMemory) Load(addr uint16) uint16 {
	return m.words[addr]
}

// Version returns a counter that changes whenever memory is written.
func (m *InstructionMemory) Version() uint64 {
	return m.version
}

// OnWrite registers a listener called after every write.
func (m *InstructionMemory) OnWrite(fn func(addr uint16)) {
	m.listeners = append(m.listeners, fn)
}

// Write stores a single word.
func (m *InstructionMemory) Write(addr, value uint16) {
	m.words[addr] = value
	m.version++
	m.notify(addr)
}

// Store copies a block of words starting at addr. It counts as a write to
// instruction memory even when the words are unchanged.
func (m *InstructionMemory) Store(words []uint16, addr uint16) {
	for i, w := range words {
		m.words[addr+uint16(i)] = w
	}
	m.version++
	m.notify(addr)
}

// Words returns the backing slice.
func (m *InstructionMemory) Words() []uint16 {
	return m.words
}

func (m *InstructionMemory) notify(addr uint16) {
	for _, fn := range m.listeners {
		fn(addr)
	}
}
