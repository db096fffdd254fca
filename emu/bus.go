package emu

// IOConfig assigns the memory-mapped I/O ports. Port numbers are a firmware
// convention; every port must be distinct.
type IOConfig struct {
	// SerialOut accepts a store whose low byte is written to the console.
	SerialOut uint16 `json:"serial_out"`
	// SerialIn pops one queued input byte on load.
	SerialIn uint16 `json:"serial_in"`
	// SerialCount reports the number of queued input bytes on load.
	SerialCount uint16 `json:"serial_count"`
	// IMemAddr is the address latch of the instruction memory port.
	IMemAddr uint16 `json:"imem_addr"`
	// IMemData writes (or reads) the instruction word at the latch and
	// advances the latch after a write.
	IMemData uint16 `json:"imem_data"`
}

// DefaultIOConfig returns the standard port map on the 0xFF00 page.
func DefaultIOConfig() IOConfig {
	return IOConfig{
		SerialOut:   0xff00,
		SerialIn:    0xff01,
		SerialCount: 0xff02,
		IMemAddr:    0xff08,
		IMemData:    0xff09,
	}
}

func (c IOConfig) ports() []uint16 {
	return []uint16{c.SerialOut, c.SerialIn, c.SerialCount, c.IMemAddr, c.IMemData}
}

// Distinct reports whether every port has its own address.
func (c IOConfig) Distinct() bool {
	seen := make(map[uint16]bool)
	for _, p := range c.ports() {
		if seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// Bus routes MEM-stage accesses to data memory or to an I/O port.
type Bus struct {
	config   IOConfig
	memory   *Memory
	imem     *InstructionMemory
	serial   *Serial
	imemAddr uint16
}

// NewBus creates a bus over the given memories and serial port.
func NewBus(config IOConfig, memory *Memory, imem *InstructionMemory, serial *Serial) *Bus {
	return &Bus{
		config: config,
		memory: memory,
		imem:   imem,
		serial: serial,
	}
}

// Load reads a word from data memory or a mapped port.
func (b *Bus) Load(addr uint16) uint16 {
	switch addr {
	case b.config.SerialIn:
		return b.serial.Read()
	case b.config.SerialCount:
		return uint16(b.serial.Pending())
	case b.config.IMemAddr:
		return b.imemAddr
	case b.config.IMemData:
		return b.imem.Load(b.imemAddr)
	case b.config.SerialOut:
		return 0
	}
	return b.memory.Load(addr)
}

// Store writes a word to data memory or a mapped port.
func (b *Bus) Store(value, addr uint16) {
	switch addr {
	case b.config.SerialOut:
		b.serial.Write(byte(value))
	case b.config.IMemAddr:
		b.imemAddr = value
	case b.config.IMemData:
		b.imem.Write(b.imemAddr, value)
		b.imemAddr++
	case b.config.SerialIn, b.config.SerialCount:
		// read-only
	default:
		b.memory.Store(value, addr)
	}
}

// IMemLatch returns the instruction memory port's address latch.
func (b *Bus) IMemLatch() uint16 {
	return b.imemAddr
}

// Reset clears the port latch.
func (b *Bus) Reset() {
	b.imemAddr = 0
}
