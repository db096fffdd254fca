package emu

// SerialEmpty is returned by a serial read when no input is queued.
const SerialEmpty uint16 = 0xffff

// Serial models the console side channel: an input queue the program polls
// and an output stream the host observes.
type Serial struct {
	input    []byte
	output   []byte
	onOutput func(b byte)
}

// NewSerial creates an empty serial port.
func NewSerial() *Serial {
	return &Serial{}
}

// SetOutputHandler installs a callback invoked for every output byte.
func (s *Serial) SetOutputHandler(fn func(b byte)) {
	s.onOutput = fn
}

// Feed appends bytes to the input queue.
func (s *Serial) Feed(data []byte) {
	s.input = append(s.input, data...)
}

// Pending returns the number of queued input bytes.
func (s *Serial) Pending() int {
	return len(s.input)
}

// Read pops one input byte, or returns SerialEmpty.
func (s *Serial) Read() uint16 {
	if len(s.input) == 0 {
		return SerialEmpty
	}
	b := s.input[0]
	s.input = s.input[1:]
	return uint16(b)
}

// Write emits one output byte.
func (s *Serial) Write(b byte) {
	s.output = append(s.output, b)
	if s.onOutput != nil {
		s.onOutput(b)
	}
}

// Output returns everything written so far.
func (s *Serial) Output() []byte {
	return s.output
}

// Reset drops queued input and accumulated output.
func (s *Serial) Reset() {
	s.input = nil
	s.output = nil
}
