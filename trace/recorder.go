package trace

import (
	"errors"

	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/timing/pipeline"
)

// DefaultMaxLength is the default limit on recorded instructions, markers
// excluded.
const DefaultMaxLength = 1024

var (
	// ErrTraceTooLong is returned when a recording exceeds its limit.
	ErrTraceTooLong = errors.New("trace exceeds maximum length")

	// ErrTraceHalted is returned when HLT executes during a recording.
	ErrTraceHalted = errors.New("trace reached HLT")

	// ErrRecorderClosed is returned when recording into a finished or
	// aborted recorder.
	ErrRecorderClosed = errors.New("recorder is closed")
)

// Recorder builds a trace from the instructions leaving EX.
type Recorder struct {
	start        uint16
	maxLength    int
	instructions []Instruction
	closed       bool
}

// NewRecorder starts a recording at start. The leading marker is added
// immediately.
func NewRecorder(start uint16, maxLength int) *Recorder {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Recorder{
		start:     start,
		maxLength: maxLength,
		instructions: []Instruction{{
			PC:           start,
			Word:         insts.NOP(),
			IsBreakpoint: true,
		}},
	}
}

// Start returns the address the recording began at.
func (r *Recorder) Start() uint16 {
	return r.start
}

// Len returns the number of instructions recorded so far, markers
// excluded.
func (r *Recorder) Len() int {
	return len(r.instructions) - 1
}

// Record appends one executed instruction. An error means the recording
// cannot be completed and the caller should abort it.
func (r *Recorder) Record(e pipeline.Execution) error {
	if r.closed {
		return ErrRecorderClosed
	}

	op := insts.Opcode(e.Word)
	ins := Instruction{PC: e.PC, Word: e.Word}

	switch {
	case op == insts.OpHLT:
		return ErrTraceHalted
	case op.IsConditionalBranch():
		ins.GuardFlags = e.Flags
		ins.HasGuardFlags = true
	case op.IsComputedJump():
		ins.GuardAddress = e.Target
		ins.HasGuardAddress = true
	}

	if r.Len() >= r.maxLength {
		return ErrTraceTooLong
	}

	r.instructions = append(r.instructions, ins)
	return nil
}

// Finish appends the trailing marker and returns the trace. Execution
// continues at next when the trace completes.
func (r *Recorder) Finish(next uint16) (*Trace, error) {
	if r.closed {
		return nil, ErrRecorderClosed
	}
	r.closed = true

	r.instructions = append(r.instructions, Instruction{
		PC:           next,
		Word:         insts.NOP(),
		GuardFail:    true,
		IsBreakpoint: true,
	})
	return NewTrace(r.instructions)
}

// Abort discards the recording.
func (r *Recorder) Abort() {
	r.closed = true
	r.instructions = nil
}
