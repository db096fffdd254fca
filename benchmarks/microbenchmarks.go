// Package benchmarks provides Turtle16 microbenchmarks and a harness that
// runs each one interpreted and traced, comparing steps and results.
package benchmarks

import (
	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// loops long enough for its hot path to be traced.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		CountedLoop(100),
		NestedLoops(20, 20),
		SubroutineCalls(50),
		MemorySum(60),
		SerialAlphabet(),
		SerialEcho("the quick brown fox jumps over the lazy dog"),
		SelfModifyingLoop(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		CountedLoop(10),
		SubroutineCalls(10),
		SerialAlphabet(),
	}
}

// CountedLoop increments r0 up to n. With n = 10 this is the classic
// counter program: LI, LI, ADDI, CMP, NOP, NOP, BNE, NOP, NOP, HLT.
func CountedLoop(n uint16) Benchmark {
	b := NewBuilder()
	b.LoadImm(0, 0).LoadImm(1, n)
	b.Label("loop").Emit(
		insts.ADDI(0, 0, 1),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "loop")
	b.Halt()

	return Benchmark{
		Name:        "counted_loop",
		Description: "single counted loop - one trace replayed until the exit guard fails",
		Program:     b.Words(),
		Expected:    map[uint8]uint16{0: n},
	}
}

// NestedLoops runs an inner loop of inner iterations inside an outer loop
// of outer iterations. Tracing caches one trace per loop head.
func NestedLoops(outer, inner uint16) Benchmark {
	b := NewBuilder()
	b.LoadImm(2, 0).LoadImm(3, outer).LoadImm(1, inner)
	b.Label("outer").Emit(insts.LI(0, 0))
	b.Label("inner").Emit(
		insts.ADDI(0, 0, 1),
		insts.CMP(0, 1),
	).Branch(insts.BNE, "inner")
	b.Emit(insts.NOP(), insts.NOP())
	b.Emit(
		insts.ADDI(2, 2, 1),
		insts.CMP(2, 3),
	).Branch(insts.BNE, "outer")
	b.Halt()

	return Benchmark{
		Name:        "nested_loops",
		Description: "two nested counted loops - the outer trace chains into the inner one",
		Program:     b.Words(),
		Expected:    map[uint8]uint16{0: inner, 2: outer},
	}
}

// SubroutineCalls calls a subroutine through JALR n times. The subroutine
// returns with JR, so the trace carries two address guards.
func SubroutineCalls(n uint16) Benchmark {
	const subroutine = 0x40

	b := NewBuilder()
	b.LoadImm(0, 0).LoadImm(1, n).LoadImm(2, 0).LoadImm(5, subroutine)
	b.Label("loop").Emit(
		insts.JALR(7, 5, 0),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "loop")
	b.Halt()

	b.Pad(subroutine).Emit(
		insts.ADDI(0, 0, 1),
		insts.ADD(2, 2, 0),
		insts.JR(7, -1),
	)

	return Benchmark{
		Name:        "subroutine_calls",
		Description: "JALR call and JR return in a loop - exercises address guards",
		Program:     b.Words(),
		Expected:    map[uint8]uint16{0: n, 2: n * (n + 1) / 2},
	}
}

// MemorySum stores 0..n-1 to an array and then sums it with loads.
func MemorySum(n uint16) Benchmark {
	const base = 0x100

	b := NewBuilder()
	b.LoadImm(3, base).LoadImm(0, 0).LoadImm(1, n)
	b.Label("fill").Emit(
		insts.STORE(0, 3, 0),
		insts.ADDI(3, 3, 1),
		insts.ADDI(0, 0, 1),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "fill")
	b.Emit(insts.NOP(), insts.NOP())

	b.LoadImm(3, base).LoadImm(0, 0).LoadImm(2, 0)
	b.Label("sum").Emit(
		insts.LOAD(4, 3, 0),
		insts.ADDI(3, 3, 1),
		insts.ADD(2, 2, 4),
		insts.ADDI(0, 0, 1),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "sum")
	b.Halt()

	return Benchmark{
		Name:        "memory_sum",
		Description: "store an array then sum it with loads - load-use stalls inside traces",
		Program:     b.Words(),
		Expected:    map[uint8]uint16{0: n, 2: n * (n - 1) / 2},
	}
}

// SerialAlphabet writes A to Z to the serial port.
func SerialAlphabet() Benchmark {
	io := emu.DefaultIOConfig()

	b := NewBuilder()
	b.LoadImm(4, io.SerialOut).LoadImm(2, 'A').LoadImm(0, 0).LoadImm(1, 26)
	b.Label("loop").Emit(
		insts.STORE(2, 4, 0),
		insts.ADDI(2, 2, 1),
		insts.ADDI(0, 0, 1),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "loop")
	b.Halt()

	return Benchmark{
		Name:           "serial_alphabet",
		Description:    "serial output from inside a trace",
		Program:        b.Words(),
		Expected:       map[uint8]uint16{0: 26},
		ExpectedOutput: "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	}
}

// SerialEcho copies queued serial input to serial output until the input
// queue is empty.
func SerialEcho(input string) Benchmark {
	io := emu.DefaultIOConfig()

	b := NewBuilder()
	b.LoadImm(4, io.SerialOut)
	b.Label("loop").Emit(
		insts.LOAD(2, 4, int(io.SerialIn-io.SerialOut)),
		insts.NOP(),
		insts.STORE(2, 4, 0),
		insts.LOAD(3, 4, int(io.SerialCount-io.SerialOut)),
		insts.NOP(),
		insts.NOP(),
		insts.CMPI(3, 0),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "loop")
	b.Halt()

	return Benchmark{
		Name:           "serial_echo",
		Description:    "serial input polled and echoed from inside a trace",
		Program:        b.Words(),
		Input:          []byte(input),
		Expected:       map[uint8]uint16{3: 0},
		ExpectedOutput: input,
	}
}

// SelfModifyingLoop runs a hot loop, patches an instruction inside it
// through the instruction memory port and runs the loop again. The second
// pass must see the patched instruction.
func SelfModifyingLoop() Benchmark {
	io := emu.DefaultIOConfig()
	patch := insts.ADDI(3, 3, 2)

	b := NewBuilder()
	b.LoadImm(0, 0).LoadImm(1, 8).LoadImm(3, 0).LoadImm(5, 0)
	b.Label("loop").Emit(insts.ADDI(0, 0, 1))
	patchAt := b.PC()
	b.Emit(
		insts.ADDI(3, 3, 1),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "loop")
	b.Emit(insts.NOP(), insts.NOP())

	b.Emit(insts.CMPI(5, 0), insts.NOP(), insts.NOP()).Branch(insts.BNE, "done")
	b.Emit(insts.NOP(), insts.NOP())

	b.LoadImm(5, 1).LoadImm(4, io.IMemAddr).LoadImm(6, patchAt)
	b.Emit(insts.STORE(6, 4, 0))
	b.LoadImm(6, patch)
	b.Emit(insts.STORE(6, 4, int(io.IMemData-io.IMemAddr)))
	b.LoadImm(0, 0).Branch(insts.JMP, "loop")
	b.Emit(insts.NOP(), insts.NOP())

	b.Label("done").Halt()

	return Benchmark{
		Name:        "self_modifying_loop",
		Description: "a hot loop patched through the instruction memory port - invalidates traces",
		Program:     b.Words(),
		Expected:    map[uint8]uint16{0: 8, 3: 24},
	}
}

// PatchedLoop runs CountedLoop(10) and then overwrites the ADDI at the
// loop head with patch through the instruction memory port. The loop head
// is returned with the benchmark.
func PatchedLoop(patch uint16) (Benchmark, uint16) {
	io := emu.DefaultIOConfig()

	b := NewBuilder()
	b.LoadImm(0, 0).LoadImm(1, 10)
	loop := b.PC()
	b.Label("loop").Emit(
		insts.ADDI(0, 0, 1),
		insts.CMP(0, 1),
		insts.NOP(),
		insts.NOP(),
	).Branch(insts.BNE, "loop")
	b.Emit(insts.NOP(), insts.NOP())

	b.LoadImm(4, io.IMemAddr).LoadImm(5, loop).LoadImm(6, patch)
	b.Emit(
		insts.STORE(5, 4, 0),
		insts.STORE(6, 4, int(io.IMemData-io.IMemAddr)),
	)
	b.Halt()

	return Benchmark{
		Name:        "patched_loop",
		Description: "a hot loop overwritten after it finishes",
		Program:     b.Words(),
		Expected:    map[uint8]uint16{0: 10},
	}, loop
}
