package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/vm"
)

// BenchmarkResult holds the results of running one benchmark in both
// execution modes.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// InterpretedSteps and InterpretedCycles describe the run with replay
	// disabled. Every step is one pipeline clock.
	InterpretedSteps  uint64 `json:"interpreted_steps"`
	InterpretedCycles uint64 `json:"interpreted_cycles"`

	// TracedSteps and TracedCycles describe the run with replay enabled.
	TracedSteps  uint64 `json:"traced_steps"`
	TracedCycles uint64 `json:"traced_cycles"`

	// ReplayedInstructions is the number of instructions retired by
	// trace replay in the traced run.
	ReplayedInstructions uint64 `json:"replayed_instructions"`

	// TracesCached is the number of traces in the cache at the end of the
	// traced run.
	TracesCached int `json:"traces_cached"`

	// StepReduction is the fraction of steps saved by tracing.
	StepReduction float64 `json:"step_reduction"`

	// Equivalent is set when both runs retired the same instructions with
	// the same effects and produced the same serial output.
	Equivalent bool `json:"equivalent"`

	// Verified is set when the traced run produced the expected registers
	// and output.
	Verified bool `json:"verified"`

	// MatchesReference is set when the traced run ended in the same
	// registers, flags, data memory and output as the functional emulator.
	MatchesReference bool `json:"matches_reference"`

	// Error describes why a run failed, if it did
	Error string `json:"error,omitempty"`

	// Output is the serial output of the traced run
	Output string `json:"output"`

	// WallTime is the time taken by both runs
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Program is loaded at address zero
	Program []uint16

	// Input is queued on the serial port after reset
	Input []byte

	// Expected maps registers to their values at halt
	Expected map[uint8]uint16

	// ExpectedOutput is the serial output at halt
	ExpectedOutput string
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// VM is the configuration both runs start from. The harness only
	// changes AllowsRunningTraces.
	VM *vm.Config

	// MaxSteps bounds each run
	MaxSteps uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		VM:       vm.DefaultConfig(),
		MaxSteps: 10_000_000,
		Output:   os.Stdout,
		Verbose:  false,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.VM == nil {
		config.VM = vm.DefaultConfig()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "ran %s: %d -> %d steps\n",
				result.Name, result.InterpretedSteps, result.TracedSteps)
		}
		results = append(results, result)
	}

	return results
}

// Run is the outcome of running a benchmark in one mode.
type Run struct {
	VM      *vm.VM
	Retired []emu.Retirement
}

// Execute runs a benchmark on a fresh VM built from config.
func Execute(bench Benchmark, config *vm.Config, maxSteps uint64) (*Run, error) {
	run := &Run{}

	v, err := vm.NewVM(config, vm.WithName(bench.Name), vm.WithRetireHook(func(r emu.Retirement) {
		run.Retired = append(run.Retired, r)
	}))
	if err != nil {
		return nil, err
	}
	run.VM = v

	v.LoadProgram(bench.Program, 0)
	v.Reset()
	v.Computer().Serial.Feed(bench.Input)

	if err := v.RunUntilHalted(maxSteps); err != nil {
		return run, fmt.Errorf("%s: %w", bench.Name, err)
	}
	return run, nil
}

// Reference runs a benchmark on the functional emulator and returns the
// computer it halted with.
func Reference(bench Benchmark, io emu.IOConfig, maxInstructions uint64) (*emu.Computer, error) {
	c := emu.NewComputer(io)
	c.LoadProgram(bench.Program, 0)
	c.Serial.Feed(bench.Input)

	e := emu.NewEmulator(c, emu.WithMaxInstructions(maxInstructions))
	if err := e.Run(); err != nil {
		return c, fmt.Errorf("%s: reference: %w", bench.Name, err)
	}
	return c, nil
}

// sameState reports whether two computers hold the same architectural
// state. Instruction memory is not compared.
func sameState(a, b *emu.Computer) bool {
	return a.Regs == b.Regs &&
		a.Flags == b.Flags &&
		slices.Equal(a.Memory.Words(), b.Memory.Words()) &&
		slices.Equal(a.Serial.Output(), b.Serial.Output())
}

// Verify checks the registers and serial output a run ended with.
func (b Benchmark) Verify(c *emu.Computer) error {
	for reg, want := range b.Expected {
		if got := c.Regs.ReadReg(reg); got != want {
			return fmt.Errorf("%s: r%d = %d, expected %d", b.Name, reg, got, want)
		}
	}
	if got := string(c.Serial.Output()); got != b.ExpectedOutput {
		return fmt.Errorf("%s: serial output %q, expected %q", b.Name, got, b.ExpectedOutput)
	}
	return nil
}

// runBenchmark executes a single benchmark in both modes.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}

	interpreted := h.config.VM.Clone()
	interpreted.AllowsRunningTraces = false
	traced := h.config.VM.Clone()
	traced.AllowsRunningTraces = true

	start := time.Now()
	plain, err := Execute(bench, interpreted, h.config.MaxSteps)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	fast, err := Execute(bench, traced, h.config.MaxSteps)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.WallTime = time.Since(start)

	reference, err := Reference(bench, h.config.VM.IO, h.config.MaxSteps)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.MatchesReference = sameState(reference, fast.VM.Computer())

	result.InstructionsRetired = uint64(len(fast.Retired))
	result.InterpretedSteps = plain.VM.StepsExecuted()
	result.InterpretedCycles = plain.VM.Cycles()
	result.TracedSteps = fast.VM.StepsExecuted()
	result.TracedCycles = fast.VM.Cycles()
	result.ReplayedInstructions = fast.VM.ReplayedInstructions()
	result.TracesCached = fast.VM.TraceCache().Len()
	result.Output = string(fast.VM.Computer().Serial.Output())
	if result.InterpretedSteps > 0 {
		result.StepReduction = 1 - float64(result.TracedSteps)/float64(result.InterpretedSteps)
	}

	result.Equivalent = sameRetirements(plain.Retired, fast.Retired) &&
		string(plain.VM.Computer().Serial.Output()) == result.Output

	if err := bench.Verify(fast.VM.Computer()); err != nil {
		result.Error = err.Error()
	} else {
		result.Verified = true
	}

	return result
}

func sameRetirements(a, b []emu.Retirement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== T16Sim Tracing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired:  %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Interpreted ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Steps:                 %d\n", r.InterpretedSteps)
		_, _ = fmt.Fprintf(h.config.Output, "  Cycles:                %d\n", r.InterpretedCycles)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Traced ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Steps:                 %d\n", r.TracedSteps)
		_, _ = fmt.Fprintf(h.config.Output, "  Cycles:                %d\n", r.TracedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Replayed Instructions: %d\n", r.ReplayedInstructions)
		_, _ = fmt.Fprintf(h.config.Output, "  Traces Cached:         %d\n", r.TracesCached)
		_, _ = fmt.Fprintf(h.config.Output, "  Step Reduction:        %.1f%%\n", 100*r.StepReduction)
		_, _ = fmt.Fprintf(h.config.Output, "  Equivalent:            %v\n", r.Equivalent)
		_, _ = fmt.Fprintf(h.config.Output, "  Matches Reference:     %v\n", r.MatchesReference)
		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,instructions,interpreted_steps,interpreted_cycles,traced_steps,traced_cycles,replayed,traces,step_reduction,equivalent,verified,matches_reference")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%d,%d,%d,%d,%.3f,%v,%v,%v\n",
			r.Name,
			r.InstructionsRetired,
			r.InterpretedSteps,
			r.InterpretedCycles,
			r.TracedSteps,
			r.TracedCycles,
			r.ReplayedInstructions,
			r.TracesCached,
			r.StepReduction,
			r.Equivalent,
			r.Verified,
			r.MatchesReference,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config is the VM configuration both modes started from
	Config *vm.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// TotalInterpretedSteps and TotalTracedSteps sum the steps per mode
	TotalInterpretedSteps uint64 `json:"total_interpreted_steps"`
	TotalTracedSteps      uint64 `json:"total_traced_steps"`

	// AllEquivalent is set when every benchmark ran identically in both
	// modes
	AllEquivalent bool `json:"all_equivalent"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	summary := ReportSummary{
		TotalBenchmarks: len(results),
		AllEquivalent:   true,
	}
	for _, r := range results {
		summary.TotalInterpretedSteps += r.InterpretedSteps
		summary.TotalTracedSteps += r.TracedSteps
		summary.TotalWallTime += r.WallTime
		summary.AllEquivalent = summary.AllEquivalent && r.Equivalent
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    h.config.VM,
		},
		Results: results,
		Summary: summary,
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
