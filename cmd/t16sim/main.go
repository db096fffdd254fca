// Package main provides the entry point for T16Sim, a cycle-accurate
// Turtle16 simulator with a tracing replay engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/loader"
	"github.com/sarchlab/t16sim/retirelog"
	"github.com/sarchlab/t16sim/trace"
	"github.com/sarchlab/t16sim/vm"
)

var (
	configPath = flag.String("config", "", "Path to VM configuration JSON file")
	interpret  = flag.Bool("interpret", false, "Disable trace replay")
	reference  = flag.Bool("reference", false, "Run on the functional emulator instead of the pipeline")
	maxSteps   = flag.Uint64("max-steps", 0, "Stop after this many steps (0 means no limit)")
	verbose    = flag.Bool("v", false, "Log VM events")
	retires    = flag.Bool("retires", false, "With -v, also log every retired instruction")
	dumpTraces = flag.Bool("dump-traces", false, "Print the cached traces at exit")
	disasm     = flag.Bool("disasm", false, "Print the program disassembly and exit")
	input      = flag.String("input", "", "Bytes queued on the serial port")
	inputFile  = flag.String("input-file", "", "File whose contents are queued on the serial port")
	logPath    = flag.String("log", "", "Write a retirement log to this path")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: t16sim [options] <program.{t16,hex,bin}>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.LoadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		printDisassembly(os.Stdout, prog)
		return
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading VM config: %v\n", err)
		os.Exit(1)
	}
	if *interpret {
		config.AllowsRunningTraces = false
	}

	serialInput := []byte(*input)
	if *inputFile != "" {
		data, err := os.ReadFile(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading serial input: %v\n", err)
			os.Exit(1)
		}
		serialInput = append(serialInput, data...)
	}

	if *reference {
		os.Exit(runReference(prog, config, serialInput))
	}
	os.Exit(runVM(prog, programPath, config, serialInput))
}

// loadConfig returns the default configuration or the one at path.
func loadConfig(path string) (*vm.Config, error) {
	if path == "" {
		return vm.DefaultConfig(), nil
	}

	config, err := vm.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vm config: %w", err)
	}
	return config, nil
}

// runVM runs the program on the tracing VM and prints a report.
func runVM(prog *loader.Program, programPath string, config *vm.Config, serialInput []byte) int {
	var retired uint64
	var log *retirelog.Writer
	var logFile *os.File

	if *logPath != "" {
		var err error
		logFile, err = os.Create(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating retirement log: %v\n", err)
			return 1
		}
		defer func() { _ = logFile.Close() }()

		log, err = retirelog.NewWriter(logFile, programPath, config.AllowsRunningTraces)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating retirement log: %v\n", err)
			return 1
		}
	}

	var logErr error
	v, err := vm.NewVM(config, vm.WithRetireHook(func(r emu.Retirement) {
		retired++
		if log != nil && logErr == nil {
			logErr = log.Write(r)
		}
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating VM: %v\n", err)
		return 1
	}

	if *verbose {
		v.AcceptHook(newEventLogger(os.Stderr, *retires))
	}

	out := os.Stdout
	v.OnSerialOutput(func(b byte) {
		_, _ = out.Write([]byte{b})
	})

	v.LoadProgram(prog.Words, prog.Origin)
	v.Reset()
	v.Computer().Serial.Feed(serialInput)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := runProgram(ctx, v, *maxSteps)

	if log != nil {
		if err := log.Close(); err != nil && logErr == nil {
			logErr = err
		}
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "Error writing retirement log: %v\n", logErr)
		}
	}

	printReport(os.Stdout, v, retired)
	if *dumpTraces {
		printTraces(os.Stdout, v.TraceCache())
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", runErr)
		return 1
	}
	if logErr != nil {
		return 1
	}
	return 0
}

// runReference runs the program on the functional emulator.
func runReference(prog *loader.Program, config *vm.Config, serialInput []byte) int {
	c := emu.NewComputer(config.IO)
	c.LoadProgram(prog.Words, prog.Origin)
	c.Serial.Feed(serialInput)
	c.Serial.SetOutputHandler(func(b byte) {
		_, _ = os.Stdout.Write([]byte{b})
	})

	e := emu.NewEmulator(c, emu.WithMaxInstructions(*maxSteps))
	err := e.Run()

	fmt.Printf("\n")
	fmt.Printf("Instructions executed: %d\n", e.InstructionCount())
	printRegisters(os.Stdout, c.Regs.R, c.Flags, e.PC())

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	return 0
}

// runProgram steps v until it halts, ctx is done or maxSteps steps have
// run. A maxSteps of zero means no limit.
func runProgram(ctx context.Context, v *vm.VM, maxSteps uint64) error {
	if maxSteps == 0 {
		return v.RunContext(ctx)
	}

	for !v.IsHalted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v.StepsExecuted() >= maxSteps {
			return vm.ErrStepLimit
		}
		v.Step()
	}
	return nil
}

var eventColors = map[*sim.HookPos]string{
	vm.HookPosTraceRecorded:    ansi.ColorCode("green+b"),
	vm.HookPosTraceEntered:     ansi.ColorCode("cyan"),
	vm.HookPosGuardFailed:      ansi.ColorCode("yellow"),
	vm.HookPosTraceInvalidated: ansi.ColorCode("red+b"),
	vm.HookPosRecordingAborted: ansi.ColorCode("magenta"),
	vm.HookPosRetire:           ansi.ColorCode("default+h"),
}

// newEventLogger creates the verbose event logger. Lines are coloured when
// w is a terminal.
func newEventLogger(w io.Writer, withRetires bool) *vm.EventLogger {
	positions := []*sim.HookPos{
		vm.HookPosTraceRecorded,
		vm.HookPosTraceEntered,
		vm.HookPosGuardFailed,
		vm.HookPosTraceInvalidated,
		vm.HookPosRecordingAborted,
	}
	if withRetires {
		positions = append(positions, vm.HookPosRetire)
	}

	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return vm.NewEventLogger(w, positions...)
	}

	logger := vm.NewEventLogger(colorable.NewColorable(f), positions...)
	logger.Colorize = colorize
	return logger
}

func colorize(pos *sim.HookPos, line string) string {
	color, ok := eventColors[pos]
	if !ok {
		return line
	}
	return color + line + ansi.Reset
}

// printReport prints the run statistics and final state.
func printReport(w io.Writer, v *vm.VM, retired uint64) {
	stats := v.CPU().Stats()
	cacheStats := v.TraceCache().Stats()

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Steps: %d\n", v.StepsExecuted())
	fmt.Fprintf(w, "Cycles: %d\n", v.Cycles())
	fmt.Fprintf(w, "Instructions retired: %d\n", retired)
	fmt.Fprintf(w, "  by the pipeline: %d\n", stats.Instructions)
	fmt.Fprintf(w, "  by trace replay: %d\n", v.ReplayedInstructions())
	fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Pipeline Events:\n")
	fmt.Fprintf(w, "  Stalls:         %d\n", stats.Stalls)
	fmt.Fprintf(w, "  Flushes:        %d\n", stats.Flushes)
	fmt.Fprintf(w, "  Machine clears: %d\n", stats.MachineClears)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Trace Cache:\n")
	fmt.Fprintf(w, "  Traces:        %d\n", v.TraceCache().Len())
	fmt.Fprintf(w, "  Hits:          %d\n", cacheStats.Hits)
	fmt.Fprintf(w, "  Misses:        %d\n", cacheStats.Misses)
	fmt.Fprintf(w, "  Evictions:     %d\n", cacheStats.Evictions)
	fmt.Fprintf(w, "  Invalidations: %d\n", cacheStats.Invalidations)
	fmt.Fprintf(w, "\n")

	snap := v.Snapshot()
	printRegisters(w, snap.Registers, snap.Flags, snap.PC)
}

func printRegisters(w io.Writer, regs [emu.NumRegisters]uint16, flags emu.Flags, pc uint16) {
	for i, r := range regs {
		fmt.Fprintf(w, "r%d=0x%04x ", i, r)
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "pc=0x%04x flags=%s\n", pc, flags)
}

// printTraces lists every cached trace.
func printTraces(w io.Writer, cache *trace.Cache) {
	for _, t := range cache.Traces() {
		fmt.Fprintf(w, "\ntrace 0x%04x -> 0x%04x (%d entries)\n", t.PC(), t.ExitPC(), t.Len())
		fmt.Fprintln(w, t)
	}
}

// printDisassembly lists the program with its comments.
func printDisassembly(w io.Writer, prog *loader.Program) {
	for i, line := range insts.DisassembleProgram(prog.Words, prog.Origin) {
		if comment, ok := prog.Comments[prog.Origin+uint16(i)]; ok {
			line += " ; " + comment
		}
		fmt.Fprintln(w, line)
	}
}
