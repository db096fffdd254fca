// Command benchmark runs the T16Sim tracing benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv      Output results in CSV format (default: human-readable)
//	-json     Output results in JSON format
//	-core     Run the small core set only
//	-config   Path to a VM configuration JSON file
//	-v        Print a line as each benchmark finishes
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// Each benchmark runs once interpreted and once with trace replay. The
// harness reports the steps each mode took and whether both retired the
// same instructions with the same effects.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/t16sim/benchmarks"
	"github.com/sarchlab/t16sim/vm"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results in JSON format")
	coreOnly := flag.Bool("core", false, "Run the core benchmarks only")
	configPath := flag.String("config", "", "Path to VM configuration JSON file")
	maxSteps := flag.Uint64("max-steps", 10_000_000, "Step limit per run")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.MaxSteps = *maxSteps
	config.Verbose = *verbose
	config.Output = os.Stdout
	if *configPath != "" {
		vmConfig, err := vm.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading VM config: %v\n", err)
			os.Exit(1)
		}
		if err := vmConfig.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error in VM config: %v\n", err)
			os.Exit(1)
		}
		config.VM = vmConfig
	}

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("T16Sim Tracing Benchmark Harness")
		fmt.Println("================================")
		fmt.Printf("Hot threshold:    %d\n", config.VM.HotThreshold)
		fmt.Printf("Max trace length: %d\n", config.VM.MaxTraceLength)
		fmt.Printf("Trace cache:      %d sets x %d ways\n", config.VM.TraceCacheSets, config.VM.TraceCacheWays)
		fmt.Println("")
	}

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	for _, r := range results {
		if r.Error != "" || !r.Equivalent || !r.MatchesReference {
			os.Exit(1)
		}
	}
}
