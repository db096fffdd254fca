// Package main provides the entry point for T16Sim.
// T16Sim is a cycle-accurate Turtle16 simulator with a tracing replay
// engine, built on Akita.
//
// For the full CLI, use: go run ./cmd/t16sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("T16Sim - Turtle16 Pipeline Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: t16sim [options] <program.{t16,hex,bin}>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -interpret  Disable trace replay")
	fmt.Println("  -reference  Run on the functional emulator")
	fmt.Println("  -config     Path to VM configuration JSON file")
	fmt.Println("  -v          Log VM events")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/t16sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/t16sim' instead.")
	}
}
