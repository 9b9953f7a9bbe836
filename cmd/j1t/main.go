// Command j1t compiles and runs the VM's bytecode format, either through
// the AArch64 JIT or the reference interpreter, and can disassemble a
// program or diff the two engines' output. Subcommand dispatch is a bare
// command word per verb, no getopt-style global flags.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		cmdRun(args)
	case "interp":
		cmdInterp(args)
	case "diff":
		cmdDiff(args)
	case "dump":
		cmdDump(args)
	case "version", "-v", "--version":
		fmt.Println("j1t " + version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "j1t: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("j1t - AArch64 JIT and reference interpreter for a stack VM")
	fmt.Println()
	fmt.Println("Usage: j1t <command> [flags] <program.bin>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      JIT-compile and execute a bytecode file")
	fmt.Println("  interp   run a bytecode file through the reference interpreter")
	fmt.Println("  diff     run both engines and fail loudly on divergence")
	fmt.Println("  dump     disassemble a bytecode file's opcode stream")
	fmt.Println("  version  print the version")
}
