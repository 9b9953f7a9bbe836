package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/j1t-vm/j1t/internal/interp"
)

func cmdInterp(args []string) {
	fs := flag.NewFlagSet("interp", flag.ExitOnError)
	memBytes := fs.Int("memory", 0, "linear memory size in bytes")
	localsCount := fs.Int("locals", 4, "number of local slots")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("interp: missing bytecode file")
	}

	program, err := loadProgram(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}

	state := &interp.State{
		Locals: make([]uint32, *localsCount),
		Memory: make([]byte, *memBytes),
		Output: func(b byte) { os.Stdout.Write([]byte{b}) },
	}

	result, err := interp.Run(program, state)
	if err != nil {
		fail("interp: %v", err)
	}

	fmt.Println(result.ReturnValue)
}
