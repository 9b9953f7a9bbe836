package main

import (
	"flag"
	"fmt"

	"github.com/j1t-vm/j1t/internal/jit"
)

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", jit.DefaultConfigFileName, "path to configuration TOML")
	memBytes := fs.Int("memory", 0, "linear memory size in bytes")
	localsCount := fs.Int("locals", 4, "number of local slots")
	verbose := fs.Bool("v", false, "verbose (development) logging")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("run: missing bytecode file")
	}

	program, err := loadProgram(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}

	cfg, err := jit.LoadConfig(*configPath)
	if err != nil {
		fail("%v", err)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	engine := jit.NewEngine(cfg, logger)
	defer engine.Close()

	state := &jit.RunState{
		Memory: make([]byte, *memBytes),
		Locals: make([]uint32, *localsCount),
	}

	result, err := engine.Run(program, state)
	if err != nil {
		fail("run: %v", err)
	}

	fmt.Println(result.ReturnValue)
}
