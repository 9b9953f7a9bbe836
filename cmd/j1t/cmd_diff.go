package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/multierr"

	"github.com/j1t-vm/j1t/internal/interp"
	"github.com/j1t-vm/j1t/internal/jit"
)

// cmdDiff runs every given program through both engines and reports any
// error or return-value divergence; PRINT output is not compared (see
// diffOne). Multiple input files accumulate
// into a single combined error instead of stopping at the first failure.
func cmdDiff(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	memBytes := fs.Int("memory", 0, "linear memory size in bytes")
	localsCount := fs.Int("locals", 4, "number of local slots")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("diff: missing bytecode file(s)")
	}

	cfg, err := jit.LoadConfig(jit.DefaultConfigFileName)
	if err != nil {
		fail("%v", err)
	}
	engine := jit.NewEngine(cfg, nil)
	defer engine.Close()

	var combined error
	for _, path := range fs.Args() {
		if err := diffOne(engine, path, *memBytes, *localsCount); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Printf("%s: match\n", path)
	}

	if combined != nil {
		fmt.Fprintln(os.Stderr, combined)
		os.Exit(1)
	}
}

// diffOne compares return values only: the JIT's PRINT bytes go straight
// to process stdio through the engine's built-in putchar trampoline, so
// they cannot be captured and compared here the way the interpreter's
// buffered Output can.
func diffOne(engine *jit.Engine, path string, memBytes, localsCount int) error {
	program, err := loadProgram(path)
	if err != nil {
		return err
	}

	jitState := &jit.RunState{
		Memory: make([]byte, memBytes),
		Locals: make([]uint32, localsCount),
	}
	jitResult, jitErr := engine.Run(program, jitState)

	interpState := &interp.State{
		Memory: make([]byte, memBytes),
		Locals: make([]uint32, localsCount),
		Output: func(byte) {},
	}
	interpResult, interpErr := interp.Run(program, interpState)

	if (jitErr == nil) != (interpErr == nil) {
		return fmt.Errorf("jit err=%v interp err=%v", jitErr, interpErr)
	}
	if jitErr != nil {
		return nil
	}
	if jitResult.ReturnValue != interpResult.ReturnValue {
		return fmt.Errorf("return value mismatch: jit=%d interp=%d", jitResult.ReturnValue, interpResult.ReturnValue)
	}
	return nil
}
