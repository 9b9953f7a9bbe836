package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/j1t-vm/j1t/internal/bytecode"
)

func loadProgram(path string) (bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("j1t: read %s: %w", path, err)
	}
	return bytecode.Program(data), nil
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
