package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	segjson "github.com/segmentio/encoding/json"

	"github.com/j1t-vm/j1t/internal/bytecode"
)

type dumpInstruction struct {
	Offset   int    `json:"offset"`
	Mnemonic string `json:"mnemonic"`
	Operand  *int32 `json:"operand,omitempty"`
}

type dumpReport struct {
	ProgramBytes int               `json:"program_bytes"`
	Instructions []dumpInstruction `json:"instructions"`
}

func cmdDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "emit a JSON diagnostic report instead of plain text")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("dump: missing bytecode file")
	}

	program, err := loadProgram(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}

	report := disassemble(program)

	if *asJSON {
		data, err := segjson.MarshalIndent(report, "", "  ")
		if err != nil {
			fail("dump: marshal report: %v", err)
		}
		os.Stdout.Write(data)
		fmt.Println()
		return
	}

	for _, instr := range report.Instructions {
		if instr.Operand != nil {
			fmt.Printf("%6d  %-20s %d\n", instr.Offset, instr.Mnemonic, *instr.Operand)
		} else {
			fmt.Printf("%6d  %s\n", instr.Offset, instr.Mnemonic)
		}
	}
}

func disassemble(program bytecode.Program) dumpReport {
	report := dumpReport{ProgramBytes: len(program)}

	offset := 0
	for offset < len(program) {
		op := bytecode.Opcode(program[offset])
		instr := dumpInstruction{Offset: offset, Mnemonic: op.String()}

		if op.HasImmediate() && offset+5 <= len(program) {
			raw := int32(binary.LittleEndian.Uint32(program[offset+1 : offset+5]))
			instr.Operand = &raw
			offset += 5
		} else {
			offset++
		}

		report.Instructions = append(report.Instructions, instr)
	}

	return report
}
