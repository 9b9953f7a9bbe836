// engine.go implements the JIT Engine (§4.5): allocates executable memory,
// drives the translator, caches compiled programs by content hash, and
// runs compiled entries against caller-owned state buffers.
package jit

import (
	"errors"
	"hash/fnv"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/j1t-vm/j1t/internal/bytecode"
	"github.com/j1t-vm/j1t/internal/jiterr"
)

// CompiledProgram is an assembled, finalized, executable region plus its
// entry point address. Its ExecutableMemory is released by Close.
type CompiledProgram struct {
	mem      ExecutableMemory
	entry    uintptr
	codeSize int
}

// Close releases the underlying executable-memory region.
func (c *CompiledProgram) Close() error { return c.mem.Close() }

// CodeSize returns the number of bytes the translator emitted.
func (c *CompiledProgram) CodeSize() int { return c.codeSize }

// RunState holds the host-owned buffers a compiled entry reads and writes.
// Stack is reslicable: Run grows its capacity to the configured word count
// and rewrites its length to reflect bytes still on the operand stack when
// the entry returns.
type RunState struct {
	Memory []byte
	Locals []uint32
	Stack  []byte
}

// RunResult is the outcome of one compiled invocation.
type RunResult struct {
	ReturnValue uint32
}

// Runtime errors surfaced by Run, mirroring §6's runtime error codes.
var (
	ErrStackUnderflow = errors.New("jit: stack underflow")
	ErrStackOverflow  = errors.New("jit: stack overflow")
)

// Stats are lightweight, concurrency-safe engine counters (§4.5).
type Stats struct {
	ProgramsCompiled atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	BytesEmitted     atomic.Int64
}

// Engine compiles and runs bytecode programs. One Engine may be shared
// across goroutines; its cache is guarded by a mutex (§5).
type Engine struct {
	config Config
	logger *zap.Logger

	mu    sync.Mutex
	cache map[uint64]*CompiledProgram

	Stats Stats
}

// NewEngine returns an Engine configured by cfg, logging through logger (a
// no-op logger is substituted when logger is nil).
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config: cfg,
		logger: logger,
		cache:  make(map[uint64]*CompiledProgram),
	}
}

func hashProgram(program bytecode.Program) uint64 {
	h := fnv.New64a()
	h.Write(program)
	return h.Sum64()
}

// Compile translates program into a CompiledProgram, consulting and
// populating the content-hash cache when the configuration enables it.
func (e *Engine) Compile(program bytecode.Program) (*CompiledProgram, error) {
	if !e.config.Engine.CacheEnabled {
		return e.compile(program)
	}

	key := hashProgram(program)

	e.mu.Lock()
	if cp, ok := e.cache[key]; ok {
		e.mu.Unlock()
		e.Stats.CacheHits.Inc()
		return cp, nil
	}
	e.mu.Unlock()

	e.Stats.CacheMisses.Inc()
	cp, err := e.compile(program)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = cp
	e.mu.Unlock()
	return cp, nil
}

func (e *Engine) compile(program bytecode.Program) (*CompiledProgram, error) {
	bufSize := estimateCodeBufferSize(len(program))
	e.logger.Debug("compiling program",
		zap.Int("program_bytes", len(program)),
		zap.Int("code_buffer_bytes", bufSize))

	mem, err := NewExecutableMemory(bufSize)
	if err != nil {
		e.logger.Error("executable memory allocation failed", zap.Error(err))
		return nil, err
	}
	if err := mem.BeginWrite(); err != nil {
		mem.Close()
		return nil, err
	}

	asm := NewAssembler()
	asm.SetOutput(mem)

	putcharAddr := defaultPutcharAddress()
	if putcharAddr == 0 && programUsesPrint(program) {
		e.logger.Warn("program uses PRINT but no putchar symbol is available on this build")
	}

	if err := Translate(asm, program, putcharAddr); err != nil {
		mem.Close()
		var jerr *jiterr.Error
		if errors.As(err, &jerr) {
			e.logger.Warn("translation failed",
				zap.String("code", jerr.Code),
				zap.Int("offset", jerr.Offset))
		}
		return nil, err
	}

	if err := asm.Finalize(); err != nil {
		mem.Close()
		return nil, err
	}

	if err := mem.Finalize(asm.CodeSize()); err != nil {
		mem.Close()
		return nil, err
	}

	entry := uintptr(unsafe.Pointer(&mem.Bytes()[0]))
	e.Stats.ProgramsCompiled.Inc()
	e.Stats.BytesEmitted.Add(int64(asm.CodeSize()))

	return &CompiledProgram{mem: mem, entry: entry, codeSize: asm.CodeSize()}, nil
}

func programUsesPrint(program bytecode.Program) bool {
	offset := 0
	for offset < len(program) {
		op := bytecode.Opcode(program[offset])
		if op == bytecode.PRINT {
			return true
		}
		size, err := opcodeSize(op, offset, len(program))
		if err != nil {
			return false
		}
		offset += size
	}
	return false
}

// Run compiles program if necessary, populates a Context from state,
// invokes the compiled entry, and reports the outcome per §4.5.
func (e *Engine) Run(program bytecode.Program, state *RunState) (RunResult, error) {
	if runtime.GOARCH != "arm64" {
		return RunResult{}, errors.New("jit: compiled code runs only on arm64")
	}

	cp, err := e.Compile(program)
	if err != nil {
		return RunResult{}, err
	}

	wantCap := e.config.Engine.StackWords * 4
	if cap(state.Stack) < wantCap {
		grown := make([]byte, len(state.Stack), wantCap)
		copy(grown, state.Stack)
		state.Stack = grown
	}
	full := state.Stack[:cap(state.Stack)]

	ctx := NewContext()
	if len(state.Memory) > 0 {
		ctx.SetMemoryBase(uintptr(unsafe.Pointer(&state.Memory[0])))
	}

	stackBase := uintptr(unsafe.Pointer(&full[0]))
	ctx.SetStackBase(stackBase)
	ctx.SetStackTop(stackBase + uintptr(len(state.Stack)))
	ctx.SetStackEnd(stackBase + uintptr(cap(state.Stack)))
	if len(state.Locals) > 0 {
		ctx.SetLocalsBase(uintptr(unsafe.Pointer(&state.Locals[0])))
	}

	ret := callEntry(ctx.Pointer(), cp.entry)

	runtime.KeepAlive(state.Memory)
	runtime.KeepAlive(state.Locals)
	runtime.KeepAlive(full)

	if code := ctx.ErrorCode(); code != 0 {
		switch code {
		case runtimeErrStackUnderflow:
			return RunResult{}, ErrStackUnderflow
		case runtimeErrStackOverflow:
			return RunResult{}, ErrStackOverflow
		default:
			return RunResult{}, errors.New("jit: unknown runtime error code")
		}
	}

	newTop := ctx.StackTop()
	state.Stack = full[:uintptr(newTop-stackBase)]

	return RunResult{ReturnValue: ret}, nil
}

// Close releases every cached compiled program.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, cp := range e.cache {
		if err := cp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.cache = make(map[uint64]*CompiledProgram)
	return firstErr
}
