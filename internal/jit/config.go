package jit

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFileName is the engine/CLI configuration file looked for in
// the current directory when none is specified explicitly.
const DefaultConfigFileName = "j1t.toml"

// Config controls engine-level knobs (§6, §10). A missing file is not an
// error; DefaultConfig applies.
type Config struct {
	Engine EngineConfig `toml:"engine"`
}

// EngineConfig is the [engine] table of Config.
type EngineConfig struct {
	// CodeBufferBytesPerOpcode is decoded from the file but not consulted:
	// the Engine always sizes a fresh executable-memory region with the
	// fixed 24*4 bytes per program byte of estimateCodeBufferSize.
	CodeBufferBytesPerOpcode int `toml:"code_buffer_bytes_per_opcode"`

	// StackWords is the operand stack's capacity in 32-bit words.
	StackWords int `toml:"stack_words"`

	// CacheEnabled gates the compiled-code cache keyed by program hash.
	CacheEnabled bool `toml:"cache_enabled"`
}

// DefaultConfig returns the built-in defaults used when no file is present.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			CodeBufferBytesPerOpcode: 24 * 4,
			StackWords:               4096,
			CacheEnabled:             true,
		},
	}
}

// LoadConfig reads and decodes path, falling back to DefaultConfig when the
// file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("jit: read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("jit: parse config %s: %w", path, err)
	}
	return cfg, nil
}
