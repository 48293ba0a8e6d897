// Package config holds the compiler's ambient configuration, populated
// from the environment. No CLI flag overrides a Config field.
package config

import "github.com/caarlos0/env/v6"

// Config controls cross-cutting knobs that are not part of the language
// semantics: peephole toggling, frame alignment, and output presentation.
type Config struct {
	// MaxInlineDepth is read from the environment, but no pipeline stage
	// consults it: the function compilation manager inlines no calls.
	MaxInlineDepth int `env:"ULTRASCRIPT_MAX_INLINE_DEPTH" envDefault:"0"`
	// ScopeFrameAlignment is the byte alignment every scope frame's total
	// size is rounded up to. The spec requires 8; this exists so the
	// analyzer's rounding step has a single source of truth instead of a
	// hard-coded literal scattered across the codebase.
	ScopeFrameAlignment int `env:"ULTRASCRIPT_SCOPE_ALIGNMENT" envDefault:"8"`
	// DisablePeephole turns off the instruction builder's peephole pass,
	// useful when diff-testing generated code byte-for-byte.
	DisablePeephole bool `env:"ULTRASCRIPT_DISABLE_PEEPHOLE" envDefault:"false"`
	// ColorOutput is one of "auto", "always", "never".
	ColorOutput string `env:"ULTRASCRIPT_COLOR" envDefault:"auto"`
	// RuntimeTableCacheDir, if set, lets the runtime ABI table be loaded
	// from a cached snapshot instead of being rebuilt from the static
	// table each run. Unused unless the embedding host opts in.
	RuntimeTableCacheDir string `env:"ULTRASCRIPT_RUNTIME_TABLE_CACHE"`
}

// Load reads a Config from the environment, applying defaults for any
// variable that is unset.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns a Config with every field at its zero-environment
// default, for tests and for embedding hosts that don't want env
// variables consulted at all.
func Default() Config {
	var c Config
	_ = env.ParseWithOptions(&c, env.Options{Environment: map[string]string{}})
	return c
}
