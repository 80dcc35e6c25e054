// Package config resolves tool settings from defaults, the environment
// and command-line flags, in that order of increasing precedence.
package config

import (
	"flag"
	"fmt"

	"github.com/xyproto/env/v2"

	"github.com/compiladores/jsonasm-wasm/pkg/compiler"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

// Environment variables read by FromEnv.
const (
	EnvLogLevel = "JSONASM_LOG_LEVEL"
	EnvEntry    = "JSONASM_ENTRY"
	EnvMaxSteps = "JSONASM_MAX_STEPS"
	EnvMaxDepth = "JSONASM_MAX_DEPTH"
	EnvTrace    = "JSONASM_TRACE"
)

type Config struct {
	LogLevel     string // trace, debug, info, warn, error, disabled
	EntryName    string // export name of the entry function
	MaxSteps     int    // instruction budget of one run, 0 for none
	MaxCallDepth int    // nested call limit, 0 for none
	Trace        bool   // log every executed instruction
}

func Default() *Config {
	return &Config{
		LogLevel:     "warn",
		EntryName:    compiler.DefaultEntryName,
		MaxSteps:     vm.DefaultMaxSteps,
		MaxCallDepth: vm.DefaultMaxCallDepth,
	}
}

// FromEnv returns the defaults overridden by any JSONASM_* variables.
func FromEnv() *Config {
	c := Default()
	c.LogLevel = env.Str(EnvLogLevel, c.LogLevel)
	c.EntryName = env.Str(EnvEntry, c.EntryName)
	c.MaxSteps = env.Int(EnvMaxSteps, c.MaxSteps)
	c.MaxCallDepth = env.Int(EnvMaxDepth, c.MaxCallDepth)
	if env.Has(EnvTrace) {
		c.Trace = env.Bool(EnvTrace)
	}
	return c
}

// RegisterFlags binds the settings to fs, using the current values as
// defaults so flags win over the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (trace, debug, info, warn, error, disabled)")
	fs.StringVar(&c.EntryName, "entry", c.EntryName, "export name of the entry function")
	fs.IntVar(&c.MaxSteps, "max-steps", c.MaxSteps, "instruction budget when running, 0 for unlimited")
	fs.IntVar(&c.MaxCallDepth, "max-depth", c.MaxCallDepth, "call depth limit when running, 0 for unlimited")
	fs.BoolVar(&c.Trace, "trace", c.Trace, "trace every executed instruction (implies -log-level trace)")
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "disabled", "off":
	default:
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, error or disabled)", c.LogLevel)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max steps must be non-negative, got %d", c.MaxSteps)
	}
	if c.MaxCallDepth < 0 {
		return fmt.Errorf("max call depth must be non-negative, got %d", c.MaxCallDepth)
	}
	if c.EntryName == "" {
		return fmt.Errorf("entry name must not be empty")
	}
	return nil
}

// EffectiveLogLevel is LogLevel, raised to trace when Trace is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Trace {
		return "trace"
	}
	return c.LogLevel
}

// CompileOptions turns the settings into compiler options.
func (c *Config) CompileOptions() []compiler.Option {
	return []compiler.Option{compiler.WithEntryName(c.EntryName)}
}

// MachineOptions turns the settings into reference machine options.
func (c *Config) MachineOptions() []vm.Option {
	return []vm.Option{vm.WithMaxSteps(c.MaxSteps), vm.WithMaxCallDepth(c.MaxCallDepth)}
}
