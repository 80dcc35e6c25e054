package config

import (
	"flag"
	"testing"

	"github.com/compiladores/jsonasm-wasm/pkg/compiler"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.EntryName != compiler.DefaultEntryName {
		t.Errorf("EntryName = %q, want %q", c.EntryName, compiler.DefaultEntryName)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvEntry, "start")
	t.Setenv(EnvMaxSteps, "500")
	t.Setenv(EnvMaxDepth, "7")
	t.Setenv(EnvTrace, "true")

	c := FromEnv()
	if c.LogLevel != "debug" || c.EntryName != "start" || c.MaxSteps != 500 || c.MaxCallDepth != 7 || !c.Trace {
		t.Errorf("FromEnv() = %+v", c)
	}
	if got := c.EffectiveLogLevel(); got != "trace" {
		t.Errorf("EffectiveLogLevel() = %q, want trace", got)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv(EnvEntry, "fromenv")
	t.Setenv(EnvMaxSteps, "10")

	c := FromEnv()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-entry", "fromflag"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.EntryName != "fromflag" {
		t.Errorf("EntryName = %q, want fromflag", c.EntryName)
	}
	if c.MaxSteps != 10 {
		t.Errorf("MaxSteps = %d, want 10 from the environment", c.MaxSteps)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"steps", func(c *Config) { c.MaxSteps = -1 }},
		{"depth", func(c *Config) { c.MaxCallDepth = -1 }},
		{"entry", func(c *Config) { c.EntryName = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.edit(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}
