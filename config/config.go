// Package config holds the compiler settings shared by the CLI and the
// driver API. Settings come from defaults, then an optional YAML file,
// then DUST_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Output kinds.
const (
	EmitObject = "obj"
	EmitIR     = "ll"
	EmitRun    = "run"
)

// Config is the full set of compiler settings.
type Config struct {
	TapeSize      int    `yaml:"tape_size"`
	TapeAlign     int    `yaml:"tape_align"`
	FlushTrailing bool   `yaml:"flush_trailing"`
	Optimize      bool   `yaml:"optimize"`
	Emit          string `yaml:"emit"`
	Target        string `yaml:"target"`
	CPU           string `yaml:"cpu"`
	Features      string `yaml:"features"`
	MaxCycles     uint64 `yaml:"max_cycles"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		TapeSize:  30000,
		TapeAlign: 16,
		Optimize:  true,
		Emit:      EmitObject,
		MaxCycles: 100_000_000,
		LogLevel:  "info",
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (Config, error) {
	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return c, nil
}

// WithEnv returns a copy of c with DUST_* environment overrides applied.
func (c Config) WithEnv() Config {
	c.TapeSize = env.Int("DUST_TAPE_SIZE", c.TapeSize)
	c.TapeAlign = env.Int("DUST_TAPE_ALIGN", c.TapeAlign)
	if env.Has("DUST_FLUSH_TRAILING") {
		c.FlushTrailing = env.Bool("DUST_FLUSH_TRAILING")
	}
	if env.Has("DUST_OPTIMIZE") {
		c.Optimize = env.Bool("DUST_OPTIMIZE")
	}
	c.Emit = env.Str("DUST_EMIT", c.Emit)
	c.Target = env.Str("DUST_TARGET", c.Target)
	c.CPU = env.Str("DUST_CPU", c.CPU)
	c.Features = env.Str("DUST_FEATURES", c.Features)
	if n := env.Int("DUST_MAX_CYCLES", -1); n >= 0 {
		c.MaxCycles = uint64(n)
	}
	c.LogLevel = env.Str("DUST_LOG_LEVEL", c.LogLevel)

	return c
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.TapeSize <= 0:
		return fmt.Errorf("tape_size must be positive, got %d", c.TapeSize)
	case c.TapeAlign <= 0 || c.TapeAlign&(c.TapeAlign-1) != 0:
		return fmt.Errorf("tape_align must be a power of two, got %d", c.TapeAlign)
	}

	switch c.Emit {
	case EmitObject, EmitIR, EmitRun:
	default:
		return fmt.Errorf("emit must be one of %s, %s, %s; got %q",
			EmitObject, EmitIR, EmitRun, c.Emit)
	}

	return nil
}
