package api

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dust/config"
)

// DriverBuilder creates a new instance of Driver.
type DriverBuilder struct {
	cfg    *config.Config
	engine sim.Engine
	freq   sim.Freq
}

// WithConfig sets the compiler settings. Without it the defaults apply.
func (b DriverBuilder) WithConfig(cfg config.Config) DriverBuilder {
	b.cfg = &cfg
	return b
}

// WithEngine sets the engine that runs the reference machine.
func (b DriverBuilder) WithEngine(engine sim.Engine) DriverBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the reference machine.
func (b DriverBuilder) WithFreq(freq sim.Freq) DriverBuilder {
	b.freq = freq
	return b
}

// Build create a driver.
func (b DriverBuilder) Build(name string) Driver {
	cfg := config.Default()
	if b.cfg != nil {
		cfg = *b.cfg
	}

	freq := b.freq
	if freq == 0 {
		freq = 1 * sim.GHz
	}

	return &driverImpl{
		name:       name,
		cfg:        cfg,
		engine:     b.engine,
		freq:       freq,
		newBackend: newLLVMBackend,
	}
}
