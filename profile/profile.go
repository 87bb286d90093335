package profile

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/pflag"
)

// Config holds the profile output paths. Empty paths disable the
// corresponding profile.
type Config struct {
	CPUPath  string
	HeapPath string
}

// NewConfig returns a config with all profiles disabled.
func NewConfig() *Config {
	return &Config{}
}

// RegisterFlags adds --cpu-profile and --heap-profile to flags.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.CPUPath, "cpu-profile", "", "write a CPU profile to this file")
	flags.StringVar(&c.HeapPath, "heap-profile", "", "write a heap profile to this file")
}

// NewProfiler creates a profiler for this config.
func (c *Config) NewProfiler() *Profiler {
	return &Profiler{cfg: *c}
}

// Profiler runs one profiling session. Start begins CPU profiling when
// enabled; Stop ends it and writes the heap snapshot.
type Profiler struct {
	cfg     Config
	cpuFile *os.File
}

// Start begins CPU profiling if a path is configured.
func (p *Profiler) Start() error {
	if p.cfg.CPUPath == "" {
		return nil
	}

	f, err := os.Create(p.cfg.CPUPath)
	if err != nil {
		return fmt.Errorf("create CPU profile: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()

		return fmt.Errorf("start CPU profile: %w", err)
	}

	p.cpuFile = f

	return nil
}

// Stop ends CPU profiling and writes the heap snapshot if configured.
func (p *Profiler) Stop() error {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()

		if err := p.cpuFile.Close(); err != nil {
			return fmt.Errorf("close CPU profile: %w", err)
		}

		p.cpuFile = nil
	}

	if p.cfg.HeapPath == "" {
		return nil
	}

	f, err := os.Create(p.cfg.HeapPath)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}

	if err := pprof.Lookup("heap").WriteTo(f, 0); err != nil {
		_ = f.Close()

		return fmt.Errorf("write heap profile: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}

	return nil
}
