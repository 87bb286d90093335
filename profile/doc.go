// Package profile captures CPU and heap profiles around a benchmark
// run.
//
// A zero-value [Config] disables profiling. Register the flags on the
// benchmark command, start the profiler before the run, and stop it
// after:
//
//	cfg := profile.NewConfig()
//	cfg.RegisterFlags(cmd.Flags())
//
//	p := cfg.NewProfiler()
//	if err := p.Start(); err != nil { ... }
//	defer p.Stop()
package profile
