package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"graphir/internal/compcache"
	"graphir/internal/ir"
	"graphir/internal/observ"
	"graphir/internal/trace"
)

// cliEnv is the state shared by every command: project config, tracer,
// profilers and the phase timer.
type cliEnv struct {
	cfg      projectConfig
	cfgPath  string
	quiet    bool
	timings  bool
	timer    *observ.Timer
	cleanups []func()
}

func (e *cliEnv) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	colorMode, _ := flags.GetString("color")
	if err := applyColorMode(colorMode); err != nil {
		return err
	}
	e.quiet, _ = flags.GetBool("quiet")
	e.timings, _ = flags.GetBool("timings")
	e.timer = observ.NewTimer()

	idx := e.timer.Begin("config")
	cfgPath, _ := flags.GetString("config")
	cfg, path, err := loadConfig(cfgPath, ".")
	if err != nil {
		return err
	}
	e.cfg, e.cfgPath = cfg, path
	e.timer.End(idx, path)

	size := e.cfg.ShapeCache.Size
	if flags.Changed("shape-cache-size") || !e.cfg.shapeCacheSet {
		size, _ = flags.GetInt("shape-cache-size")
	}
	ir.SetShapeCacheSize(size)

	stopProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	e.cleanups = append(e.cleanups, stopProf)

	stopTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	e.cleanups = append(e.cleanups, stopTrace)

	if logChanges, _ := flags.GetBool("log-graph-changes"); logChanges {
		ir.SetGraphChangeTracer(trace.FromContext(cmd.Context()))
		e.cleanups = append(e.cleanups, func() { ir.SetGraphChangeTracer(nil) })
	}
	return nil
}

// close runs the cleanups in reverse order and prints the timer summary.
func (e *cliEnv) close(cmd *cobra.Command) {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	e.cleanups = nil
	if e.timings && e.timer != nil {
		fmt.Fprint(cmd.ErrOrStderr(), e.timer.Summary())
	}
}

// openCache resolves the cache directory: an explicit dir wins over the
// project config, which wins over the user cache directory.
func (e *cliEnv) openCache(dir string) (*compcache.DiskCache, error) {
	if dir == "" && e.cfg.Cache.Dir != "" {
		dir = e.cfg.Cache.Dir
		if !filepath.IsAbs(dir) && e.cfgPath != "" {
			dir = filepath.Join(filepath.Dir(e.cfgPath), dir)
		}
	}
	if dir != "" {
		return compcache.OpenDir(dir)
	}
	return compcache.Open("graphir")
}
