package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"graphir/internal/hlo"
	"graphir/internal/pipeline"
)

var lowerCmd = &cobra.Command{
	Use:   "lower [flags] <file|dir>...",
	Short: "Lower graph files to HLO computations",
	Long: `Lower traces every graph file into IR nodes and lowers them to an HLO
computation. Directories are expanded to the *.toml graph files they contain.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLower,
}

func init() {
	lowerCmd.Flags().IntP("jobs", "j", 0, "max parallel files (0=auto)")
	lowerCmd.Flags().StringP("out", "o", "", "write one file per graph into this directory")
	lowerCmd.Flags().Bool("cache", true, "reuse computations from the on-disk cache")
	lowerCmd.Flags().String("cache-dir", "", "cache directory (default: [cache].dir or the user cache dir)")
	lowerCmd.Flags().String("ui", "auto", "progress UI mode (auto|on|off)")
	lowerCmd.Flags().String("format", "text", "output format (text|msgpack)")
	lowerCmd.Flags().Bool("no-metadata", false, "omit op metadata from the emitted instructions")
}

func runLower(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "msgpack" {
		return fmt.Errorf("unsupported format %q (must be text or msgpack)", format)
	}
	outDir, _ := cmd.Flags().GetString("out")
	if format == "msgpack" && outDir == "" {
		return fmt.Errorf("--format msgpack requires --out")
	}
	uiValue, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	files, err := collectGraphFiles(args)
	if err != nil {
		return err
	}

	req := &pipeline.Request{Files: files, Jobs: env.cfg.Lower.Jobs, NoMetadata: env.cfg.Lower.NoMetadata}
	if cmd.Flags().Changed("jobs") {
		req.Jobs, _ = cmd.Flags().GetInt("jobs")
	}
	if cmd.Flags().Changed("no-metadata") {
		req.NoMetadata, _ = cmd.Flags().GetBool("no-metadata")
	}
	useCache, _ := cmd.Flags().GetBool("cache")
	if !cmd.Flags().Changed("cache") && env.cfg.Cache.Disabled {
		useCache = false
	}
	if useCache {
		cacheDir, _ := cmd.Flags().GetString("cache-dir")
		cache, err := env.openCache(cacheDir)
		if err != nil {
			// a broken cache only costs speed
			if !env.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s cache disabled: %v\n", color.YellowString("warning:"), err)
			}
		} else {
			req.Cache = cache
		}
	}

	idx := env.timer.Begin("lower")
	var results []pipeline.Result
	var runErr error
	if !env.quiet && shouldUseTUI(mode) {
		results, runErr = runLowerWithUI(cmd.Context(), "lowering", files, req)
	} else {
		results, runErr = pipeline.Compile(cmd.Context(), req)
	}
	env.timer.End(idx, fmt.Sprintf("%d files", len(files)))
	recordStageTimings(results)

	writeIdx := env.timer.Begin("write")
	writeErr := writeResults(cmd.OutOrStdout(), results, outDir, format)
	env.timer.End(writeIdx, "")

	if !env.quiet {
		printLowerSummary(cmd.ErrOrStderr(), results)
	}
	return errors.Join(runErr, writeErr)
}

// collectGraphFiles expands directories and drops duplicates, keeping the
// order of the arguments.
func collectGraphFiles(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		clean := filepath.Clean(path)
		if !seen[clean] {
			seen[clean] = true
			files = append(files, clean)
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.toml"))
		if err != nil {
			return nil, err
		}
		slices.Sort(matches)
		for _, m := range matches {
			if filepath.Base(m) != configFileName {
				add(m)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no graph files found in %s", strings.Join(args, ", "))
	}
	return files, nil
}

func writeResults(stdout io.Writer, results []pipeline.Result, outDir, format string) error {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}
	var errs []error
	for _, r := range results {
		if r.Err != nil || r.Computation == nil {
			continue
		}
		if outDir == "" {
			if err := r.Computation.WriteText(stdout); err != nil {
				return err
			}
			continue
		}
		ext := ".hlo"
		if format == "msgpack" {
			ext = ".mp"
		}
		if err := writeComputation(filepath.Join(outDir, r.Name+ext), r.Computation, format); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeComputation(path string, comp *hlo.Computation, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	if format == "msgpack" {
		return comp.Encode(f)
	}
	return comp.WriteText(f)
}

func printLowerSummary(out io.Writer, results []pipeline.Result) {
	var lowered, cached, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", color.RedString("✗"), r.File, r.Err)
		case r.Cached:
			cached++
			fmt.Fprintf(out, "%s %s %s %s\n", color.BlueString("●"), r.Name, color.New(color.Faint).Sprint(r.Hash), "(cached)")
		default:
			lowered++
			fmt.Fprintf(out, "%s %s %s %d nodes, %d merged\n", color.GreenString("✓"), r.Name,
				color.New(color.Faint).Sprint(r.Hash), r.Nodes, r.Merged)
		}
	}
	fmt.Fprintf(out, "%d lowered, %d cached, %d failed\n", lowered, cached, failed)
}

func recordStageTimings(results []pipeline.Result) {
	for _, stage := range pipeline.Stages {
		var total time.Duration
		var n int
		for _, r := range results {
			if r.Timings.Has(stage) {
				total += r.Timings.Duration(stage)
				n++
			}
		}
		if n > 0 {
			env.timer.Record("  "+string(stage), total, fmt.Sprintf("%d files", n))
		}
	}
}

type lowerOutcome struct {
	results []pipeline.Result
	err     error
}

func runLowerWithUI(ctx context.Context, title string, files []string, req *pipeline.Request) ([]pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan lowerOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Compile(ctx, &reqCopy)
		outcomeCh <- lowerOutcome{results: res, err: err}
		close(events)
	}()

	return runProgram(title, files, events, outcomeCh, cancel)
}
