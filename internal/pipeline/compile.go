// Package pipeline lowers graph files to computations concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"graphir/internal/compcache"
	"graphir/internal/graphfile"
	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/lower"
	"graphir/internal/trace"
)

// Request configures a Compile call.
type Request struct {
	Files []string
	// Jobs bounds the number of files processed at once; <= 0 means GOMAXPROCS.
	Jobs int
	// Cache is consulted before lowering and filled afterwards; nil disables it.
	Cache    *compcache.DiskCache
	Progress ProgressSink
	// NoMetadata drops op metadata from the emitted instructions.
	NoMetadata bool
}

// Result is the outcome for one file.
type Result struct {
	File        string
	Name        string
	Hash        ir.Hash
	Nodes       int
	Merged      int
	Computation *hlo.Computation
	Cached      bool
	Timings     Timings
	Err         error
}

// Compile processes every file of req. Results are ordered like req.Files;
// the returned error joins the per-file errors.
func Compile(ctx context.Context, req *Request) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return nil, fmt.Errorf("missing compile request")
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("no graph files")
	}
	ctx, span := trace.BeginCtx(ctx, trace.ScopeDriver, "compile")
	defer span.End("")

	for _, file := range req.Files {
		emit(req.Progress, Event{File: file, Stage: StageParse, Status: StatusQueued})
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	// each goroutine writes only its own index
	results := make([]Result, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Files)))
	for i, file := range req.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{File: file, Err: err}
				return err
			}
			results[i] = compileFile(gctx, req, file)
			return nil
		})
	}
	// only cancellation is reported through the group
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func compileFile(ctx context.Context, req *Request, file string) (res Result) {
	res.File = file
	ctx, span := trace.BeginCtx(ctx, trace.ScopeGraph, "file:"+file)
	defer func() {
		if res.Err != nil {
			span.End(res.Err.Error())
			return
		}
		span.End("")
	}()

	stage := func(s Stage, fn func() error) error {
		emit(req.Progress, Event{File: file, Stage: s, Status: StatusWorking})
		start := time.Now()
		err := fn()
		elapsed := time.Since(start)
		res.Timings.Set(s, elapsed)
		if err != nil {
			emit(req.Progress, Event{File: file, Stage: s, Status: StatusError, Err: err, Elapsed: elapsed})
			return err
		}
		emit(req.Progress, Event{File: file, Stage: s, Status: StatusDone, Elapsed: elapsed})
		return nil
	}

	var f *graphfile.File
	if res.Err = stage(StageParse, func() (err error) {
		f, err = graphfile.Load(file)
		return err
	}); res.Err != nil {
		return res
	}
	res.Name = f.Graph.Name

	var tr *graphfile.Traced
	if res.Err = stage(StageTrace, func() (err error) {
		tr, err = graphfile.Trace(ctx, f)
		return err
	}); res.Err != nil {
		return res
	}
	res.Hash = tr.Hash
	res.Nodes = len(tr.Nodes)
	res.Merged = tr.Merged

	meta := compcache.NoMetadata
	if !req.NoMetadata {
		if meta, res.Err = lower.MetadataHash(tr.Roots()...); res.Err != nil {
			res.Err = fmt.Errorf("%s: %w", file, res.Err)
			return res
		}
	}
	key := compcache.Key(res.Name, res.Hash, meta)
	if payload, ok, err := req.Cache.Get(key); err == nil && ok {
		res.Computation = payload.Computation
		res.Cached = true
		emit(req.Progress, Event{File: file, Stage: StageEmit, Status: StatusCached})
		return res
	}

	var opts []lower.Option
	if req.NoMetadata {
		opts = append(opts, lower.WithoutMetadata())
	}
	lc := lower.NewContext(res.Name, opts...)
	if res.Err = stage(StageLower, func() error {
		return lc.LowerRoots(ctx, tr.Roots()...)
	}); res.Err != nil {
		res.Err = fmt.Errorf("%s: %w", file, res.Err)
		return res
	}

	res.Err = stage(StageEmit, func() (err error) {
		res.Computation, err = lc.BuildOutputs(tr.Outputs...)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		return req.Cache.Put(key, &compcache.Payload{
			Name:         res.Name,
			GraphHash:    res.Hash,
			MetadataHash: meta,
			Computation:  res.Computation,
		})
	})
	return res
}

func emit(sink ProgressSink, evt Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(evt)
}
