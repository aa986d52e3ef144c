// Package trace records what the graph engine is doing: pipeline stages,
// lowering passes, per-graph work and, at the most verbose level, every
// node created or lowered.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	graphir lower --trace=- --trace-level=phase model.toml
//
// # Architecture
//
// The package provides several tracer implementations:
//
//   - Nop: zero-overhead tracer used when tracing is disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: circular buffer kept for crash dumps
//   - MultiTracer: fan-out to several tracers
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only crash dumps
//   - LevelPhase: driver and pass boundaries
//   - LevelDetail: per-graph events
//   - LevelDebug: everything including individual IR nodes
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "lower", parentID)
//	defer span.End("")
package trace
