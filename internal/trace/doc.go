// Package trace records what the translator is doing and how long it takes.
//
// Events are spans (begin/end pairs) and instant points, each tagged with a
// scope. The level decides which scopes are emitted:
//
//   - LevelPhase: driver and pass boundaries (purity, translate, optimize)
//   - LevelDetail: per-function spans
//   - LevelDebug: per-instruction events of the reconstruction engine
//
// Tracers travel through the pipeline inside a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "translate", 0)
//	defer span.End("")
//
// StreamTracer writes events as they happen, RingTracer keeps the most
// recent ones in memory for post-mortem dumps, MultiTracer fans out.
package trace
