package trace

import "context"

type ctxKey struct{}

// state is what a context carries: the tracer and the innermost span opened
// through StartSpan.
type state struct {
	tracer Tracer
	parent uint64
}

func stateOf(ctx context.Context) state {
	if ctx != nil {
		if st, ok := ctx.Value(ctxKey{}).(state); ok {
			return st
		}
	}
	return state{tracer: Nop}
}

// FromContext returns the tracer attached to ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return stateOf(ctx).tracer
}

// WithTracer attaches t to ctx. The current parent span is kept.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if t == nil {
		t = Nop
	}
	st := stateOf(ctx)
	st.tracer = t
	return context.WithValue(ctx, ctxKey{}, st)
}

// ParentSpan returns the ID of the innermost span opened through StartSpan,
// or 0 at the top level.
func ParentSpan(ctx context.Context) uint64 {
	return stateOf(ctx).parent
}

// StartSpan begins a span under the one recorded in ctx and returns a
// context in which the new span is the parent.
func StartSpan(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	st := stateOf(ctx)
	span := Begin(st.tracer, scope, name, st.parent)
	if span.ID() == 0 {
		return ctx, span
	}
	st.parent = span.ID()
	return context.WithValue(ctx, ctxKey{}, st), span
}
