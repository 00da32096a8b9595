package interp

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"unstack/internal/lowir"
)

// Host implements imported functions.
type Host interface {
	Call(ctx context.Context, name string, sig lowir.Signature, args []lowir.Value) ([]lowir.Value, error)
}

// ZeroHost answers every import with zero results.
type ZeroHost struct{}

func (ZeroHost) Call(_ context.Context, _ string, sig lowir.Signature, _ []lowir.Value) ([]lowir.Value, error) {
	out := make([]lowir.Value, len(sig.Results))
	for i, t := range sig.Results {
		out[i] = lowir.Zero(t)
	}
	return out, nil
}

// HostCall is one recorded import call.
type HostCall struct {
	Name    string        `json:"name"`
	Args    []lowir.Value `json:"args,omitempty"`
	Results []lowir.Value `json:"results,omitempty"`
}

// Recorder wraps a Host and keeps the sequence of calls made through it.
// When built with a writer it also emits each call as an NDJSON line.
type Recorder struct {
	Next Host

	mu    sync.Mutex
	enc   *json.Encoder
	err   error
	calls []HostCall
}

// NewRecorder returns a recorder forwarding to next (ZeroHost if nil).
// w may be nil.
func NewRecorder(next Host, w io.Writer) *Recorder {
	if next == nil {
		next = ZeroHost{}
	}
	r := &Recorder{Next: next}
	if w != nil {
		r.enc = json.NewEncoder(w)
		r.enc.SetEscapeHTML(false)
	}
	return r
}

func (r *Recorder) Call(ctx context.Context, name string, sig lowir.Signature, args []lowir.Value) ([]lowir.Value, error) {
	out, err := r.Next.Call(ctx, name, sig, args)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	call := HostCall{Name: name, Args: append([]lowir.Value(nil), args...), Results: append([]lowir.Value(nil), out...)}
	r.calls = append(r.calls, call)
	if r.enc != nil && r.err == nil {
		r.err = r.enc.Encode(call)
	}
	return out, nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []HostCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HostCall(nil), r.calls...)
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
