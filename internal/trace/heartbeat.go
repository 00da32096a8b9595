package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits periodic events while a long command runs. A trace whose
// heartbeats keep coming without span ends in between points at a function
// whose translation does not finish.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat emits a heartbeat every interval until Stop. status, if
// set, supplies the event detail (for example "3/10 functions"). It returns
// nil when t is disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration, status func() string) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case <-h.stop:
				return
			case now := <-ticker.C:
				detail := "#" + strconv.Itoa(n)
				if status != nil {
					detail += " " + status()
				}
				t.Emit(&Event{
					Time:   now,
					Seq:    NextSeq(),
					Kind:   KindHeartbeat,
					Scope:  ScopeDriver,
					GID:    goroutineID(),
					Name:   "heartbeat",
					Detail: detail,
				})
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for its goroutine. Safe to call more
// than once and on nil.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
