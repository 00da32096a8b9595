package main

import (
	"fmt"
	"sync/atomic"

	"unstack/internal/pipeline"
)

// funcProgress counts finished functions for trace heartbeats.
var funcProgress progressCounter

type progressCounter struct {
	queued   atomic.Int64
	finished atomic.Int64
}

func (c *progressCounter) OnEvent(evt pipeline.Event) {
	if evt.Func == "" {
		return
	}
	switch evt.Status {
	case pipeline.StatusQueued:
		c.queued.Add(1)
	case pipeline.StatusDone, pipeline.StatusCached, pipeline.StatusError:
		c.finished.Add(1)
	}
}

func (c *progressCounter) String() string {
	return fmt.Sprintf("%d/%d functions", c.finished.Load(), c.queued.Load())
}
