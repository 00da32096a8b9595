package main

import (
	"fmt"
	"io"

	"unstack/internal/pipeline"
)

func printStageTimings(out io.Writer, timings *pipeline.Timings) {
	if out == nil {
		return
	}
	stages := []struct {
		stage pipeline.Stage
		verb  string
	}{
		{pipeline.StageValidate, "validated"},
		{pipeline.StagePurity, "purity"},
		{pipeline.StageTranslate, "translated"},
		{pipeline.StageOptimize, "optimized"},
	}
	for _, s := range stages {
		if !timings.Has(s.stage) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s %.1f ms\n", s.verb, toMillis(timings.Duration(s.stage))); err != nil {
			panic(err)
		}
	}
}
