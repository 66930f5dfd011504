package search

import (
	"fmt"
	"io"

	"github.com/operator-framework/amb/pkg/amb"
)

type position struct {
	id      amb.UniverseID
	path    []int
	outcome amb.Outcome
	pending int
}

func (p position) UniverseID() amb.UniverseID {
	return p.id
}

func (p position) Path() []int {
	return p.path
}

func (p position) Outcome() amb.Outcome {
	return p.outcome
}

func (p position) Pending() int {
	return p.pending
}

type DefaultTracer struct{}

func (DefaultTracer) Trace(_ amb.SearchPosition) {
}

type LoggingTracer struct {
	Writer io.Writer
}

func (t LoggingTracer) Trace(p amb.SearchPosition) {
	fmt.Fprintf(t.Writer, "---\nUniverse: %s\n", p.UniverseID())
	fmt.Fprintf(t.Writer, "Path: %v\n", p.Path())
	fmt.Fprintf(t.Writer, "Outcome: %s\n", p.Outcome())
	fmt.Fprintf(t.Writer, "Pending: %d\n", p.Pending())
}
