package amb

// SearchPosition describes a universe at the moment it is traced.
type SearchPosition interface {
	UniverseID() UniverseID
	// Path returns the branch index taken at every call site visited so
	// far. If-any call sites read 0 while their block stands and 1 once
	// the else block has been enabled.
	Path() []int
	Outcome() Outcome
	// Pending is the number of paths waiting in the queue.
	Pending() int
}

type Tracer interface {
	Trace(p SearchPosition)
}

// Tracers fans a position out to every tracer in order.
type Tracers []Tracer

func (ts Tracers) Trace(p SearchPosition) {
	for _, t := range ts {
		t.Trace(p)
	}
}
