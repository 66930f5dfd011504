package search

// marker is the bookkeeping of one if-any call site. It is shared by
// pointer between every path that extends past the site, which is how a
// replaying universe recovers counts that cannot be derived from branch
// indices alone.
type marker struct {
	// site is the index of the marker's step within a path.
	site int
	// alive counts universes, pending or running, inside the if block.
	alive int
	// stands is true until every expansion of the if block pruned.
	stands bool
	// locked is set once any universe got through the if block; a locked
	// marker never flips.
	locked bool
}

// step is one recorded call site: a branch index for choose, or a marker
// for if-any.
type step struct {
	branch int
	marker *marker
}

type path []step

// extend returns a copy of p with s appended. The copy never shares a
// backing array with p.
func (p path) extend(s step) path {
	out := make(path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// prefix returns a copy of the first n steps of p.
func (p path) prefix(n int) path {
	out := make(path, n)
	copy(out, p[:n])
	return out
}

// indices renders p as branch indices. If-any sites read 0 while their
// block stands and 1 once the else block is enabled.
func (p path) indices() []int {
	out := make([]int, len(p))
	for i, s := range p {
		if s.marker == nil {
			out[i] = s.branch
			continue
		}
		if !s.marker.stands {
			out[i] = 1
		}
	}
	return out
}
