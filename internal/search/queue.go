package search

// queue is the FIFO of pending paths. Draining it in order yields
// universes in lexicographic order of their paths.
type queue struct {
	items []path
	head  int
}

func (q *queue) push(p path) {
	q.items = append(q.items, p)
}

func (q *queue) pop() path {
	p := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return p
}

func (q *queue) len() int {
	return len(q.items) - q.head
}

func (q *queue) reset() {
	q.items = nil
	q.head = 0
}
