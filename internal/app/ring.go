package app

// ring is a bounded FIFO buffer: appending beyond capacity drops the oldest
// entry first and never blocks or rejects the producer.
type ring[T any] struct {
	cap   int
	items []T
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{cap: capacity}
}

func (r *ring[T]) Append(v T) {
	r.items = append(r.items, v)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

func (r *ring[T]) Snapshot() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

func (r *ring[T]) Len() int { return len(r.items) }
