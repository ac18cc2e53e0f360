package core

// Frame is a raw wire payload (one JSON envelope).
type Frame []byte

// SignalConnection abstracts the per-participant messaging transport.
// Owned by the adapter; the adapter must Close() it. TrySend never blocks.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
