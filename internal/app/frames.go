package app

import (
	"context"
	"sync"
)

// FrameBuffer holds the most recent encoded frame and wakes waiters when a
// new one arrives.
type FrameBuffer struct {
	mu     sync.Mutex
	data   []byte
	seq    uint64
	notify chan struct{}
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{notify: make(chan struct{})}
}

// Set stores data as the latest frame. The buffer keeps data; callers must
// not modify it afterwards.
func (b *FrameBuffer) Set(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	b.seq++
	close(b.notify)
	b.notify = make(chan struct{})
}

// Latest returns the latest frame and its sequence number. Sequence 0 means
// no frame has been stored yet.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data, b.seq
}

// Next blocks until a frame newer than after is available or ctx is done.
func (b *FrameBuffer) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		b.mu.Lock()
		if b.seq > after {
			data, seq := b.data, b.seq
			b.mu.Unlock()
			return data, seq, nil
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-wait:
		}
	}
}
