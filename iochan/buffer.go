package iochan

import (
	"bytes"
	"sync"
)

// Buffer is a capped, concurrency safe output accumulator. Bytes written
// beyond the cap are discarded and the buffer is marked truncated. Writes
// never fail so a draining reader never stalls the writer side.
type Buffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

// NewBuffer creates a buffer holding at most limit bytes, limit <= 0 means
// unlimited
func NewBuffer(limit int64) *Buffer {
	return &Buffer{limit: limit}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if b.limit > 0 {
		if room := b.limit - int64(b.buf.Len()); int64(n) > room {
			b.truncated = true
			p = p[:max(room, 0)]
		}
	}
	b.buf.Write(p)
	return n, nil
}

// Bytes returns a copy of the accumulated bytes
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Truncated reports whether any write overflowed the cap
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Reset returns the accumulated bytes and clears the buffer in one step
func (b *Buffer) Reset() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := bytes.Clone(b.buf.Bytes())
	truncated := b.truncated
	b.buf.Reset()
	b.truncated = false
	return out, truncated
}
