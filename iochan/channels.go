package iochan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNotBound is returned when reading input of a key without a binding
var ErrNotBound = errors.New("iochan: key not bound")

// Key identifies one invocation slot
type Key uint64

var lastKey atomic.Uint64

// NewKey returns a key unique in this process
func NewKey() Key {
	return Key(lastKey.Add(1))
}

func (k Key) String() string {
	return fmt.Sprintf("io-%d", uint64(k))
}

// Channels holds the per key input bindings and output accumulators
type Channels struct {
	limit   int64
	inputs  *xsync.MapOf[Key, io.ReadCloser]
	outputs *xsync.MapOf[Key, *Buffer]
	pool    sync.Pool
}

// New creates channels whose output accumulators hold at most limit bytes
func New(limit int64) *Channels {
	c := &Channels{
		limit:   limit,
		inputs:  xsync.NewMapOf[Key, io.ReadCloser](),
		outputs: xsync.NewMapOf[Key, *Buffer](),
	}
	c.pool.New = func() any {
		return NewBuffer(limit)
	}
	return c
}

// Bind makes src the input of key. A previous binding is closed.
func (c *Channels) Bind(k Key, src io.ReadCloser) {
	if old, ok := c.inputs.LoadAndStore(k, src); ok && old != src {
		old.Close()
	}
}

// InputFile returns the bound source as a file suitable for a child's stdin.
// Sources that are not files are streamed through a pipe.
func (c *Channels) InputFile(k Key) (*os.File, error) {
	src, ok := c.inputs.Load(k)
	if !ok {
		return nil, fmt.Errorf("input %v: %w", k, ErrNotBound)
	}
	if f, ok := src.(*os.File); ok {
		return f, nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	go func() {
		defer w.Close()
		io.Copy(w, src)
	}()
	// the read end is closed together with the binding
	c.inputs.Store(k, multiCloser{r, src})
	return r, nil
}

// Output returns the accumulator of key, creating it on first use
func (c *Channels) Output(k Key) *Buffer {
	b, _ := c.outputs.LoadOrCompute(k, func() *Buffer {
		return c.pool.Get().(*Buffer)
	})
	return b
}

// Pipe returns a collector draining into the accumulator of key
func (c *Channels) Pipe(k Key) (*Collector, error) {
	return Collect(c.Output(k))
}

// RetrieveAndReset returns the accumulated output of key and clears it. The
// second result reports whether output was discarded because of the cap.
func (c *Channels) RetrieveAndReset(k Key) ([]byte, bool) {
	b, ok := c.outputs.Load(k)
	if !ok {
		return nil, false
	}
	return b.Reset()
}

// Unbind closes the input source of key and drops its accumulator. Calling
// Unbind on a key that was never bound does nothing.
func (c *Channels) Unbind(k Key) error {
	var err error
	if src, ok := c.inputs.LoadAndDelete(k); ok {
		err = src.Close()
	}
	if b, ok := c.outputs.LoadAndDelete(k); ok {
		b.Reset()
		c.pool.Put(b)
	}
	return err
}

// Bound returns the number of live input bindings
func (c *Channels) Bound() int {
	return c.inputs.Size()
}

type multiCloser struct {
	io.ReadCloser
	other io.Closer
}

func (m multiCloser) Close() error {
	return errors.Join(m.ReadCloser.Close(), m.other.Close())
}
