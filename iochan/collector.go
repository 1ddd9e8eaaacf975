package iochan

import (
	"io"
	"os"
	"time"
)

// Collector drains the read end of a pipe into a writer. W is handed to the
// child process and must be closed by the parent once the child holds it.
type Collector struct {
	W    *os.File
	done chan struct{}
}

// Collect creates a pipe whose read end is copied into w until EOF
func Collect(w io.Writer) (*Collector, error) {
	r, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	c := &Collector{
		W:    pw,
		done: make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		defer r.Close()
		io.Copy(w, r)
	}()
	return c, nil
}

// Done is closed once the read end reaches EOF
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// CloseWrite closes the parent copy of the write end
func (c *Collector) CloseWrite() error {
	return c.W.Close()
}

// Wait blocks until the drain finishes or timeout expires. It reports whether
// the drain finished.
func (c *Collector) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}
