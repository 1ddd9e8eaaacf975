package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"sync"
)

const maxLineSize = 16 << 20

// Conn is the control connection. Emit may be called from any goroutine.
type Conn interface {
	// Read returns the next request, io.EOF when the peer closed. A
	// malformed line yields an error wrapping ErrMalformed and the
	// connection stays usable.
	Read() (*Request, error)
	Emit(*Response) error
	Close() error
}

type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner

	mu  sync.Mutex
	enc *json.Encoder
}

// NewLineConn wraps a stream connection carrying one JSON document per line
func NewLineConn(c net.Conn) Conn {
	s := bufio.NewScanner(c)
	s.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &lineConn{
		conn:    c,
		scanner: s,
		enc:     json.NewEncoder(c),
	}
}

func (c *lineConn) Read() (*Request, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return DecodeRequest(line)
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Emit writes r followed by a newline
func (c *lineConn) Emit(r *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(r)
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}
