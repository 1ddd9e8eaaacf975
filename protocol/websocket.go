package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewWebSocketConn wraps a websocket carrying one JSON document per text
// message
func NewWebSocketConn(c *websocket.Conn) Conn {
	w := &wsConn{
		conn: c,
		done: make(chan struct{}),
	}
	c.SetReadLimit(maxLineSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go w.ping()
	return w
}

func (w *wsConn) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := w.conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Read() (*Request, error) {
	for {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(msg) == 0 {
			continue
		}
		return DecodeRequest(msg)
	}
}

func (w *wsConn) Emit(r *Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(r)
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.conn.SetWriteDeadline(time.Now().Add(writeWait))
		w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.mu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// AcceptWebSocket serves GET /ws on addr until the first websocket upgrade,
// then stops the HTTP server. Later upgrade attempts are refused.
func AcceptWebSocket(ctx context.Context, addr string, logger *zap.Logger) (Conn, error) {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Info("waiting for websocket control connection", zap.String("addr", lis.Addr().String()))
	return acceptWebSocket(ctx, lis, logger)
}

func acceptWebSocket(ctx context.Context, lis net.Listener, logger *zap.Logger) (Conn, error) {
	connCh := make(chan Conn, 1)
	var claimed atomic.Bool

	r := gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))
	r.GET("/ws", func(c *gin.Context) {
		if !claimed.CompareAndSwap(false, true) {
			c.AbortWithStatusJSON(http.StatusConflict, "control connection already established")
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			// allow a retry
			claimed.Store(false)
			return
		}
		connCh <- NewWebSocketConn(conn)
	})

	srv := &http.Server{Handler: r}
	go srv.Serve(lis)

	select {
	case c := <-connCh:
		// hijacked connections are not tracked by the server
		srv.Close()
		logger.Info("websocket control connection accepted")
		return c, nil
	case <-ctx.Done():
		srv.Close()
		return nil, ctx.Err()
	}
}

// IsClosed reports whether err means the peer went away
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
