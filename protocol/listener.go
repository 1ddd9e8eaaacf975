package protocol

import (
	"context"
	"net"

	"go.uber.org/zap"
)

// AcceptOne listens on addr, accepts exactly one connection and closes the
// listener
func AcceptOne(ctx context.Context, addr string, logger *zap.Logger) (Conn, error) {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Info("waiting for control connection", zap.String("addr", lis.Addr().String()))
	return acceptOne(ctx, lis, logger)
}

func acceptOne(ctx context.Context, lis net.Listener, logger *zap.Logger) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		lis.Close()
	})
	defer stop()

	c, err := lis.Accept()
	lis.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	logger.Info("control connection accepted", zap.String("remote", c.RemoteAddr().String()))
	return NewLineConn(c), nil
}
