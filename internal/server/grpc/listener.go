package grpc

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/logging"
)

// limitListener reserves a gatekeeper connection slot for every accepted
// connection and closes connections that arrive when no slot is free.
// Once the gatekeeper is closed the listener stops accepting.
type limitListener struct {
	net.Listener
	open   func() (func(), error)
	logger logging.Logger
}

func newLimitListener(l net.Listener, open func() (func(), error), logger logging.Logger) net.Listener {
	return &limitListener{Listener: l, open: open, logger: logger}
}

func (l *limitListener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		release, err := l.open()
		if errors.Is(err, common.ErrClosed) {
			_ = c.Close()
			return nil, net.ErrClosed
		}
		if err != nil {
			l.logger.Warn(context.Background(), "connection rejected", "remote", c.RemoteAddr().String(), "error", err)
			_ = c.Close()
			continue
		}
		return &limitConn{Conn: c, release: release}, nil
	}
}

type limitConn struct {
	net.Conn
	release func()
	once    sync.Once
}

func (c *limitConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}
