// Package server runs the TCP accept loop that turns raw connections into
// relay sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Tyrowin/gorelay/internal/transport"
)

// Listen opens the TCP listener configured for the hub.
func (h *Hub) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", h.cfg.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", h.cfg.TCPAddr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled, the hub shuts
// down, or ln is closed. Each connection becomes an independent session.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-h.ctx.Done():
		case <-stop:
			return
		}
		_ = ln.Close()
	}()

	h.log.Info().Str("addr", ln.Addr().String()).Msg("TCP relay listening")

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || h.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextAcceptBackoff(backoff)
				h.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		if _, err := h.Attach(transport.NewStream(conn)); err != nil {
			h.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("session not started")
		}
	}
}

func nextAcceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	prev *= 2
	if prev > time.Second {
		return time.Second
	}
	return prev
}
