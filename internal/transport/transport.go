// Package transport carries whole relay frames over a bidirectional byte
// channel. The relay core only sees the Channel interface so tests can run
// sessions over in-memory pipes.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/gorelay/internal/packet"
)

var (
	ErrFrameSize = errors.New("transport: frame must be exactly packet.FrameSize bytes")
)

// Channel moves one frame-sized block at a time.
type Channel interface {
	// Send writes one block. Callers serialise Send per channel.
	Send(block []byte) error

	// Receive blocks until one block arrives, the peer disconnects, or a
	// deadline expires.
	Receive() ([]byte, error)

	// Close releases the channel and unblocks a pending Receive.
	Close() error

	RemoteAddr() string
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

func checkBlock(block []byte) error {
	if len(block) != packet.FrameSize {
		return fmt.Errorf("%w: got %d", ErrFrameSize, len(block))
	}
	return nil
}
