package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/gorelay/internal/packet"
)

// Stream frames a reliable byte stream (TCP, net.Pipe) into fixed blocks.
type Stream struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

func NewStream(conn net.Conn) *Stream {
	return &Stream{conn: conn}
}

// DialTCP connects to a relay server's TCP listener.
func DialTCP(ctx context.Context, addr string) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStream(conn), nil
}

// Pipe returns two connected in-memory streams.
func Pipe() (*Stream, *Stream) {
	a, b := net.Pipe()
	return NewStream(a), NewStream(b)
}

func (s *Stream) Send(block []byte) error {
	if err := checkBlock(block); err != nil {
		return err
	}
	_, err := s.conn.Write(block)
	return err
}

func (s *Stream) Receive() ([]byte, error) {
	buf := make([]byte, packet.FrameSize)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended mid-frame", packet.ErrMalformedFrame)
		}
		return nil, err
	}
	return buf, nil
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Stream) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (s *Stream) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }
