// Package server defines shared errors, notice texts and utility helpers
// that are reused across session and dispatch logic.
package server

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	ErrNoSuchUser    = errors.New("server: no such user")
	ErrNotRegistered = errors.New("server: session not registered")
	ErrSourceSpoofed = errors.New("server: packet source does not match session alias")
	ErrQueueFull     = errors.New("server: outbound queue full")
	ErrSessionClosed = errors.New("server: session closed")
	ErrServerFull    = errors.New("server: connection limit reached")
	ErrHubStopped    = errors.New("server: hub stopped")

	// errSessionEnded ends a read loop after a bye.
	errSessionEnded = errors.New("server: session ended by peer")
)

// Notice texts sent in svr packets.
const (
	noticeWelcome        = "welcome %s, you are registered"
	noticeJoined         = "%s has joined the chat"
	noticeLeft           = "%s has left the chat"
	noticeRenamed        = "you are now known as %s"
	noticeRenamedOther   = "%s is now known as %s"
	noticeAliasTaken     = "error: alias %q is taken"
	noticeAliasInvalid   = "error: alias %q is invalid"
	noticeNoSuchUser     = "error: no such user %q"
	noticeRegisterFirst  = "error: register an alias first"
	noticeInvalidPacket  = "error: invalid packet (%v)"
	noticeSourceMismatch = "error: source %q does not match your alias %q"
	noticeRegTimeout     = "error: registration timed out"
	noticeTooManyResends = "error: too many corrupted packets"
	noticeServerFull     = "error: server is full"
	noticeShutdown       = "server is shutting down"
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
