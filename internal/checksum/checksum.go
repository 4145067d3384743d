// Package checksum guards message integrity with a content digest carried in
// the packet header, and bounds the RESEND retransmission handshake.
package checksum

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/Tyrowin/gorelay/internal/packet"
)

// Size is the digest length in bytes; hex encoded it fills the header slot.
const Size = packet.ChecksumWidth / 2

var (
	ErrMismatch  = errors.New("checksum: mismatch")
	ErrMissing   = errors.New("checksum: missing")
	ErrExhausted = errors.New("checksum: resend attempts exhausted")
)

// Compute returns the hex BLAKE2b digest of the message as it travels on the
// wire: truncated to the message slot, then trimmed.
func Compute(message string) string {
	message = packet.Truncate(message, packet.MessageWidth)
	h, err := blake2b.New(Size, nil)
	if err != nil {
		// Size is a valid unkeyed digest length.
		panic(err)
	}
	h.Write([]byte(strings.Trim(message, " \x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest of message and compares it with claimed.
func Verify(message, claimed string) bool {
	want := Compute(message)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(claimed))) == 1
}

// Guard stamps outgoing packets and checks incoming ones.
type Guard struct {
	// Required rejects packets that carry no checksum at all.
	Required bool

	corrupter Corrupter
}

// Option configures a Guard.
type Option func(*Guard)

// WithCorrupter installs a fault injector applied to every stamped digest.
// Production code never sets one.
func WithCorrupter(c Corrupter) Option {
	return func(g *Guard) {
		g.corrupter = c
	}
}

func NewGuard(required bool, opts ...Option) *Guard {
	g := &Guard{Required: required}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stamp writes the message digest into p's checksum slot.
func (g *Guard) Stamp(p *packet.Packet) {
	sum := Compute(p.Message)
	if g != nil && g.corrupter != nil {
		sum = g.corrupter.Corrupt(sum)
	}
	p.Checksum = sum
}

// Check validates p's checksum. A packet without one passes unless the
// guard is Required.
func (g *Guard) Check(p packet.Packet) error {
	if p.Checksum == "" {
		if g != nil && g.Required {
			return ErrMissing
		}
		return nil
	}
	if !Verify(p.Message, p.Checksum) {
		return ErrMismatch
	}
	return nil
}
