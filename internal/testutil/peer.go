package testutil

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/checksum"
	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/transport"
)

// DefaultWait bounds every blocking read a Peer performs.
const DefaultWait = 2 * time.Second

// Peer drives one end of a relay connection frame by frame.
type Peer struct {
	t     testing.TB
	ch    transport.Channel
	Alias string
	Guard *checksum.Guard
	Wait  time.Duration
}

// NewPeer wraps ch and closes it when the test ends.
func NewPeer(t testing.TB, ch transport.Channel) *Peer {
	t.Helper()
	t.Cleanup(func() { _ = ch.Close() })
	return &Peer{
		t:     t,
		ch:    ch,
		Alias: packet.Unregistered,
		Guard: checksum.NewGuard(false),
		Wait:  DefaultWait,
	}
}

func (p *Peer) Channel() transport.Channel { return p.ch }

// SendRaw writes block as-is.
func (p *Peer) SendRaw(block []byte) {
	p.t.Helper()
	require.NoError(p.t, p.ch.SetWriteDeadline(time.Now().Add(p.Wait)))
	require.NoError(p.t, p.ch.Send(block))
}

// Send stamps and writes pkt.
func (p *Peer) Send(pkt packet.Packet) {
	p.t.Helper()
	p.Guard.Stamp(&pkt)
	p.SendRaw(packet.Encode(pkt))
}

// Say sends verb from the peer's current alias.
func (p *Peer) Say(verb packet.Verb, dest, message string) {
	p.t.Helper()
	p.Send(packet.New(p.Alias, dest, verb, message))
}

// NextBlock reads the next raw frame.
func (p *Peer) NextBlock() []byte {
	p.t.Helper()
	require.NoError(p.t, p.ch.SetReadDeadline(time.Now().Add(p.Wait)))
	block, err := p.ch.Receive()
	require.NoError(p.t, err, "waiting for a frame")
	return block
}

// Next reads and decodes the next frame. A RESEND fails the test.
func (p *Peer) Next() packet.Packet {
	p.t.Helper()
	block := p.NextBlock()
	require.False(p.t, packet.IsResend(block), "unexpected RESEND")
	pkt, err := packet.Decode(block)
	require.NoError(p.t, err)
	return pkt
}

// ExpectNotice reads the next frame and requires a server notice with the
// given message.
func (p *Peer) ExpectNotice(message string) packet.Packet {
	p.t.Helper()
	pkt := p.Next()
	require.Equal(p.t, packet.VerbServer, pkt.Verb, "got %s", pkt)
	require.Equal(p.t, packet.ServerAlias, pkt.Source)
	require.Equal(p.t, message, pkt.Message)
	return pkt
}

// Register claims alias and consumes the confirmation.
func (p *Peer) Register(alias string) packet.Packet {
	p.t.Helper()
	p.Send(packet.New(packet.Unregistered, packet.ServerAlias, packet.VerbRegister, alias))
	pkt := p.Next()
	require.Equal(p.t, packet.VerbServer, pkt.Verb, "got %s", pkt)
	require.Equal(p.t, alias, pkt.Destination, "registration rejected: %s", pkt.Message)
	p.Alias = alias
	return pkt
}

// ExpectSilence requires that nothing arrives within d.
func (p *Peer) ExpectSilence(d time.Duration) {
	p.t.Helper()
	require.NoError(p.t, p.ch.SetReadDeadline(time.Now().Add(d)))
	block, err := p.ch.Receive()
	if err == nil {
		pkt, _ := packet.Decode(block)
		p.t.Fatalf("expected silence, got %s", pkt)
	}
	require.True(p.t, errors.Is(err, os.ErrDeadlineExceeded), "expected a read timeout, got %v", err)
}

// ExpectClosed drains frames until the server closes the connection.
func (p *Peer) ExpectClosed() {
	p.t.Helper()
	deadline := time.Now().Add(p.Wait)
	require.NoError(p.t, p.ch.SetReadDeadline(deadline))
	for {
		_, err := p.ch.Receive()
		if err != nil {
			require.False(p.t, errors.Is(err, os.ErrDeadlineExceeded), "connection still open")
			return
		}
	}
}
