package client

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/checksum"
	"github.com/Tyrowin/gorelay/internal/cipher"
	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/server"
	"github.com/Tyrowin/gorelay/internal/testutil"
	"github.com/Tyrowin/gorelay/internal/transport"
)

// chanSource lets a test feed input lines one at a time.
type chanSource chan string

func (c chanSource) ReadLine() (string, error) {
	line, ok := <-c
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeServer returns a client wired to a scripted server peer.
func fakeServer(t *testing.T, opts Options) (*Client, *testutil.Peer, *syncBuffer) {
	t.Helper()
	cliEnd, srvEnd := transport.Pipe()
	out := &syncBuffer{}
	opts.Out = out
	logger := testutil.Logger(t)
	opts.Logger = &logger
	c := New(cliEnd, opts)
	t.Cleanup(func() { _ = cliEnd.Close() })
	return c, testutil.NewPeer(t, srvEnd), out
}

func liveHub(t *testing.T) *server.Hub {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Burst = 1000
	h := server.NewHub(cfg, testutil.Logger(t), nil)
	t.Cleanup(func() { _ = h.Shutdown(2 * time.Second) })
	return h
}

func attach(t *testing.T, h *server.Hub) (transport.Channel, *testutil.Peer) {
	t.Helper()
	srvEnd, cliEnd := transport.Pipe()
	_, err := h.Attach(srvEnd)
	require.NoError(t, err)
	return cliEnd, testutil.NewPeer(t, cliEnd)
}

func TestRegisterConfirmed(t *testing.T) {
	c, srv, out := fakeServer(t, Options{})

	done := make(chan error, 1)
	go func() { done <- c.Register(t.Context(), "alice") }()

	reg := srv.Next()
	assert.Equal(t, packet.VerbRegister, reg.Verb)
	assert.Equal(t, packet.Unregistered, reg.Source)
	assert.Equal(t, "alice", reg.Message)
	assert.NoError(t, checksum.NewGuard(true).Check(reg))

	srv.Send(packet.Server("alice", "welcome alice, you are registered"))
	require.NoError(t, <-done)
	assert.Equal(t, "alice", c.Alias())
	assert.Contains(t, out.String(), "welcome alice")
}

func TestRegisterRejected(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{})

	done := make(chan error, 1)
	go func() { done <- c.Register(t.Context(), "alice") }()

	srv.Next()
	srv.Send(packet.Server(packet.Unregistered, `error: alias "alice" is taken`))
	err := <-done
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "is taken")
	assert.Equal(t, packet.Unregistered, c.Alias())
}

func TestRegisterBoundedByContext(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Register(ctx, "alice") }()

	srv.Next()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Register ignored its context")
	}
}

func TestRegisterRetransmitsOnResend(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{
		Guard: checksum.NewGuard(false, checksum.WithCorrupter(checksum.CorruptFirst(1))),
	})

	done := make(chan error, 1)
	go func() { done <- c.Register(t.Context(), "alice") }()

	first := srv.Next()
	assert.ErrorIs(t, checksum.NewGuard(true).Check(first), checksum.ErrMismatch)
	srv.SendRaw(packet.ResendBlock())

	second := srv.Next()
	assert.NoError(t, checksum.NewGuard(true).Check(second))
	assert.Equal(t, "alice", second.Message)

	srv.Send(packet.Server("alice", "welcome"))
	require.NoError(t, <-done)
}

func TestLoginPromptsAfterRejection(t *testing.T) {
	c, srv, out := fakeServer(t, Options{})
	src := NewLineSource(strings.NewReader("\nbob\n"))

	done := make(chan error, 1)
	go func() { done <- c.Login(t.Context(), src, "alice") }()

	assert.Equal(t, "alice", srv.Next().Message)
	srv.Send(packet.Server(packet.Unregistered, `error: alias "alice" is taken`))
	assert.Equal(t, "bob", srv.Next().Message)
	srv.Send(packet.Server("bob", "welcome bob"))

	require.NoError(t, <-done)
	assert.Equal(t, "bob", c.Alias())
	assert.Contains(t, out.String(), aliasPrompt)
}

func TestLoginWithoutInput(t *testing.T) {
	c, _, _ := fakeServer(t, Options{})
	err := c.Login(t.Context(), NewLineSource(strings.NewReader("")), "")
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestSendEnciphers(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{Cipher: cipher.Rot13{}})
	c.setAlias("alice")

	go func() { _ = c.SendInput(Input{Verb: packet.VerbOne, Destination: "bob", Message: "hello"}) }()
	got := srv.Next()
	assert.Equal(t, "rot13", got.Encoding)
	assert.Equal(t, "uryyb", got.Message)
	assert.Equal(t, "alice", got.Source)
	assert.NoError(t, checksum.NewGuard(true).Check(got))
}

func TestRetransmitExhausted(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{MaxResends: 2})
	c.setAlias("alice")
	lines := make(chanSource)

	done := make(chan error, 1)
	go func() { done <- c.Run(t.Context(), lines) }()

	lines <- "all:hi"
	srv.Next()
	for i := 0; i < 2; i++ {
		srv.SendRaw(packet.ResendBlock())
		assert.Equal(t, "hi", srv.Next().Message)
	}
	srv.SendRaw(packet.ResendBlock())

	select {
	case err := <-done:
		require.ErrorIs(t, err, checksum.ErrExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after resends were exhausted")
	}
}

func TestRunRendersAndTracksRename(t *testing.T) {
	c, srv, out := fakeServer(t, Options{})
	c.setAlias("alice")
	lines := make(chanSource)

	done := make(chan error, 1)
	go func() { done <- c.Run(t.Context(), lines) }()

	srv.Send(packet.New("bob", "alice", packet.VerbOne, "psst"))
	srv.Send(packet.New("carol", "all", packet.VerbAll, "hey all"))

	lines <- "reg:dave"
	assert.Equal(t, "dave", srv.Next().Message)
	srv.Send(packet.Server("dave", "you are now known as dave"))
	require.Eventually(t, func() bool { return c.Alias() == "dave" }, 2*time.Second, 10*time.Millisecond)

	lines <- "bye:"
	bye := srv.Next()
	assert.Equal(t, packet.VerbBye, bye.Verb)
	assert.Equal(t, "dave", bye.Source)
	require.NoError(t, <-done)

	rendered := out.String()
	assert.Contains(t, rendered, "[bob] psst")
	assert.Contains(t, rendered, "[carol to all] hey all")
	assert.Contains(t, rendered, "[server] you are now known as dave")
}

func TestRunSendsByeOnEOF(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{})
	c.setAlias("alice")
	lines := make(chanSource)

	done := make(chan error, 1)
	go func() { done <- c.Run(t.Context(), lines) }()

	close(lines)
	assert.Equal(t, packet.VerbBye, srv.Next().Verb)
	require.NoError(t, <-done)
}

func TestRunReportsServerDisconnect(t *testing.T) {
	c, srv, _ := fakeServer(t, Options{})
	c.setAlias("alice")

	done := make(chan error, 1)
	go func() { done <- c.Run(t.Context(), make(chanSource)) }()

	require.NoError(t, srv.Channel().Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not notice the disconnect")
	}
}

func TestOverlongMessageAgainstRelay(t *testing.T) {
	h := liveHub(t)
	aliceCh, _ := attach(t, h)
	_, bob := attach(t, h)

	alice := New(aliceCh, Options{Cipher: cipher.Rot13{}})
	require.NoError(t, alice.Register(t.Context(), "alice"))
	bob.Register("bob")

	long := strings.Repeat("hello ", 60)
	errc := make(chan error, 1)
	go func() { errc <- alice.SendInput(Input{Verb: packet.VerbOne, Destination: "bob", Message: long}) }()

	got := bob.Next()
	require.NoError(t, <-errc)
	assert.Equal(t, "rot13", got.Encoding)
	assert.Equal(t, long[:packet.MessageWidth], cipher.Rot13{}.Decode(got.Message))
}

func TestResendConvergesAgainstRelay(t *testing.T) {
	h := liveHub(t)
	aliceCh, _ := attach(t, h)
	_, bob := attach(t, h)

	out := &syncBuffer{}
	alice := New(aliceCh, Options{
		Guard: checksum.NewGuard(false, checksum.WithCorrupter(checksum.CorruptFirst(1))),
		Out:   out,
	})
	// the corrupted registration is retransmitted before Register returns
	require.NoError(t, alice.Register(t.Context(), "alice"))
	bob.Register("bob")

	lines := make(chanSource)
	done := make(chan error, 1)
	go func() { done <- alice.Run(t.Context(), lines) }()

	lines <- "bob:made it"
	got := bob.Next()
	assert.Equal(t, "alice", got.Source)
	assert.Equal(t, "made it", got.Message)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[server] bob has joined the chat")
	}, 2*time.Second, 10*time.Millisecond)

	lines <- "bye:"
	require.NoError(t, <-done)
	bob.ExpectNotice("alice has left the chat")
}
