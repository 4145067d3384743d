package transport

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/packet"
)

func TestStreamPipeRoundTrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	frame := packet.Encode(packet.New("alice", "bob", packet.VerbOne, "hi"))
	errc := make(chan error, 1)
	go func() { errc <- a.Send(frame) }()

	got, err := b.Receive()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, frame, got)
}

func TestStreamRejectsWrongSize(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	assert.ErrorIs(t, a.Send([]byte("short")), ErrFrameSize)
}

func TestStreamTruncatedFrameIsMalformed(t *testing.T) {
	client, server := net.Pipe()
	s := NewStream(server)
	defer s.Close()

	go func() {
		_, _ = client.Write([]byte(strings.Repeat("x", 100)))
		_ = client.Close()
	}()

	_, err := s.Receive()
	assert.ErrorIs(t, err, packet.ErrMalformedFrame)
}

func TestStreamCloseUnblocksReceive(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := a.Receive()
		errc <- err
	}()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ch := NewWebSocket(conn, r.RemoteAddr)
		defer ch.Close()
		block, err := ch.Receive()
		if err != nil {
			return
		}
		received <- block
		_ = ch.Send(packet.ResendBlock())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch, err := DialWebSocket(t.Context(), url, nil)
	require.NoError(t, err)
	defer ch.Close()

	frame := packet.Encode(packet.New("alice", "", packet.VerbWho, ""))
	require.NoError(t, ch.Send(frame))

	select {
	case got := <-received:
		assert.Equal(t, frame, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	reply, err := ch.Receive()
	require.NoError(t, err)
	assert.True(t, packet.IsResend(reply))
}
