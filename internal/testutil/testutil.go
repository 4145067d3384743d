// Package testutil provides helpers shared by the relay's package tests:
// a buffered test logger and a scripted protocol peer.
package testutil

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/logging"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Logger returns a debug logger whose output is replayed through t.Log only
// when the test fails. Session goroutines may still log after the test
// returns, which t.Log does not allow.
func Logger(t testing.TB) zerolog.Logger {
	t.Helper()
	out := &lockedBuffer{}
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured log output:\n%s", out.String())
		}
	})
	return logging.New(logging.ProfileTest, "test", out)
}
