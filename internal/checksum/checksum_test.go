package checksum

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/packet"
)

func TestComputeFillsChecksumSlot(t *testing.T) {
	sum := Compute("hello")
	assert.Len(t, sum, packet.ChecksumWidth)
	assert.Equal(t, sum, Compute("hello"))
	assert.Equal(t, sum, Compute("  hello  "))
}

func TestVerifyAgreement(t *testing.T) {
	messages := []string{"", "hi", "hello world", "grüße", strings.Repeat("x", packet.MessageWidth)}

	for _, m := range messages {
		assert.True(t, Verify(m, Compute(m)), "verify(%q, compute(%q))", m, m)
		assert.True(t, Verify(m, strings.ToUpper(Compute(m))))
		for _, other := range messages {
			if other == m {
				continue
			}
			assert.False(t, Verify(m, Compute(other)), "verify(%q, compute(%q))", m, other)
		}
	}
}

func TestGuardStampAndCheck(t *testing.T) {
	g := NewGuard(true)
	p := packet.New("alice", "bob", packet.VerbOne, "hi bob")
	g.Stamp(&p)
	require.NoError(t, g.Check(p))

	p.Message = "hi eve"
	assert.ErrorIs(t, g.Check(p), ErrMismatch)
}

func TestGuardMissingChecksum(t *testing.T) {
	p := packet.New("alice", "", packet.VerbAll, "hi")

	assert.NoError(t, NewGuard(false).Check(p))
	assert.ErrorIs(t, NewGuard(true).Check(p), ErrMissing)
}

func TestGuardSurvivesWireRoundTrip(t *testing.T) {
	g := NewGuard(true)
	p := packet.New("alice", "", packet.VerbAll, "hi all")
	g.Stamp(&p)

	out, err := packet.Decode(packet.Encode(p))
	require.NoError(t, err)
	assert.NoError(t, g.Check(out))
}

func TestGuardCoversTruncatedMessage(t *testing.T) {
	g := NewGuard(true)
	long := strings.Repeat("x", packet.MessageWidth+44)
	p := packet.New("alice", "bob", packet.VerbOne, long)
	g.Stamp(&p)
	assert.Equal(t, Compute(long[:packet.MessageWidth]), p.Checksum)

	out, err := packet.Decode(packet.Encode(p))
	require.NoError(t, err)
	assert.Len(t, out.Message, packet.MessageWidth)
	assert.NoError(t, g.Check(out))
}

func TestCorruptFirst(t *testing.T) {
	g := NewGuard(true, WithCorrupter(CorruptFirst(1)))

	first := packet.New("alice", "", packet.VerbAll, "hi")
	g.Stamp(&first)
	assert.ErrorIs(t, g.Check(first), ErrMismatch)

	second := first
	g.Stamp(&second)
	assert.NoError(t, g.Check(second))
	assert.Equal(t, first.Message, second.Message)
}

func TestFlip(t *testing.T) {
	sum := Compute("x")
	assert.NotEqual(t, sum, Flip(sum))
	assert.Len(t, Flip(sum), len(sum))
	assert.Equal(t, "1bc", Flip("0bc"))
}

func TestTracker(t *testing.T) {
	tr := NewTracker(3)
	for i := 1; i <= 3; i++ {
		n, err := tr.Fail()
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	_, err := tr.Fail()
	assert.ErrorIs(t, err, ErrExhausted)

	tr.Reset()
	assert.Zero(t, tr.Attempts())
	assert.Equal(t, DefaultMaxAttempts, NewTracker(0).Max())
}
