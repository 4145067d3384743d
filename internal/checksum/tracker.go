package checksum

import (
	"fmt"
	"sync"
)

// DefaultMaxAttempts bounds consecutive retransmissions of one packet.
const DefaultMaxAttempts = 3

// Tracker counts consecutive resend attempts and fails past the cap.
type Tracker struct {
	mu       sync.Mutex
	max      int
	attempts int
}

func NewTracker(max int) *Tracker {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return &Tracker{max: max}
}

// Fail records one more attempt. It returns ErrExhausted once the number of
// attempts exceeds the cap.
func (t *Tracker) Fail() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if t.attempts > t.max {
		return t.attempts, fmt.Errorf("%w after %d attempts", ErrExhausted, t.max)
	}
	return t.attempts, nil
}

// Reset clears the count after a successful delivery or a new packet.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts = 0
}

func (t *Tracker) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *Tracker) Max() int { return t.max }
