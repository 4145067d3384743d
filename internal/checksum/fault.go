package checksum

import "sync"

// Corrupter damages a digest before it is sent. It exists so tests can
// drive the RESEND handshake deterministically.
type Corrupter interface {
	Corrupt(digest string) string
}

// CorrupterFunc adapts a function to the Corrupter interface.
type CorrupterFunc func(string) string

func (f CorrupterFunc) Corrupt(digest string) string { return f(digest) }

// CorruptFirst returns a Corrupter that damages only the first n digests.
func CorruptFirst(n int) Corrupter {
	var (
		mu   sync.Mutex
		seen int
	)
	return CorrupterFunc(func(digest string) string {
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen > n {
			return digest
		}
		return Flip(digest)
	})
}

// Flip changes the first hex digit of digest so it no longer verifies.
func Flip(digest string) string {
	if digest == "" {
		return "0"
	}
	b := []byte(digest)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}
