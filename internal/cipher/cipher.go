// Package cipher holds the reversible message transforms a packet may
// declare in its encoding slot.
package cipher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknown = errors.New("cipher: unknown encoding")

// Cipher is a reversible text transform. Decode(Encode(x)) must equal x.
type Cipher interface {
	Name() string
	Encode(plain string) string
	Decode(encoded string) string
}

var (
	mu       sync.RWMutex
	registry = map[string]Cipher{}
)

func init() {
	Register(Cleartext{})
	Register(Rot13{})
}

// Register makes c available under its name, replacing any previous entry.
func Register(c Cipher) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(c.Name())] = c
}

// Lookup returns the cipher registered under name. An empty name resolves
// to cleartext.
func Lookup(name string) (Cipher, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Cleartext{}, nil
	}
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return c, nil
}

// LookupOrClear is Lookup with a cleartext fallback for unknown names.
func LookupOrClear(name string) Cipher {
	c, err := Lookup(name)
	if err != nil {
		return Cleartext{}
	}
	return c
}

// Names lists the registered encodings in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Cleartext performs no transformation.
type Cleartext struct{}

func (Cleartext) Name() string               { return "cleartext" }
func (Cleartext) Encode(plain string) string { return plain }
func (Cleartext) Decode(enc string) string   { return enc }

// Rot13 rotates ASCII letters by 13 places and leaves everything else alone.
type Rot13 struct{}

func (Rot13) Name() string               { return "rot13" }
func (Rot13) Encode(plain string) string { return strings.Map(rot13, plain) }
func (Rot13) Decode(enc string) string   { return strings.Map(rot13, enc) }

func rot13(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a' + (r-'a'+13)%26
	case r >= 'A' && r <= 'Z':
		return 'A' + (r-'A'+13)%26
	}
	return r
}
