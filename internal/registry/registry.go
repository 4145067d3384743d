// Package registry maps chat aliases to live connection handles.
//
// All operations share one lock, so a Snapshot never observes a half
// applied Register, Rename or Remove.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrAliasTaken = errors.New("registry: alias taken")
	ErrNotFound   = errors.New("registry: alias not found")
)

// Entry is one alias and the connection it is bound to.
type Entry[C comparable] struct {
	Alias string
	Conn  C
}

// Registry is a concurrent alias -> connection map. The zero value is not
// usable; call New.
type Registry[C comparable] struct {
	mu      sync.RWMutex
	entries map[string]C
}

func New[C comparable]() *Registry[C] {
	return &Registry[C]{entries: make(map[string]C)}
}

// Register binds alias to conn. It fails with ErrAliasTaken when alias is
// already bound.
func (r *Registry[C]) Register(alias string, conn C) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[alias]; exists {
		return fmt.Errorf("%w: %q", ErrAliasTaken, alias)
	}
	r.entries[alias] = conn
	return nil
}

// Rename moves the connection bound to oldAlias under newAlias.
func (r *Registry[C]) Rename(oldAlias, newAlias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.entries[oldAlias]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, oldAlias)
	}
	if oldAlias == newAlias {
		return nil
	}
	if _, taken := r.entries[newAlias]; taken {
		return fmt.Errorf("%w: %q", ErrAliasTaken, newAlias)
	}
	delete(r.entries, oldAlias)
	r.entries[newAlias] = conn
	return nil
}

// Remove drops alias. Removing an absent alias is a no-op.
func (r *Registry[C]) Remove(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, alias)
}

// RemoveIf drops alias only while it is still bound to conn and reports
// whether it did.
func (r *Registry[C]) RemoveIf(alias string, conn C) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[alias]
	if !ok || current != conn {
		return false
	}
	delete(r.entries, alias)
	return true
}

// Lookup returns the connection bound to alias.
func (r *Registry[C]) Lookup(alias string) (C, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.entries[alias]
	if !ok {
		var zero C
		return zero, fmt.Errorf("%w: %q", ErrNotFound, alias)
	}
	return conn, nil
}

// Snapshot returns every entry ordered by alias, taken at one point in time.
func (r *Registry[C]) Snapshot() []Entry[C] {
	r.mu.RLock()
	out := make([]Entry[C], 0, len(r.entries))
	for alias, conn := range r.entries {
		out = append(out, Entry[C]{Alias: alias, Conn: conn})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Alias < out[j].Alias
	})
	return out
}

// Aliases returns the sorted aliases, leaving out exclude.
func (r *Registry[C]) Aliases(exclude string) []string {
	snap := r.Snapshot()
	out := make([]string, 0, len(snap))
	for _, e := range snap {
		if e.Alias == exclude {
			continue
		}
		out = append(out, e.Alias)
	}
	return out
}

func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
