package registry

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct{ id int }

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New[*conn]()
	first, second := &conn{1}, &conn{2}

	require.NoError(t, r.Register("alice", first))
	err := r.Register("alice", second)
	assert.ErrorIs(t, err, ErrAliasTaken)

	got, err := r.Lookup("alice")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, r.Len())
}

func TestRename(t *testing.T) {
	r := New[*conn]()
	a, b := &conn{1}, &conn{2}
	require.NoError(t, r.Register("alice", a))
	require.NoError(t, r.Register("bob", b))

	assert.ErrorIs(t, r.Rename("carol", "dave"), ErrNotFound)
	assert.ErrorIs(t, r.Rename("alice", "bob"), ErrAliasTaken)
	require.NoError(t, r.Rename("alice", "alice"))

	require.NoError(t, r.Rename("alice", "al"))
	_, err := r.Lookup("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := r.Lookup("al")
	require.NoError(t, err)
	assert.Same(t, a, got)

	// the old alias is free again
	require.NoError(t, r.Register("alice", &conn{3}))
}

func TestRemove(t *testing.T) {
	r := New[*conn]()
	a := &conn{1}
	require.NoError(t, r.Register("alice", a))

	r.Remove("alice")
	r.Remove("alice")
	r.Remove("nobody")

	_, err := r.Lookup("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, r.Len())
}

func TestRemoveIf(t *testing.T) {
	r := New[*conn]()
	a, b := &conn{1}, &conn{2}
	require.NoError(t, r.Register("alice", a))

	assert.False(t, r.RemoveIf("alice", b))
	assert.False(t, r.RemoveIf("bob", a))
	assert.True(t, r.RemoveIf("alice", a))
	assert.Zero(t, r.Len())
}

func TestSnapshotOrdered(t *testing.T) {
	r := New[*conn]()
	for i, alias := range []string{"carol", "alice", "bob"} {
		require.NoError(t, r.Register(alias, &conn{i}))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alice", snap[0].Alias)
	assert.Equal(t, "bob", snap[1].Alias)
	assert.Equal(t, "carol", snap[2].Alias)
	assert.Equal(t, []string{"alice", "carol"}, r.Aliases("bob"))
}

func TestConcurrentOperationsKeepAliasesUnique(t *testing.T) {
	r := New[*conn]()
	const workers = 16
	const ops = 500

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(id)))
			c := &conn{id}
			for i := 0; i < ops; i++ {
				a := fmt.Sprintf("user%d", rng.Intn(8))
				b := fmt.Sprintf("user%d", rng.Intn(8))
				switch rng.Intn(4) {
				case 0:
					_ = r.Register(a, c)
				case 1:
					_ = r.Rename(a, b)
				case 2:
					r.Remove(a)
				case 3:
					snap := r.Snapshot()
					seen := make(map[string]bool, len(snap))
					for _, e := range snap {
						if seen[e.Alias] {
							t.Errorf("duplicate alias %q in snapshot", e.Alias)
						}
						seen[e.Alias] = true
					}
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 8)
	seen := map[string]bool{}
	for _, e := range r.Snapshot() {
		assert.False(t, seen[e.Alias])
		seen[e.Alias] = true
	}
}
