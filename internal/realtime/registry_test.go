package realtime

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterReportsFirstConnection(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register("a", "s1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.Register("a", "s2")
	require.NoError(t, err)
	assert.False(t, first, "second device is not the first connection")

	first, err = r.Register("a", "s1")
	require.NoError(t, err)
	assert.False(t, first, "re-registering a handle is a no-op")

	assert.Equal(t, []ConnID{"s1", "s2"}, r.HandlesFor("a"))
}

func TestRegistry_HandleOwnedByAnotherUser(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", "s1")
	require.NoError(t, err)

	_, err = r.Register("b", "s1")

	assert.ErrorIs(t, err, ErrHandleOwned)
	assert.False(t, r.IsLive("b"))
}

func TestRegistry_UnregisterLastConnection(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "s1")
	r.Register("a", "s2")

	userID, last, ok := r.Unregister("s1")
	assert.Equal(t, "a", userID)
	assert.False(t, last)
	assert.True(t, ok)
	assert.True(t, r.IsLive("a"))

	_, last, ok = r.Unregister("s2")
	assert.True(t, last)
	assert.True(t, ok)
	assert.False(t, r.IsLive("a"))
	assert.Equal(t, 0, r.Users(), "empty user entries are removed")
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry()

	_, last, ok := r.Unregister("ghost")

	assert.False(t, ok)
	assert.False(t, last)
}

// TestRegistry_IndicesStayInverse drives random register/unregister sequences
// and checks the forward and reverse indices after every step.
func TestRegistry_IndicesStayInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry()
	users := []string{"u1", "u2", "u3"}

	for step := 0; step < 2000; step++ {
		conn := ConnID(fmt.Sprintf("c%d", rng.Intn(12)))
		if rng.Intn(2) == 0 {
			r.Register(users[rng.Intn(len(users))], conn)
		} else {
			r.Unregister(conn)
		}

		total := 0
		for userID, set := range r.byUser {
			require.NotEmpty(t, set, "user %s kept an empty set", userID)
			for c := range set {
				require.Equal(t, userID, r.byConn[c], "reverse index disagrees for %s", c)
				total++
			}
		}
		for c, userID := range r.byConn {
			_, ok := r.byUser[userID][c]
			require.True(t, ok, "forward index missing %s", c)
		}
		require.Equal(t, len(r.byConn), total)
	}
}
