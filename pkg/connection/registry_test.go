package connection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddLookup(t *testing.T) {
	r := NewRegistry()

	id, err := r.Add(7)
	require.NoError(t, err)

	fd, err := r.Socket(id)
	require.NoError(t, err)
	assert.Equal(t, 7, fd)

	got, err := r.ID(7)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	id, err := r.Add(7)
	require.NoError(t, err)

	removed, ok := r.Remove(7)
	require.True(t, ok)
	assert.Equal(t, id, removed)

	_, ok = r.Remove(7)
	assert.False(t, ok)

	_, err = r.Socket(id)
	assert.ErrorIs(t, err, ErrUnknownConnection)
	_, err = r.ID(7)
	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryDuplicateSocket(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(3)
	require.NoError(t, err)

	_, err = r.Add(3)
	assert.ErrorIs(t, err, ErrSocketInUse)
}

func TestRegistryIDsNeverReused(t *testing.T) {
	r := NewRegistry()
	seen := make(map[ID]bool)

	// Descriptors are recycled by the kernel; IDs must not be.
	for cycle := 0; cycle < 1000; cycle++ {
		fd := cycle % 4
		id, err := r.Add(fd)
		require.NoError(t, err)
		require.False(t, seen[id], "id %s reused", id)
		seen[id] = true
		_, ok := r.Remove(fd)
		require.True(t, ok)
	}
	assert.Equal(t, uint64(1000), r.Issued())
}

func TestRegistryPrefixPerInstance(t *testing.T) {
	a, err := NewRegistry().Add(1)
	require.NoError(t, err)
	b, err := NewRegistry().Add(1)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(string(a), "-1"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "HANDSHAKING", StateHandshaking.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
