package model

import (
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

// TestEntry_IsExpired verifies lifespan and max idle expiry.
func TestEntry_IsExpired(t *testing.T) {
	e := NewEntry(NewKey("k"), []byte("v"), int64(time.Second), -1)
	now := e.Created()
	require.False(t, e.IsExpired(now))
	require.True(t, e.IsExpired(now+int64(2*time.Second)))

	idle := NewEntry(NewKey("k"), nil, -1, int64(time.Second))
	require.False(t, idle.IsExpired(idle.TouchedAt()+int64(time.Millisecond)))
	require.True(t, idle.IsExpired(idle.TouchedAt()+int64(2*time.Second)))

	immortal := NewEntry(NewKey("k"), nil, -1, -1)
	require.False(t, immortal.CanExpire())
	require.False(t, immortal.IsExpired(immortal.Created()+int64(time.Hour)))
}

// TestEntry_SwapValue returns the weight delta.
func TestEntry_SwapValue(t *testing.T) {
	e := NewEntry(NewKey("k"), make([]byte, 4), -1, -1)
	require.Equal(t, int64(6), e.SwapValue(make([]byte, 10)))
	require.Len(t, e.Value(), 10)
}

// TestEntry_Queue allows a single enqueue until dequeued.
func TestEntry_Queue(t *testing.T) {
	e := NewEntry(NewKey("k"), nil, -1, -1)
	require.True(t, e.Enqueue())
	require.False(t, e.Enqueue())
	e.Dequeue()
	require.True(t, e.Enqueue())
}

// TestEntry_Binary verifies the persisted layout.
func TestEntry_Binary(t *testing.T) {
	e := NewEntry(NewKey("key"), []byte("value"), 1000, 2000)
	data, err := e.MarshalBinary()
	require.NoError(t, err)

	out, err := UnmarshalEntry(data)
	require.NoError(t, err)
	require.True(t, out.Key().IsTheSame(e.Key()))
	require.Equal(t, []byte("value"), out.Value())
	require.Equal(t, e.Created(), out.Created())
	require.Equal(t, int64(1000), out.Lifespan())
	require.Equal(t, int64(2000), out.MaxIdle())

	_, err = UnmarshalEntry(data[:10])
	require.ErrorIs(t, err, ErrMalformedEntry)
}
