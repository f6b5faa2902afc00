package model

import (
	"github.com/stretchr/testify/require"
	"testing"
)

// TestNewKey is stable for equal strings.
func TestNewKey(t *testing.T) {
	require.Equal(t, NewKey("k").Value(), NewKey("k").Value())
	require.True(t, NewKey("k").IsTheSame(NewKey("k")))
	require.False(t, NewKey("k").IsTheSame(NewKey("other")))
	require.Equal(t, "k", NewKey("k").String())
}
