package embedded

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEventLog_Read verifies filtering, ordering and the bounded size.
func TestEventLog_Read(t *testing.T) {
	l := NewEventLog(3)
	for i := range 4 {
		l.Log(LevelInfo, CategoryLifecycle, "c", fmt.Sprintf("event %d", i))
	}
	l.Log(LevelWarn, CategoryCluster, "c", "split")

	all := l.Read(EventFilter{})
	require.Len(t, all, 3)
	require.Equal(t, "split", all[0].Message)
	require.Equal(t, "event 3", all[1].Message)
	require.Equal(t, "event 2", all[2].Message)

	require.Len(t, l.Read(EventFilter{Category: CategoryLifecycle}), 2)
	require.Len(t, l.Read(EventFilter{Level: LevelWarn}), 1)
	require.Len(t, l.Read(EventFilter{Count: 1}), 1)
}
