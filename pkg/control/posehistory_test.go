package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldctl/fieldbus/pkg/se3"
)

func TestFindNearestReturnsLatestPastEntry(t *testing.T) {
	h := NewPoseHistory(10 * time.Second)
	base := time.Now()

	h.Push(base, se3.Pose{X: 0})
	h.Push(base.Add(1*time.Second), se3.Pose{X: 1})
	h.Push(base.Add(2*time.Second), se3.Pose{X: 2})

	pose, ok := h.FindNearest(base.Add(1500 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, 1.0, pose.X)
}

func TestFindNearestBeforeFirstEntryFails(t *testing.T) {
	h := NewPoseHistory(10 * time.Second)
	base := time.Now()
	h.Push(base, se3.Pose{X: 5})

	_, ok := h.FindNearest(base.Add(-time.Second))
	require.False(t, ok)
}

func TestPushEvictsEntriesOutsideWindow(t *testing.T) {
	h := NewPoseHistory(1 * time.Second)
	base := time.Now()

	h.Push(base, se3.Pose{X: 0})
	h.Push(base.Add(2*time.Second), se3.Pose{X: 2})

	_, ok := h.FindNearest(base)
	require.False(t, ok, "entry older than the window should have been evicted")

	pose, ok := h.FindNearest(base.Add(2 * time.Second))
	require.True(t, ok)
	require.Equal(t, 2.0, pose.X)
}

func TestFindNearestOnEmptyHistory(t *testing.T) {
	h := NewPoseHistory(10 * time.Second)
	_, ok := h.FindNearest(time.Now())
	require.False(t, ok)
}
