package control

import (
	"sort"
	"time"

	"github.com/fieldctl/fieldbus/pkg/se3"
)

type poseHistoryEntry struct {
	stamp time.Time
	pose  se3.Pose
}

// PoseHistory is a time-ordered, window-bounded log of odometry poses,
// queryable by nearest-past stamp. The control loop keeps two instances: a
// short one used internally to timestamp each tick's own state, and a
// longer one goal events are resolved against, since a goal's stamp can
// trail the tick that produced the referenced pose by as much as the
// round trip through the bus.
type PoseHistory struct {
	window  time.Duration
	entries []poseHistoryEntry
}

// NewPoseHistory constructs a history retaining entries no older than
// window relative to the most recently pushed stamp.
func NewPoseHistory(window time.Duration) *PoseHistory {
	return &PoseHistory{window: window}
}

// Push appends a (stamp, pose) sample, evicting entries that have aged out
// of the window. Entries are expected to arrive in non-decreasing stamp
// order, matching the control loop's own monotonic tick stamps.
func (h *PoseHistory) Push(stamp time.Time, pose se3.Pose) {
	h.entries = append(h.entries, poseHistoryEntry{stamp: stamp, pose: pose})
	cutoff := stamp.Add(-h.window)
	i := 0
	for i < len(h.entries) && h.entries[i].stamp.Before(cutoff) {
		i++
	}
	h.entries = h.entries[i:]
}

// FindNearest returns the pose at the latest entry whose stamp is not
// after the queried stamp, i.e. the most recent pose known as of stamp. It
// reports false if the history is empty or every entry postdates stamp.
func (h *PoseHistory) FindNearest(stamp time.Time) (se3.Pose, bool) {
	if len(h.entries) == 0 {
		return se3.Pose{}, false
	}
	i := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].stamp.After(stamp)
	})
	if i == 0 {
		return se3.Pose{}, false
	}
	return h.entries[i-1].pose, true
}
