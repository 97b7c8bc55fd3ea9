package lease_test

import (
	"testing"
	"time"

	"vigil/internal/lease"
)

func TestTaskLockedAndStale(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name   string
		task   lease.Task
		locked bool
		stale  bool
	}{
		{
			name:   "in progress with live lease",
			task:   lease.Task{Status: lease.TaskInProgress, LeaseExpiresAt: &future},
			locked: true,
		},
		{
			name:  "in progress with expired lease",
			task:  lease.Task{Status: lease.TaskInProgress, LeaseExpiresAt: &past},
			stale: true,
		},
		{
			name: "pending carries no lease",
			task: lease.Task{Status: lease.TaskPending},
		},
		{
			name: "completed with stray expiry",
			task: lease.Task{Status: lease.TaskCompleted, LeaseExpiresAt: &past},
		},
		{
			name: "in progress missing expiry is neither",
			task: lease.Task{Status: lease.TaskInProgress},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.task.Locked(now); got != tc.locked {
				t.Fatalf("Locked = %v, want %v", got, tc.locked)
			}
			if got := tc.task.Stale(now); got != tc.stale {
				t.Fatalf("Stale = %v, want %v", got, tc.stale)
			}
		})
	}
}
