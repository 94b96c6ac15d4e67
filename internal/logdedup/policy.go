package logdedup

import "time"

// Policy controls how aggressively repeated log lines are suppressed.
type Policy struct {
	// Visibility is the longest a repeating line stays hidden.
	Visibility time.Duration
	// HighCountVisibility replaces Visibility once a line has repeated
	// more than HighCountThreshold times.
	HighCountVisibility time.Duration
	HighCountThreshold  int
	// CleanupInterval is both the sweep period and the idle age after
	// which an entry is flushed or forgotten.
	CleanupInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Visibility:          5 * time.Second,
		HighCountVisibility: 60 * time.Second,
		HighCountThreshold:  250,
		CleanupInterval:     10 * time.Second,
	}
}

func (p Policy) visibilityFor(count int) time.Duration {
	if count > p.HighCountThreshold {
		return p.HighCountVisibility
	}
	return p.Visibility
}
