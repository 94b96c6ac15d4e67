package util

import (
	"fmt"
	"time"
)

var elapsedUnits = []struct {
	name    string
	seconds int64
}{
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// TimeAgo renders d in the largest whole unit among hours, minutes and
// seconds, e.g. "2 minutes" or "1 hour". Durations under a second
// render as "0 seconds".
func TimeAgo(d time.Duration) string {
	secs := int64(d / time.Second)
	for _, unit := range elapsedUnits {
		n := secs / unit.seconds
		if n >= 1 {
			return pluralize(n, unit.name)
		}
	}
	return "0 seconds"
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
