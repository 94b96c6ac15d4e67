package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	f.Advance(1500 * time.Millisecond)

	assert.Equal(t, start.Add(1500*time.Millisecond), f.Now())
}

func TestReal_Moves(t *testing.T) {
	c := Real()
	a := c.Now()
	assert.False(t, c.Now().Before(a))
}
