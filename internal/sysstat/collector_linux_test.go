//go:build linux

package sysstat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysinfoCollector_Read(t *testing.T) {
	r, err := NewCollector("/").Read()

	require.NoError(t, err)
	assert.Positive(t, r.TotalMemory)
	assert.LessOrEqual(t, r.FreeMemory, r.TotalMemory)
	assert.Positive(t, r.DiskTotal)
}
