package logdedup_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/logdedup"
	"flairnode-agent/internal/model"
)

type published struct {
	at     time.Time
	record model.LogRecord
}

func newTestManager(t *testing.T) (*logdedup.Manager, *clock.Fake, *[]published) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	bus := eventbus.New()
	var out []published
	bus.Subscribe(eventbus.TopicLog, func(payload any) error {
		rec := payload.(model.LogRecord)
		out = append(out, published{at: clk.Now(), record: rec})
		return nil
	})
	return logdedup.NewManager(logdedup.DefaultPolicy(), clk, bus), clk, &out
}

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		in   string
		want model.LogLevel
	}{
		{"INFO", model.LevelInfo},
		{"  Warn ", model.LevelWarn},
		{"error", model.LevelError},
		{"debug", model.LevelUnknown},
		{"", model.LevelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logdedup.NormalizeLevel(tt.in))
		})
	}
}

func TestLog_FirstOccurrencePublishesImmediately(t *testing.T) {
	m, _, out := newTestManager(t)
	logger := m.For("NetworkModule")

	logger.Log(" INFO ", "hello")

	require.Len(t, *out, 1)
	rec := (*out)[0].record
	assert.Equal(t, "NetworkModule", rec.Module)
	assert.Equal(t, model.LevelInfo, rec.Level)
	assert.Equal(t, "hello", rec.Message)
}

func TestLog_DistinctLevelsAreDistinctStreams(t *testing.T) {
	m, _, out := newTestManager(t)
	logger := m.For("ConfigManager")

	logger.Info("disk full")
	logger.Error("disk full")
	logger.Info("disk full")

	require.Len(t, *out, 2)
	assert.Equal(t, model.LevelInfo, (*out)[0].record.Level)
	assert.Equal(t, model.LevelError, (*out)[1].record.Level)
}

func TestLog_RepeatsShownAfterVisibilityInterval(t *testing.T) {
	m, clk, out := newTestManager(t)
	logger := m.For("UDPManager")

	logger.Warn("no reply")
	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		logger.Warn("no reply")
	}
	require.Len(t, *out, 1, "repeats inside the visibility interval stay hidden")

	clk.Advance(time.Second)
	logger.Warn("no reply")

	require.Len(t, *out, 2)
	assert.Equal(t, "7 DUPLICATES | no reply", (*out)[1].record.Message)
	assert.Equal(t, model.LevelWarn, (*out)[1].record.Level)
}

func TestLog_PublishedCountIsSublinear(t *testing.T) {
	m, clk, out := newTestManager(t)
	logger := m.For("Scheduler")

	const calls = 2000
	for i := 0; i < calls; i++ {
		logger.Error("fixture timeout")
		clk.Advance(100 * time.Millisecond)
	}

	assert.Less(t, len(*out), 20)
	assert.Greater(t, len(*out), 1)

	// While repeats continue, something is shown at least every
	// max(visibility, cleanup) plus the high count window.
	for i := 1; i < len(*out); i++ {
		gap := (*out)[i].at.Sub((*out)[i-1].at)
		assert.LessOrEqual(t, gap, 61*time.Second)
	}
}

func TestLog_HighCountWidensInterval(t *testing.T) {
	m, clk, out := newTestManager(t)
	logger := m.For("Scheduler")

	for i := 0; i < 2000; i++ {
		logger.Error("fixture timeout")
		clk.Advance(100 * time.Millisecond)
	}

	var checked int
	for i := 1; i < len(*out); i++ {
		if duplicateCount(t, (*out)[i].record.Message) <= 250 {
			continue
		}
		checked++
		gap := (*out)[i].at.Sub((*out)[i-1].at)
		assert.GreaterOrEqual(t, gap, 60*time.Second)
	}
	assert.Greater(t, checked, 0)
}

func TestSweep_FlushesQuietUnshownRepeats(t *testing.T) {
	m, clk, out := newTestManager(t)
	logger := m.For("MacrosModule")

	logger.Info("retrying")
	for i := 0; i < 4; i++ {
		clk.Advance(time.Second)
		logger.Info("retrying")
	}
	require.Len(t, *out, 1)

	clk.Advance(6 * time.Second)
	m.Sweep()

	require.Len(t, *out, 2)
	assert.Equal(t, "5 DUPLICATES | retrying", (*out)[1].record.Message)
	assert.Equal(t, 1, m.Tracked())

	clk.Advance(10 * time.Second)
	m.Sweep()

	assert.Len(t, *out, 2)
	assert.Equal(t, 0, m.Tracked())
}

func TestSweep_DeletesIdleEntries(t *testing.T) {
	m, clk, out := newTestManager(t)
	logger := m.For("IDManager")

	logger.Info("loaded id")
	clk.Advance(10 * time.Second)
	m.Sweep()

	assert.Len(t, *out, 1)
	assert.Equal(t, 0, m.Tracked())
}

func TestSweep_LogsForgottenEntry(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	m, clk, _ := newTestManager(t)
	start := clk.Now()
	logger := m.For("IDManager")
	logger.Warn("id file missing")
	clk.Advance(time.Second)
	logger.Warn("id file missing")
	clk.Advance(10 * time.Second)
	buf.Reset()
	m.Sweep()

	var line map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(raw, &entry) == nil && entry["message"] == "Forgetting idle log line" {
			line = entry
		}
	}
	require.NotNil(t, line)
	assert.Equal(t, "IDManager", line["module"])
	assert.Equal(t, "warn", line["log_level"])
	assert.Equal(t, float64(2), line["count"])
	assert.Equal(t, start.Format(time.RFC3339), line["first_seen"])
}

func TestSweep_SkipsFirehoseStreams(t *testing.T) {
	m, clk, out := newTestManager(t)
	logger := m.For("RenderSocket")

	for i := 0; i < 300; i++ {
		logger.Error("socket closed")
	}
	clk.Advance(9 * time.Second)
	logger.Error("socket closed")
	before := len(*out)

	clk.Advance(2 * time.Second)
	m.Sweep()

	assert.Equal(t, before, len(*out))
	assert.Equal(t, 1, m.Tracked())
}

func TestManager_ForReturnsSameLogger(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.Same(t, m.For("a"), m.For("a"))
	assert.NotSame(t, m.For("a"), m.For("b"))
	assert.Equal(t, "b", m.For("b").Module())
}

func duplicateCount(t *testing.T, msg string) int {
	t.Helper()
	prefix, _, found := strings.Cut(msg, " DUPLICATES | ")
	if !found {
		return 1
	}
	var n int
	for _, r := range prefix {
		n = n*10 + int(r-'0')
	}
	return n
}
