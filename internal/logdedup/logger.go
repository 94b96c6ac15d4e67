package logdedup

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/model"
)

type duplicateEntry struct {
	firstSeen   time.Time
	module      string
	level       model.LogLevel
	message     string
	count       int
	lastUpdated time.Time
	lastShown   time.Time
}

// Logger suppresses repeats of the same level and message for one
// producing module. Lines that get through are printed to the process
// log and published on the log topic.
type Logger struct {
	module string
	policy Policy
	clock  clock.Clock
	bus    eventbus.Publisher

	mu      sync.Mutex
	entries map[string]*duplicateEntry
}

func newLogger(module string, policy Policy, clk clock.Clock, bus eventbus.Publisher) *Logger {
	return &Logger{
		module:  module,
		policy:  policy,
		clock:   clk,
		bus:     bus,
		entries: make(map[string]*duplicateEntry),
	}
}

func NormalizeLevel(level string) model.LogLevel {
	switch l := model.LogLevel(strings.ToLower(strings.TrimSpace(level))); l {
	case model.LevelInfo, model.LevelWarn, model.LevelError:
		return l
	default:
		return model.LevelUnknown
	}
}

func (l *Logger) Module() string { return l.module }

func (l *Logger) Info(message string)  { l.Log(string(model.LevelInfo), message) }
func (l *Logger) Warn(message string)  { l.Log(string(model.LevelWarn), message) }
func (l *Logger) Error(message string) { l.Log(string(model.LevelError), message) }

func (l *Logger) Log(level, message string) {
	lvl := NormalizeLevel(level)
	key := string(lvl) + "|" + message
	now := l.clock.Now()

	var out *model.LogRecord

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		l.entries[key] = &duplicateEntry{
			firstSeen:   now,
			module:      l.module,
			level:       lvl,
			message:     message,
			count:       1,
			lastUpdated: now,
			lastShown:   now,
		}
		out = l.record(now, lvl, message)
	} else {
		entry.count++
		entry.lastUpdated = now
		if now.Sub(entry.lastShown) > l.policy.visibilityFor(entry.count) {
			out = l.record(now, lvl, duplicateMessage(entry))
			entry.lastShown = now
		}
	}
	l.mu.Unlock()

	if out != nil {
		l.emit(*out)
	}
}

// sweep forgets entries that are idle and already shown, and flushes
// entries that kept repeating without being shown.
func (l *Logger) sweep() {
	now := l.clock.Now()
	var flushes []model.LogRecord

	l.mu.Lock()
	for key, entry := range l.entries {
		sinceShown := now.Sub(entry.lastShown)
		sinceUpdated := now.Sub(entry.lastUpdated)

		if sinceShown >= l.policy.CleanupInterval && sinceUpdated >= l.policy.CleanupInterval {
			log.Debug().
				Str("module", entry.module).
				Str("log_level", string(entry.level)).
				Time("first_seen", entry.firstSeen).
				Int("count", entry.count).
				Msg("Forgetting idle log line")
			delete(l.entries, key)
			continue
		}
		if sinceShown >= l.policy.CleanupInterval && entry.count < l.policy.HighCountThreshold {
			flushes = append(flushes, *l.record(now, entry.level, duplicateMessage(entry)))
			entry.lastShown = now
		}
	}
	l.mu.Unlock()

	for _, rec := range flushes {
		l.emit(rec)
	}
}

func (l *Logger) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Logger) record(now time.Time, level model.LogLevel, message string) *model.LogRecord {
	return &model.LogRecord{
		Timestamp: now.UTC(),
		Module:    l.module,
		Level:     level,
		Message:   message,
	}
}

func (l *Logger) emit(rec model.LogRecord) {
	switch rec.Level {
	case model.LevelInfo:
		log.Info().Str("module", rec.Module).Msg(rec.Message)
	case model.LevelWarn:
		log.Warn().Str("module", rec.Module).Msg(rec.Message)
	case model.LevelError:
		log.Error().Str("module", rec.Module).Msg(rec.Message)
	default:
		log.Warn().Str("module", rec.Module).Str("type", string(rec.Level)).Msg("unknown log type: " + rec.Message)
	}
	l.bus.Publish(eventbus.TopicLog, rec)
}

func duplicateMessage(entry *duplicateEntry) string {
	return fmt.Sprintf("%d DUPLICATES | %s", entry.count, entry.message)
}
