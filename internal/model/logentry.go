package model

import "time"

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
	LevelUnknown LogLevel = "unknown"
)

// LogRecord is a log line that survived deduplication. Records are
// treated as immutable once published on the bus.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Level     LogLevel  `json:"type"`
	Message   string    `json:"message"`
}

// SequencedLog is the queued form of a LogRecord. SequenceNumber is
// assigned once by the delivery pipeline so the server can restore the
// emission order after retried or replayed deliveries.
type SequencedLog struct {
	LogRecord
	SequenceNumber uint64 `json:"sequenceNumber"`
}
