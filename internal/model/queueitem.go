package model

import (
	"encoding/json"
	"time"
)

type QueueItemKind string

const (
	KindLog          QueueItemKind = "log"
	KindSystemStatus QueueItemKind = "systemStatus"
	KindModuleStatus QueueItemKind = "moduleStatus"
	KindMacrosStatus QueueItemKind = "macrosStatus"
)

// QueueItem is one unit of outbound telemetry. Data holds the payload
// already encoded so the item survives a round trip through the
// overflow file unchanged.
type QueueItem struct {
	Kind       QueueItemKind   `json:"type"`
	EnqueuedAt time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// SyncRequest is the body POSTed to the uplink endpoint.
type SyncRequest struct {
	NodeID       int         `json:"node_id"`
	SerialNumber string      `json:"serial_number"`
	Payload      []QueueItem `json:"payload"`
}
