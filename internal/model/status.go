package model

import "time"

type Status string

const (
	StatusInitializing Status = "initializing"
	StatusOperational  Status = "operational"
	StatusDegraded     Status = "degraded"
	StatusErrored      Status = "errored"
	StatusUnresponsive Status = "unresponsive"
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
)

// ModuleStatus is a single module health report. Producers publish it on
// the moduleStatus topic; Timestamp is stamped by the aggregator on receipt.
type ModuleStatus struct {
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	Data         string    `json:"data"`
	Timestamp    time.Time `json:"timestamp"`
	OneTimeEvent bool      `json:"oneTimeEvent,omitempty"`
}

// ModuleStatusSnapshot is the aggregated device health published on the
// moduleStatusUpdate topic.
type ModuleStatusSnapshot struct {
	Timestamp     time.Time      `json:"timestamp"`
	OverallStatus string         `json:"overallStatus"`
	Modules       []ModuleStatus `json:"modules"`
}

// SystemStatus is an OS metrics sample.
type SystemStatus struct {
	Timestamp    time.Time `json:"timestamp"`
	Platform     string    `json:"platform"`
	Architecture string    `json:"architecture"`
	Hostname     string    `json:"hostname"`
	CPUCount     int       `json:"cpuCount"`
	CPUUsage     []string  `json:"cpuUsage"`
	TotalMemory  string    `json:"totalMemory"`
	FreeMemory   string    `json:"freeMemory"`
	UsedMemory   string    `json:"usedMemory"`
	Uptime       string    `json:"uptime"`
	DiskUsage    string    `json:"diskUsage"`
}
