package sysstat

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"flairnode-agent/config"
	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/model"
	"flairnode-agent/internal/util"
)

// Reading is a raw OS sample before formatting.
type Reading struct {
	LoadAverages [3]float64
	TotalMemory  uint64
	FreeMemory   uint64
	Uptime       time.Duration
	DiskTotal    uint64
	DiskFree     uint64
}

type Collector interface {
	Read() (Reading, error)
}

// Tracker samples the OS and publishes the result together with a
// heartbeat for its own module.
type Tracker struct {
	moduleName string
	clock      clock.Clock
	bus        eventbus.Publisher
	collector  Collector
}

func NewTracker(cfg *config.Config, clk clock.Clock, bus eventbus.Publisher, collector Collector) *Tracker {
	if collector == nil {
		collector = NewCollector("/")
	}
	return &Tracker{
		moduleName: cfg.SystemStatus.ModuleName,
		clock:      clk,
		bus:        bus,
		collector:  collector,
	}
}

func (t *Tracker) Publish() {
	reading, err := t.collector.Read()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read system status")
		t.report(model.StatusErrored, fmt.Sprintf("Error reading system status: %v", err))
		return
	}

	t.bus.Publish(eventbus.TopicSystemStatus, t.format(reading))
	t.report(model.StatusOperational, "System status published")
}

func (t *Tracker) format(r Reading) model.SystemStatus {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	used := uint64(0)
	if r.TotalMemory > r.FreeMemory {
		used = r.TotalMemory - r.FreeMemory
	}
	loads := make([]string, len(r.LoadAverages))
	for i, l := range r.LoadAverages {
		loads[i] = fmt.Sprintf("%.2f", l)
	}

	return model.SystemStatus{
		Timestamp:    t.clock.Now(),
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		Hostname:     hostname,
		CPUCount:     runtime.NumCPU(),
		CPUUsage:     loads,
		TotalMemory:  humanize.IBytes(r.TotalMemory),
		FreeMemory:   humanize.IBytes(r.FreeMemory),
		UsedMemory:   humanize.IBytes(used),
		Uptime:       util.TimeAgo(r.Uptime),
		DiskUsage:    diskUsage(r.DiskTotal, r.DiskFree),
	}
}

func (t *Tracker) report(status model.Status, data string) {
	t.bus.Publish(eventbus.TopicModuleStatus, model.ModuleStatus{
		Name:   t.moduleName,
		Status: status,
		Data:   data,
	})
}

func diskUsage(total, free uint64) string {
	if total == 0 {
		return "unknown"
	}
	used := total - free
	return fmt.Sprintf("%s / %s (%d%%)", humanize.IBytes(used), humanize.IBytes(total), used*100/total)
}
