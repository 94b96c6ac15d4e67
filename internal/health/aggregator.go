package health

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/model"
	"flairnode-agent/internal/util"
)

var ErrUnexpectedPayload = errors.New("unexpected module status payload")

var evaluateRules = evaluate

// InitialOverallStatus is reported until a rule first matches.
const InitialOverallStatus = "initializing"

type Config struct {
	// Name is the module name the aggregator reports its own health under.
	Name              string
	UnresponsiveAfter time.Duration
	EmitInterval      time.Duration
	// DebounceWindow is how close an operational report must follow a
	// degraded or errored one to be dropped as part of the same burst.
	DebounceWindow time.Duration
	Rules          []Rule
}

func DefaultConfig() Config {
	return Config{
		Name:              "ModuleStatusTracker",
		UnresponsiveAfter: 35 * time.Second,
		EmitInterval:      15 * time.Second,
		DebounceWindow:    5 * time.Millisecond,
		Rules: DefaultRules(RuleTargets{
			ConfigModule:  "ConfigManager",
			StatusModule:  "StatusTracker",
			NetworkModule: "NetworkModule",
		}),
	}
}

// Aggregator folds per-module health reports into one device status.
type Aggregator struct {
	cfg       Config
	clock     clock.Clock
	bus       eventbus.Publisher
	indicator Indicator
	fallback  FallbackController

	mu          sync.Mutex
	modules     []*model.ModuleStatus
	index       map[string]int
	overall     string
	lastEmitted time.Time
	emitted     bool
}

func NewAggregator(cfg Config, clk clock.Clock, bus eventbus.Publisher, indicator Indicator, fallback FallbackController) *Aggregator {
	if indicator == nil {
		indicator = LogIndicator{}
	}
	if fallback == nil {
		fallback = LogFallback{}
	}
	return &Aggregator{
		cfg:       cfg,
		clock:     clk,
		bus:       bus,
		indicator: indicator,
		fallback:  fallback,
		index:     make(map[string]int),
		overall:   InitialOverallStatus,
	}
}

// HandleModuleStatus is the moduleStatus bus handler.
func (a *Aggregator) HandleModuleStatus(payload any) error {
	var report model.ModuleStatus
	switch p := payload.(type) {
	case model.ModuleStatus:
		report = p
	case *model.ModuleStatus:
		if p == nil {
			return ErrUnexpectedPayload
		}
		report = *p
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedPayload, payload)
	}
	if report.Name == "" {
		return fmt.Errorf("%w: missing module name", ErrUnexpectedPayload)
	}
	a.Record(report)
	return nil
}

// Record stores report, stamping it with the current time. It reports
// whether the update was kept.
func (a *Aggregator) Record(report model.ModuleStatus) bool {
	report.Timestamp = a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.index[report.Name]
	if !ok {
		a.index[report.Name] = len(a.modules)
		a.modules = append(a.modules, &report)
		return true
	}

	existing := a.modules[i]
	if report.Status == model.StatusOperational &&
		(existing.Status == model.StatusDegraded || existing.Status == model.StatusErrored) &&
		report.Timestamp.Sub(existing.Timestamp) < a.cfg.DebounceWindow {
		log.Debug().Str("module", report.Name).Str("existing", string(existing.Status)).Msg("Dropped operational report racing a failure report")
		return false
	}
	a.modules[i] = &report
	return true
}

// Scan marks stale modules unresponsive, re-evaluates the overall
// status and publishes a snapshot when the emit interval has passed.
func (a *Aggregator) Scan() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Error processing status of all modules")
			a.bus.Publish(eventbus.TopicModuleStatus, model.ModuleStatus{
				Name:   a.cfg.Name,
				Status: model.StatusErrored,
				Data:   fmt.Sprintf("Error processing status of all modules: %v", r),
			})
		}
	}()

	a.bus.Publish(eventbus.TopicModuleStatus, model.ModuleStatus{
		Name:   a.cfg.Name,
		Status: model.StatusOperational,
	})

	d, snapshot, emit := a.scan(a.clock.Now())

	if d.fallback != nil {
		a.fallback.SetFallbackMode(*d.fallback)
	}
	if d.matched {
		a.indicator.SetColor(d.indicator)
	}
	if emit {
		log.Debug().Str("overall", snapshot.OverallStatus).Int("modules", len(snapshot.Modules)).Msg("Publishing module status snapshot")
		a.bus.Publish(eventbus.TopicModuleStatusUpdate, snapshot)
	}
}

// scan holds the lock for the state changes of one Scan. The recover in
// Scan publishes, which re-enters Record, so the unlock is deferred.
func (a *Aggregator) scan(now time.Time) (decision, model.ModuleStatusSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, m := range a.modules {
		if m.OneTimeEvent {
			continue
		}
		if elapsed := now.Sub(m.Timestamp); elapsed > a.cfg.UnresponsiveAfter {
			m.Status = model.StatusUnresponsive
			m.Data = "Unresponsive for last " + util.TimeAgo(elapsed)
		}
	}

	d := evaluateRules(a.cfg.Rules, a.statusLocked)
	if d.matched {
		a.overall = d.overall
	}
	snapshot := a.snapshotLocked(now)

	emit := !a.emitted || now.Sub(a.lastEmitted) >= a.cfg.EmitInterval
	if emit {
		a.emitted = true
		a.lastEmitted = now
	}
	return d, snapshot, emit
}

// Snapshot returns the current aggregated state without publishing it.
func (a *Aggregator) Snapshot() model.ModuleStatusSnapshot {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(now)
}

func (a *Aggregator) OverallStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overall
}

// ModuleStatus returns the stored status for name, or "" if unknown.
func (a *Aggregator) ModuleStatus(name string) model.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked(name)
}

func (a *Aggregator) statusLocked(name string) model.Status {
	if i, ok := a.index[name]; ok {
		return a.modules[i].Status
	}
	return ""
}

func (a *Aggregator) snapshotLocked(now time.Time) model.ModuleStatusSnapshot {
	modules := make([]model.ModuleStatus, len(a.modules))
	for i, m := range a.modules {
		modules[i] = *m
		modules[i].OneTimeEvent = false
	}
	return model.ModuleStatusSnapshot{
		Timestamp:     now.UTC(),
		OverallStatus: a.overall,
		Modules:       modules,
	}
}

// Register subscribes the aggregator to module health reports.
func (a *Aggregator) Register(sub eventbus.Subscriber) {
	sub.Subscribe(eventbus.TopicModuleStatus, a.HandleModuleStatus)
}
