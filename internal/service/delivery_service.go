package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"flairnode-agent/config"
	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/devicecfg"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/metrics"
	"flairnode-agent/internal/model"
	"flairnode-agent/internal/overflow"
	"flairnode-agent/internal/uplink"
)

const restartSeparator = "------------------------------ RESTART ------------------------------"

// DeliveryService queues outbound telemetry and pushes it to the remote
// server on every cycle. Undelivered items go back to the queue, or to
// the overflow file once the uplink has failed repeatedly.
type DeliveryService interface {
	Register(sub eventbus.Subscriber)
	Start()
	RunCycle(ctx context.Context)
	Stats() DeliveryStats
}

type DeliveryStats struct {
	QueueDepth    int    `json:"queueDepth"`
	ErrorCount    int    `json:"errorCount"`
	InFlight      bool   `json:"inFlight"`
	ReplayPending bool   `json:"replayPending"`
	LastSequence  uint64 `json:"lastSequence"`
	OverflowPath  string `json:"overflowPath"`
	OverflowDepth int    `json:"overflowDepth"`
}

type Identity interface {
	ID() int
	SerialNumber() string
}

// DeviceConfig receives configuration documents returned by the server.
type DeviceConfig interface {
	Apply(doc []byte) error
	CheckLogLevel(level string) bool
}

type moduleLogger interface {
	Info(message string)
	Warn(message string)
	Error(message string)
}

type deliveryService struct {
	cfg      *config.UplinkConfig
	version  string
	clock    clock.Clock
	bus      eventbus.Publisher
	client   uplink.Client
	store    overflow.Store
	identity Identity
	device   DeviceConfig
	logger   moduleLogger
	counters *metrics.Counters

	mu            sync.Mutex
	queue         []model.QueueItem
	sequence      uint64
	errorCount    int
	inFlight      bool
	startedAt     time.Time
	cycle         uint64
	replayPending bool
}

func NewDeliveryService(
	cfg *config.Config,
	clk clock.Clock,
	bus eventbus.Publisher,
	client uplink.Client,
	store overflow.Store,
	identity Identity,
	device DeviceConfig,
	logger moduleLogger,
	counters *metrics.Counters,
) DeliveryService {
	return &deliveryService{
		cfg:           &cfg.Uplink,
		version:       cfg.Version,
		clock:         clk,
		bus:           bus,
		client:        client,
		store:         store,
		identity:      identity,
		device:        device,
		logger:        logger,
		counters:      counters,
		replayPending: true,
	}
}

// Register queues the boot banner and subscribes to every topic that
// feeds the uplink. It must run before any other component logs.
func (s *deliveryService) Register(sub eventbus.Subscriber) {
	now := s.clock.Now()
	for _, msg := range []string{
		restartSeparator,
		fmt.Sprintf("Flair Node agent version %s", s.version),
		fmt.Sprintf("Boot at %s", now.UTC().Format(time.RFC3339)),
	} {
		if err := s.enqueueLog(model.LogRecord{
			Timestamp: now,
			Module:    s.cfg.ModuleName,
			Level:     model.LevelInfo,
			Message:   msg,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to queue boot banner")
		}
	}

	sub.Subscribe(eventbus.TopicLog, s.handleLog)
	sub.Subscribe(eventbus.TopicSystemStatus, s.handleSystemStatus)
	sub.Subscribe(eventbus.TopicModuleStatusUpdate, s.handleModuleStatusUpdate)
	sub.Subscribe(eventbus.TopicMacrosStatus, s.handleMacrosStatus)
}

// Start announces the network module so the health aggregator tracks it
// before the first sync completes.
func (s *deliveryService) Start() {
	s.report(model.StatusInitializing, "Network module starting")
}

func (s *deliveryService) handleLog(payload any) error {
	switch rec := payload.(type) {
	case model.LogRecord:
		return s.enqueueLog(rec)
	case *model.LogRecord:
		if rec == nil {
			return fmt.Errorf("nil log record")
		}
		return s.enqueueLog(*rec)
	default:
		return fmt.Errorf("unexpected log payload %T", payload)
	}
}

func (s *deliveryService) handleSystemStatus(payload any) error {
	switch payload.(type) {
	case model.SystemStatus, *model.SystemStatus:
		return s.enqueue(model.KindSystemStatus, payload)
	default:
		return fmt.Errorf("unexpected system status payload %T", payload)
	}
}

func (s *deliveryService) handleModuleStatusUpdate(payload any) error {
	switch payload.(type) {
	case model.ModuleStatusSnapshot, *model.ModuleStatusSnapshot:
		return s.enqueue(model.KindModuleStatus, payload)
	default:
		return fmt.Errorf("unexpected module status payload %T", payload)
	}
}

func (s *deliveryService) handleMacrosStatus(payload any) error {
	return s.enqueue(model.KindMacrosStatus, payload)
}

// enqueueLog stamps the record with the next sequence number. Numbering
// and queue insertion happen under one lock so queue order matches
// sequence order.
func (s *deliveryService) enqueueLog(rec model.LogRecord) error {
	s.mu.Lock()
	s.sequence++
	data, err := json.Marshal(model.SequencedLog{LogRecord: rec, SequenceNumber: s.sequence})
	if err != nil {
		s.sequence--
		s.mu.Unlock()
		return fmt.Errorf("marshal log record: %w", err)
	}
	s.queue = append(s.queue, model.QueueItem{Kind: model.KindLog, EnqueuedAt: s.clock.Now(), Data: data})
	depth := len(s.queue)
	s.mu.Unlock()

	s.observeEnqueue(model.KindLog, depth)
	return nil
}

func (s *deliveryService) enqueue(kind model.QueueItemKind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	s.mu.Lock()
	s.queue = append(s.queue, model.QueueItem{Kind: kind, EnqueuedAt: s.clock.Now(), Data: data})
	depth := len(s.queue)
	s.mu.Unlock()

	s.observeEnqueue(kind, depth)
	return nil
}

func (s *deliveryService) observeEnqueue(kind model.QueueItemKind, depth int) {
	if s.counters == nil {
		return
	}
	s.counters.ItemsEnqueued.Inc(string(kind))
	s.counters.QueueDepth.Set(float64(depth))
}

// RunCycle performs one sync with the server. A cycle started while an
// earlier one is still waiting on the network returns immediately unless
// the earlier one has outlived the watchdog timeout; the stale request is
// left to finish on its own.
func (s *deliveryService) RunCycle(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	stale := false
	if s.inFlight {
		elapsed := now.Sub(s.startedAt)
		if elapsed < s.cfg.WatchdogTimeout {
			s.mu.Unlock()
			log.Debug().Dur("elapsed", elapsed).Msg("Sync still in flight, skipping cycle.")
			return
		}
		stale = true
	}
	s.inFlight = true
	s.startedAt = now
	s.cycle++
	cycle := s.cycle
	payload := s.queue
	s.queue = nil
	// Replay only after a clean cycle so a failing one never cycles the
	// front of the overflow file.
	replay := s.replayPending && s.errorCount == 0
	s.mu.Unlock()

	if stale {
		log.Warn().Dur("watchdog", s.cfg.WatchdogTimeout).Msg("Previous sync exceeded watchdog timeout, starting a new one")
		s.logger.Warn("Previous sync request timed out, sending a new one")
		if s.counters != nil {
			s.counters.WatchdogTrips.Inc()
		}
	}
	if s.counters != nil {
		s.counters.QueueDepth.Set(0)
	}

	replayed := 0
	if replay {
		payload, replayed = s.replay(payload)
	}
	if payload == nil {
		payload = []model.QueueItem{}
	}

	if s.device.CheckLogLevel(devicecfg.LevelDetail) {
		log.Debug().Int("items", len(payload)).Msg("Sending payload to server")
	}

	doc, err := s.client.Sync(ctx, model.SyncRequest{
		NodeID:       s.identity.ID(),
		SerialNumber: s.identity.SerialNumber(),
		Payload:      payload,
	})
	if err != nil {
		s.handleFailure(cycle, payload, replayed, err)
		return
	}
	s.handleSuccess(cycle, doc)
}

// replay splices the oldest overflow items in front of payload and
// returns how many were taken from the store.
func (s *deliveryService) replay(payload []model.QueueItem) ([]model.QueueItem, int) {
	items, remaining, err := s.store.TakeFront(s.cfg.ResendBatchSize)
	if err != nil {
		// The items are still on disk; try again next cycle.
		log.Error().Err(err).Str("file", s.store.Path()).Msg("Failed to read overflow batch")
		return payload, 0
	}
	if remaining == 0 {
		s.mu.Lock()
		s.replayPending = false
		s.mu.Unlock()
	}
	if len(items) == 0 {
		return payload, 0
	}

	log.Info().Int("replayed", len(items)).Int("remaining", remaining).Msg("Resending items from overflow file")
	if s.counters != nil {
		s.counters.ItemsReplayed.Add(float64(len(items)))
	}
	return append(items, payload...), len(items)
}

func (s *deliveryService) handleSuccess(cycle uint64, doc json.RawMessage) {
	s.mu.Lock()
	s.finishLocked(cycle)
	reconnected := s.errorCount > s.cfg.MaxErrorCount
	s.errorCount = 0
	if reconnected {
		s.replayPending = true
	}
	s.mu.Unlock()

	if s.counters != nil {
		s.counters.SyncRequests.Inc("success")
	}
	if reconnected {
		s.logger.Info("Reconnected to server")
		s.report(model.StatusOperational, "Reconnected to server")
	} else {
		s.report(model.StatusOnline, "Connected to server")
	}

	if err := s.device.Apply(doc); err != nil {
		if devicecfg.IsMalformed(err) {
			log.Warn().Err(err).Msg("Server returned a malformed configuration")
		} else {
			log.Warn().Err(err).Msg("Server returned a configuration that could not be applied")
		}
		return
	}
	s.bus.Publish(eventbus.TopicNewNetworkDataProcessed, doc)
}

// handleFailure returns the first replayed items of payload to the front
// of the overflow file and requeues or spills the rest.
func (s *deliveryService) handleFailure(cycle uint64, payload []model.QueueItem, replayed int, err error) {
	status, result := model.StatusOffline, "offline"
	if errors.Is(err, uplink.ErrMalformedResponse) {
		status, result = model.StatusErrored, "errored"
	}

	fresh := payload
	if replayed > 0 {
		if perr := s.store.Prepend(payload[:replayed]); perr != nil {
			log.Error().Err(perr).Int("items", replayed).Msg("Failed to return replayed items to overflow file, keeping them queued")
		} else {
			fresh = payload[replayed:]
		}
	}

	s.mu.Lock()
	s.errorCount++
	errorCount := s.errorCount
	spill := errorCount > s.cfg.MaxErrorCount
	if !spill {
		s.queue = append(fresh, s.queue...)
	}
	s.mu.Unlock()

	if s.counters != nil {
		s.counters.SyncRequests.Inc(result)
	}
	log.Warn().Err(err).Int("error_count", errorCount).Int("items", len(payload)).Msg("Sync with server failed")
	s.logger.Error(fmt.Sprintf("Error sending data to server: %v", err))
	s.report(status, fmt.Sprintf("Error sending data to server: %v", err))

	if spill {
		s.spill(fresh)
	}

	s.mu.Lock()
	s.finishLocked(cycle)
	depth := len(s.queue)
	s.mu.Unlock()
	if s.counters != nil {
		s.counters.QueueDepth.Set(float64(depth))
	}
}

// spill appends payload to the overflow file. When the write fails the
// items go back to the front of the queue instead.
func (s *deliveryService) spill(payload []model.QueueItem) {
	if len(payload) == 0 {
		return
	}
	if err := s.store.Append(payload); err != nil {
		s.mu.Lock()
		s.queue = append(payload, s.queue...)
		s.mu.Unlock()
		if s.counters != nil {
			s.counters.OverflowWrites.Inc("failed")
		}
		s.logger.Error(fmt.Sprintf("Error writing overflow file: %v", err))
		return
	}

	if s.counters != nil {
		s.counters.OverflowWrites.Inc("ok")
		s.counters.ItemsSpilled.Add(float64(len(payload)))
	}
	log.Info().Int("items", len(payload)).Str("file", s.store.Path()).Msg("Moved undelivered items to overflow file")
}

// finishLocked clears the in-flight flag unless a newer cycle has taken
// over after a watchdog timeout.
func (s *deliveryService) finishLocked(cycle uint64) {
	if s.cycle == cycle {
		s.inFlight = false
	}
}

func (s *deliveryService) report(status model.Status, data string) {
	s.bus.Publish(eventbus.TopicModuleStatus, model.ModuleStatus{
		Name:   s.cfg.ModuleName,
		Status: status,
		Data:   data,
	})
}

func (s *deliveryService) Stats() DeliveryStats {
	// The store has its own lock; read it before taking ours.
	stored, _ := s.store.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	return DeliveryStats{
		QueueDepth:    len(s.queue),
		ErrorCount:    s.errorCount,
		InFlight:      s.inFlight,
		ReplayPending: s.replayPending,
		LastSequence:  s.sequence,
		OverflowPath:  s.store.Path(),
		OverflowDepth: len(stored),
	}
}
