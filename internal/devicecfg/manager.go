package devicecfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/fileutil"
	"flairnode-agent/internal/model"
)

const ModuleName = "ConfigManager"

// Log levels from least to most verbose.
const (
	LevelNone     = "none"
	LevelMinimal  = "minimal"
	LevelInterval = "interval"
	LevelDetail   = "detail"
)

var logLevels = []string{LevelNone, LevelMinimal, LevelInterval, LevelDetail}

type moduleLogger interface {
	Info(message string)
	Error(message string)
}

// Manager owns the live device configuration and its config file.
type Manager struct {
	filePath string
	bus      eventbus.Publisher
	logger   moduleLogger

	mu  sync.RWMutex
	cfg LiveConfig
}

func NewManager(filePath string, bus eventbus.Publisher, logger moduleLogger) *Manager {
	return &Manager{
		filePath: filePath,
		bus:      bus,
		logger:   logger,
	}
}

// Load replaces the live configuration with the contents of the config
// file. On failure the current configuration is kept.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.filePath)
	if err == nil {
		var cfg LiveConfig
		err = json.Unmarshal(data, &cfg)
		if err == nil {
			m.mu.Lock()
			m.cfg = cfg
			m.mu.Unlock()
		}
	}
	if err != nil {
		m.logger.Error(fmt.Sprintf("Error loading configuration: %v", err))
		m.report(model.StatusErrored, fmt.Sprintf("Error loading configuration: %v", err))
		return fmt.Errorf("load device config: %w", err)
	}

	m.logger.Info("Successfully loaded configuration data from local JSON file!")
	m.report(model.StatusOperational, "Successfully loaded configuration data from local JSON file!")
	return nil
}

// Apply merges a server-pushed configuration document into the live
// configuration and persists the result. A malformed document leaves
// the configuration untouched.
func (m *Manager) Apply(doc []byte) error {
	if m.CheckLogLevel(LevelDetail) {
		m.logger.Info("Updating configuration with new data...")
	}

	m.mu.Lock()
	next := m.cfg.clone()
	err := next.Merge(doc)
	if err == nil {
		m.cfg = next
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error(fmt.Sprintf("Error updating configuration: %v", err))
		m.report(model.StatusErrored, fmt.Sprintf("Error updating configuration: %v", err))
		return fmt.Errorf("apply device config: %w", err)
	}
	m.report(model.StatusOperational, "Successfully updated configuration.")

	if err := m.Save(); err != nil {
		// The merged configuration stays live even if it could not be written.
		return nil
	}
	if m.CheckLogLevel(LevelDetail) {
		m.logger.Info("Successfully updated and saved configuration!")
	}
	return nil
}

func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	m.mu.RUnlock()
	if err == nil {
		err = fileutil.WriteFileAtomic(m.filePath, data)
	}
	if err != nil {
		m.logger.Error(fmt.Sprintf("Error saving configuration: %v", err))
		m.report(model.StatusErrored, fmt.Sprintf("Error saving configuration: %v", err))
		return fmt.Errorf("save device config: %w", err)
	}
	m.report(model.StatusOperational, "Successfully saved configuration data to local JSON file!")
	return nil
}

func (m *Manager) Current() LiveConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

// CheckLogLevel reports whether the configured log level is at least as
// verbose as level. An unset level counts as detail.
func (m *Manager) CheckLogLevel(level string) bool {
	m.mu.RLock()
	current := m.cfg.LogLevel
	m.mu.RUnlock()
	if current == "" {
		current = LevelDetail
	}
	return indexOf(current) >= indexOf(level)
}

func (m *Manager) report(status model.Status, data string) {
	m.bus.Publish(eventbus.TopicModuleStatus, model.ModuleStatus{
		Name:         ModuleName,
		Status:       status,
		Data:         data,
		OneTimeEvent: true,
	})
}

func indexOf(level string) int {
	for i, l := range logLevels {
		if l == level {
			return i
		}
	}
	return -1
}

// IsMalformed reports whether err came from a document that was not a
// valid configuration object.
func IsMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, ErrNotAnObject) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
