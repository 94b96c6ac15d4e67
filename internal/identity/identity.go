package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultID           = 0
	DefaultSerialNumber = "unknown!"

	devID           = 1
	devSerialNumber = "FN-0000001"
)

type idFile struct {
	DeviceID     json.RawMessage `json:"device_id"`
	SerialNumber *string         `json:"serialnumber"`
}

// Manager provides the device id and serial number read from id.json.
type Manager struct {
	filePath string
	devMode  bool

	mu           sync.RWMutex
	id           int
	serialNumber string
}

func NewManager(filePath string, devMode bool) *Manager {
	return &Manager{
		filePath:     filePath,
		devMode:      devMode,
		id:           DefaultID,
		serialNumber: DefaultSerialNumber,
	}
}

// Load reads the identity file. On any failure the defaults stay in
// place (or the development identity when running in dev mode).
func (m *Manager) Load() error {
	id, serial, err := readIdentity(m.filePath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.id, m.serialNumber = DefaultID, DefaultSerialNumber
		if m.devMode {
			m.id, m.serialNumber = devID, devSerialNumber
			log.Warn().Int("id", m.id).Str("serial_number", m.serialNumber).Msg("Failed over to development identity")
		}
		log.Error().Err(err).Str("file", m.filePath).Msg("Error loading id.json file")
		return err
	}

	m.id, m.serialNumber = id, serial
	log.Info().Int("id", id).Str("serial_number", serial).Msg("Identified this unit")
	return nil
}

func (m *Manager) ID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.id < 0 {
		log.Error().Int("id", m.id).Msg("Invalid id value (less than zero)")
		return DefaultID
	}
	return m.id
}

func (m *Manager) SerialNumber() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serialNumber
}

func readIdentity(path string) (int, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", fmt.Errorf("read identity file: %w", err)
	}
	var f idFile
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, "", fmt.Errorf("parse identity file: %w", err)
	}
	id, err := parseDeviceID(f.DeviceID)
	if err != nil {
		return 0, "", err
	}
	serial := DefaultSerialNumber
	if f.SerialNumber != nil {
		serial = *f.SerialNumber
	}
	return id, serial, nil
}

// parseDeviceID accepts the id as a JSON number or a numeric string.
func parseDeviceID(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("device_id missing")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.Atoi(strings.SplitN(n.String(), ".", 2)[0]); err == nil {
			return i, nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("device_id %s is not an integer", string(raw))
}
