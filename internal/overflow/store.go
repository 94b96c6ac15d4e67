package overflow

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"flairnode-agent/internal/fileutil"
	"flairnode-agent/internal/model"
)

// Store is the on-disk spill area for queue items that could not be
// delivered. Items keep their order: Append adds at the end, TakeFront
// removes from the front and Prepend puts a taken batch back.
type Store interface {
	Load() ([]model.QueueItem, error)
	Append(items []model.QueueItem) error
	Prepend(items []model.QueueItem) error
	TakeFront(n int) ([]model.QueueItem, int, error)
	Path() string
}

type fileStore struct {
	filePath string
	mu       sync.Mutex
}

func NewStore(filePath string) Store {
	return &fileStore{
		filePath: filePath,
	}
}

// Load reads every stored item. A missing, empty or unparseable file
// is treated as an empty store.
func (s *fileStore) Load() ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(), nil
}

func (s *fileStore) Append(items []model.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.loadLocked()
	stored = append(stored, items...)
	if err := s.saveLocked(stored); err != nil {
		return err
	}
	log.Debug().Str("file", s.filePath).Int("appended", len(items)).Int("total", len(stored)).Msg("Appended items to overflow store")
	return nil
}

func (s *fileStore) Prepend(items []model.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.loadLocked()
	merged := make([]model.QueueItem, 0, len(items)+len(stored))
	merged = append(merged, items...)
	merged = append(merged, stored...)
	if err := s.saveLocked(merged); err != nil {
		return err
	}
	log.Debug().Str("file", s.filePath).Int("prepended", len(items)).Int("total", len(merged)).Msg("Returned items to front of overflow store")
	return nil
}

// TakeFront removes up to n items from the front of the store and
// returns them together with the number of items left behind.
func (s *fileStore) TakeFront(n int) ([]model.QueueItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.loadLocked()
	if len(stored) == 0 {
		return nil, 0, nil
	}
	if n > len(stored) {
		n = len(stored)
	}
	taken := make([]model.QueueItem, n)
	copy(taken, stored[:n])
	rest := stored[n:]

	if err := s.saveLocked(rest); err != nil {
		return taken, len(rest), err
	}
	return taken, len(rest), nil
}

func (s *fileStore) Path() string {
	return s.filePath
}

func (s *fileStore) loadLocked() []model.QueueItem {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("file", s.filePath).Msg("Overflow file not found, treating as empty.")
		} else {
			log.Warn().Err(err).Str("file", s.filePath).Msg("Failed to read overflow file, treating as empty.")
		}
		return []model.QueueItem{}
	}
	if len(data) == 0 {
		return []model.QueueItem{}
	}

	var items []model.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warn().Err(err).Str("file", s.filePath).Msg("Unable to parse overflow file, treating as empty.")
		return []model.QueueItem{}
	}
	if items == nil {
		items = []model.QueueItem{}
	}
	return items
}

func (s *fileStore) saveLocked(items []model.QueueItem) error {
	if items == nil {
		items = []model.QueueItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal overflow items")
		return fmt.Errorf("marshal overflow items: %w", err)
	}

	if err := fileutil.WriteFileAtomic(s.filePath, data); err != nil {
		log.Error().Err(err).Str("file", s.filePath).Msg("Unable to save overflow file")
		return fmt.Errorf("save overflow file: %w", err)
	}
	log.Debug().Str("file", s.filePath).Int("items", len(items)).Msg("Saved overflow file")
	return nil
}
