package fileutil

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

const (
	writeAttempts = 3
	writeInterval = 50 * time.Millisecond
)

// WriteFileAtomic writes data to a temporary sibling of path and renames
// it into place, retrying a few times on failure.
func WriteFileAtomic(path string, data []byte) error {
	operation := func() error {
		return writeOnce(path, data)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(writeInterval), writeAttempts-1)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeOnce(path string, data []byte) error {
	tempFilePath := path + ".tmp"
	if err := os.WriteFile(tempFilePath, data, 0644); err != nil {
		log.Warn().Err(err).Str("file", tempFilePath).Msg("Failed to write temporary file")
		return err
	}
	if err := os.Rename(tempFilePath, path); err != nil {
		log.Warn().Err(err).Str("from", tempFilePath).Str("to", path).Msg("Failed to rename temporary file")
		_ = os.Remove(tempFilePath)
		return err
	}
	return nil
}
