package reader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/state"
)

// InitialiseWithSource records source as the current file.
func (r *Reader) InitialiseWithSource(source string) error {

	r.logger.Info("initialise with source", zap.String("source", source))
	if err := r.store.Set(r.config.Name, state.KeyCurrentFile, source); err != nil {
		return fmt.Errorf("failed to set %s: %w", state.KeyCurrentFile, err)
	}

	return nil
}

// CurrentFile returns the source being read, or "" when there is none.
func (r *Reader) CurrentFile() (string, error) {

	value, _, err := r.store.Get(r.config.Name, state.KeyCurrentFile)
	return value, err
}

// MarkSourceProcessed clears the current file.
func (r *Reader) MarkSourceProcessed(source string) error {
	r.logger.Info("source processed", zap.String("source", source))
	return r.clearCurrentFile()
}

// MarkSourceFailed clears the current file.
func (r *Reader) MarkSourceFailed(source string) error {
	r.logger.Warn("source failed", zap.String("source", source))
	return r.clearCurrentFile()
}

// ResetState clears the current file and the persisted counters.
func (r *Reader) ResetState() error {

	for _, key := range []string{state.KeyCurrentFile, state.KeyProcessedCount, state.KeyFailedCount} {
		if err := r.store.Delete(r.config.Name, key); err != nil {
			return fmt.Errorf("failed to reset %s: %w", key, err)
		}
	}

	r.sessionCount = 0
	r.currentRecord = nil
	r.currentMessage = nil
	r.lastProcessedRecord = nil

	return nil
}

func (r *Reader) clearCurrentFile() error {
	if err := r.store.Delete(r.config.Name, state.KeyCurrentFile); err != nil {
		return fmt.Errorf("failed to clear %s: %w", state.KeyCurrentFile, err)
	}

	return nil
}
