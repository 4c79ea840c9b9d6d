// Package state persists the per-reader key/value state that must survive restarts.
package state

import (
	"errors"
	"strconv"
)

const (
	// KeyCurrentFile holds the label of the source being read.
	KeyCurrentFile = "current_file"

	// KeyProcessedCount holds the number of records marked processed.
	KeyProcessedCount = "processed_count"

	// KeyFailedCount holds the number of records marked failed.
	KeyFailedCount = "failed_count"
)

// ErrStoreClosed is returned by a store that has been closed.
// you can check for this error with errors.Is
var ErrStoreClosed = errors.New("state store is closed")

// Store is a string key/value store partitioned by scope, usually the reader name.
type Store interface {
	Get(scope, key string) (value string, found bool, err error)
	Set(scope, key, value string) error
	Delete(scope, key string) error

	// Increment adds delta to the integer stored under key (missing counts as zero) and returns the result.
	Increment(scope, key string, delta int64) (int64, error)

	Close() error
}

// GetInt reads an integer value. A missing key reads as zero.
func GetInt(store Store, scope, key string) (int64, error) {

	value, found, err := store.Get(scope, key)
	if err != nil || !found || value == "" {
		return 0, err
	}

	return strconv.ParseInt(value, 10, 64)
}

func addToValue(value string, delta int64) (int64, error) {

	var current int64
	if value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, err
		}

		current = parsed
	}

	return current + delta, nil
}
