package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	// DefaultBoltFilePath is the default path for the state file
	DefaultBoltFilePath = "rabbitreader-state.db"

	// DefaultBoltFileMode is the default file mode for the state file
	DefaultBoltFileMode = 0600

	// DefaultBoltTimeout is how long Open waits for the file lock
	DefaultBoltTimeout = 1 * time.Second
)

// BoltOptions configures the BoltStore
type BoltOptions struct {
	// Path to the BoltDB file
	Path string
	// File mode for the BoltDB file
	FileMode os.FileMode
	// Timeout waiting for the file lock
	Timeout time.Duration
	// Logger, defaults to a no-op logger
	Logger *zap.Logger
}

// BoltStore persists state in a BoltDB file, one bucket per scope.
type BoltStore struct {
	db      *bolt.DB
	options *BoltOptions
	logger  *zap.Logger
}

// NewBoltStore fills in option defaults. Call Open before use.
func NewBoltStore(opts *BoltOptions) *BoltStore {
	if opts == nil {
		opts = &BoltOptions{}
	}

	if opts.Path == "" {
		opts.Path = DefaultBoltFilePath
	}
	if opts.FileMode == 0 {
		opts.FileMode = DefaultBoltFileMode
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultBoltTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BoltStore{
		options: opts,
		logger:  logger,
	}
}

// OpenBoltStore creates and opens a BoltStore in one step.
func OpenBoltStore(opts *BoltOptions) (*BoltStore, error) {

	store := NewBoltStore(opts)
	if err := store.Open(); err != nil {
		return nil, err
	}

	return store, nil
}

// Open creates the parent directory if needed and opens the database file.
func (bs *BoltStore) Open() error {
	bs.logger.Info("Opening state database", zap.String("path", bs.options.Path))

	if err := os.MkdirAll(filepath.Dir(bs.options.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for state database: %w", err)
	}

	db, err := bolt.Open(bs.options.Path, bs.options.FileMode, &bolt.Options{Timeout: bs.options.Timeout})
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}

	bs.db = db
	return nil
}

// Close closes the database file.
func (bs *BoltStore) Close() error {
	if bs.db == nil {
		return nil
	}

	bs.logger.Info("Closing state database", zap.String("path", bs.options.Path))
	err := bs.db.Close()
	bs.db = nil
	return err
}

// Get returns the value stored under scope and key.
func (bs *BoltStore) Get(scope, key string) (string, bool, error) {
	if bs.db == nil {
		return "", false, ErrStoreClosed
	}

	var value []byte
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return nil
		}

		// bolt values are only valid inside the transaction
		if data := b.Get([]byte(key)); data != nil {
			value = append([]byte{}, data...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s/%s: %w", scope, key, err)
	}

	return string(value), value != nil, nil
}

// Set stores value under scope and key.
func (bs *BoltStore) Set(scope, key, value string) error {
	if bs.db == nil {
		return ErrStoreClosed
	}

	bs.logger.Debug("Setting state", zap.String("scope", scope), zap.String("key", key))
	return bs.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", scope, err)
		}

		return b.Put([]byte(key), []byte(value))
	})
}

// Delete removes scope and key. Missing keys are ignored.
func (bs *BoltStore) Delete(scope, key string) error {
	if bs.db == nil {
		return ErrStoreClosed
	}

	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(key))
	})
}

// Increment adds delta to the integer stored under scope and key in a single transaction.
func (bs *BoltStore) Increment(scope, key string, delta int64) (int64, error) {
	if bs.db == nil {
		return 0, ErrStoreClosed
	}

	var next int64
	err := bs.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", scope, err)
		}

		next, err = addToValue(string(b.Get([]byte(key))), delta)
		if err != nil {
			return fmt.Errorf("failed to parse %s/%s: %w", scope, key, err)
		}

		return b.Put([]byte(key), []byte(strconv.FormatInt(next, 10)))
	})

	return next, err
}
