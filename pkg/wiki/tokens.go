package wiki

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Tokens is the OAuth token pair used by the resilient client.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenStore persists the token pair across process restarts.
type TokenStore interface {
	// Load returns the stored tokens; zero values when none exist.
	Load() (Tokens, error)

	// Save durably replaces the stored tokens.
	Save(Tokens) error
}

var (
	accessTokenKey  = []byte("wikitok:access")
	refreshTokenKey = []byte("wikitok:refresh")
)

// BadgerTokenStore keeps the token pair in a BadgerDB key-value store
// outside the chunk working directory.
type BadgerTokenStore struct {
	db *badger.DB
}

// badgerLoggerAdapter forwards BadgerDB's internal logging to slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenTokenStore opens (creating if needed) a token store at path.
// An in-memory store is used by tests.
func OpenTokenStore(path string, inMemory bool) (*BadgerTokenStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create token store directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	return &BadgerTokenStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerTokenStore) Close() error {
	return s.db.Close()
}

func (s *BadgerTokenStore) Load() (Tokens, error) {
	var tokens Tokens
	err := s.db.View(func(tx *badger.Txn) error {
		var err error
		if tokens.Access, err = readString(tx, accessTokenKey); err != nil {
			return err
		}
		tokens.Refresh, err = readString(tx, refreshTokenKey)
		return err
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to load tokens: %w", err)
	}
	return tokens, nil
}

func (s *BadgerTokenStore) Save(tokens Tokens) error {
	err := s.db.Update(func(tx *badger.Txn) error {
		if err := tx.Set(accessTokenKey, []byte(tokens.Access)); err != nil {
			return err
		}
		return tx.Set(refreshTokenKey, []byte(tokens.Refresh))
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func readString(tx *badger.Txn, key []byte) (string, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var out string
	err = item.Value(func(val []byte) error {
		out = string(val)
		return nil
	})
	return out, err
}
