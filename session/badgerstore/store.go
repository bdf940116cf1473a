// Package badgerstore keeps the durable session mirror in an embedded Badger database, so a till
// restarted on the same machine comes back logged in.
package badgerstore

import (
	"github.com/dgraph-io/badger/v3"
	"github.com/jrsteele09/go-pos-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ session.Store = (*Store)(nil)

// Store implements session.Store on Badger.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database in dir. An empty dir opens an in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = badgerLogger{logger: log.Logger.With().Str("component", "badger").Logger()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "[badgerstore.Open] badger.Open")
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key string) (string, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "[badgerstore.Get] %s", key)
	}
	return string(value), nil
}

func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	return errors.Wrapf(err, "[badgerstore.Set] %s", key)
}

// Delete removes all keys in a single transaction.
func (s *Store) Delete(keys ...string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "[badgerstore.Delete]")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging into zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}
