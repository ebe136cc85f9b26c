package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
)

// DB is a Badger database shared by the stores of every kind. Keys are
// prefixed with the kind, so both kinds live in one keyspace.
type DB struct {
	db  *badger.DB
	log *zap.Logger
}

func OpenDB(dir string, log *zap.Logger) (*DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{log.Sugar().Named("badger")}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &DB{db: db, log: log}, nil
}

// Store returns the view of kind over the database.
func (d *DB) Store(kind Kind) (*BadgerStore, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	return &BadgerStore{db: d, kind: kind, prefix: []byte(string(kind) + "/")}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// BadgerStore commits every Put in its own transaction, so there is nothing
// left to flush and a crash never leaves a half-written snapshot.
type BadgerStore struct {
	db     *DB
	kind   Kind
	prefix []byte
}

var _ Store = (*BadgerStore)(nil)

func (s *BadgerStore) key(token string) []byte {
	return append(append([]byte{}, s.prefix...), token...)
}

func (s *BadgerStore) Kind() Kind {
	return s.kind
}

func (s *BadgerStore) Put(token string, rec Record) error {
	rec.Token = token
	rec.Kind = s.kind
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(token), val)
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.kind, token, err)
	}
	return nil
}

func (s *BadgerStore) Get(token string) (Record, bool) {
	var rec Record
	err := s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.db.log.Error("badger get failed", zap.String("token", token), zap.Error(err))
		}
		return Record{}, false
	}
	rec.Token = token
	return rec, true
}

func (s *BadgerStore) keys() ([][]byte, error) {
	var keys [][]byte
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func (s *BadgerStore) Len() int {
	keys, err := s.keys()
	if err != nil {
		s.db.log.Error("badger scan failed", zap.String("store", string(s.kind)), zap.Error(err))
	}
	return len(keys)
}

func (s *BadgerStore) Clear() error {
	keys, err := s.keys()
	if err != nil {
		return fmt.Errorf("clear %s: %w", s.kind, err)
	}
	txn := s.db.db.NewTransaction(true)
	defer func() { txn.Discard() }()
	for _, k := range keys {
		if err := txn.Delete(k); err == badger.ErrTxnTooBig {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("clear %s: %w", s.kind, err)
			}
			txn = s.db.db.NewTransaction(true)
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("clear %s: %w", s.kind, err)
			}
		} else if err != nil {
			return fmt.Errorf("clear %s: %w", s.kind, err)
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("clear %s: %w", s.kind, err)
	}
	return nil
}

func (s *BadgerStore) Persist() error {
	return nil
}

// Close is a no-op, the database is closed through DB.
func (s *BadgerStore) Close() error {
	return nil
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.SugaredLogger.Debugf(strings.TrimSuffix(format, "\n"), args...)
}
