package media

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/Oppen/mediabot/util/zjson"
)

// JSONStore keeps the whole mapping in memory and rewrites its snapshot file
// after every mutation.
type JSONStore struct {
	kind Kind
	path string
	log  *zap.Logger

	mx      sync.RWMutex
	entries map[string]Record
}

var _ Store = (*JSONStore)(nil)

// OpenJSONStore loads the snapshot at path. A missing or unreadable snapshot
// is not an error: the store simply starts empty.
func OpenJSONStore(path string, kind Kind, log *zap.Logger) (*JSONStore, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownKind)
	}
	s := &JSONStore{
		kind:    kind,
		path:    path,
		log:     log.With(zap.String("store", string(kind)), zap.String("path", path)),
		entries: make(map[string]Record),
	}
	s.load()
	return s, nil
}

func (s *JSONStore) load() {
	var raw map[string]Record
	if err := zjson.Load(s.path, &raw); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("snapshot unreadable, starting empty", zap.Error(err))
		}
		return
	}
	for token, rec := range raw {
		rec.Token = token
		if rec.Kind == "" {
			rec.Kind = s.kind
		}
		s.entries[token] = rec
	}
	s.log.Info("snapshot loaded", zap.Int("records", len(s.entries)))
}

func (s *JSONStore) Kind() Kind {
	return s.kind
}

func (s *JSONStore) Put(token string, rec Record) error {
	rec.Token = token
	rec.Kind = s.kind

	s.mx.Lock()
	defer s.mx.Unlock()
	s.entries[token] = rec
	return s.persistLocked()
}

func (s *JSONStore) Get(token string) (Record, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	rec, ok := s.entries[token]
	return rec, ok
}

func (s *JSONStore) Len() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return len(s.entries)
}

func (s *JSONStore) Clear() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.entries = make(map[string]Record)
	return s.persistLocked()
}

func (s *JSONStore) Persist() error {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.persistLocked()
}

func (s *JSONStore) persistLocked() error {
	if err := zjson.Store(s.path, s.entries); err != nil {
		s.log.Error("snapshot write failed", zap.Error(err))
		return fmt.Errorf("persist %s store: %w", s.kind, err)
	}
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}
