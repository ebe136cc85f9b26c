package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a Directory that lives and dies with the process.
type Memory struct {
	mx    sync.RWMutex
	users map[int64]Record
	now   func() time.Time
}

var _ Directory = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{users: make(map[int64]Record), now: time.Now}
}

func (m *Memory) Upsert(_ context.Context, u Record) (bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	old, ok := m.users[u.UserID]
	if ok {
		u.FirstSeen = old.FirstSeen
	} else {
		u.FirstSeen = m.now()
	}
	m.users[u.UserID] = u
	return !ok, nil
}

func (m *Memory) snapshot(asOf time.Time) []Record {
	m.mx.RLock()
	out := make([]Record, 0, len(m.users))
	for _, u := range m.users {
		if !u.FirstSeen.After(asOf) {
			out = append(out, u)
		}
	}
	m.mx.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *Memory) Count(_ context.Context, asOf time.Time) (int, error) {
	return len(m.snapshot(asOf)), nil
}

func (m *Memory) Each(ctx context.Context, asOf time.Time, fn func(Record) error) error {
	for _, u := range m.snapshot(asOf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}
