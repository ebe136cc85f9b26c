package users

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertOverwritesUsername(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Upsert(ctx, Record{UserID: 1, Username: "old"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.Upsert(ctx, Record{UserID: 1, Username: ""})
	require.NoError(t, err)
	assert.False(t, created)

	n, err := m.Count(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got []Record
	require.NoError(t, m.Each(ctx, time.Now(), func(u Record) error {
		got = append(got, u)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Username)
}

func TestMemory_SnapshotExcludesLateUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 1, 30, 5, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	for i := int64(1); i <= 3; i++ {
		_, err := m.Upsert(ctx, Record{UserID: i})
		require.NoError(t, err)
	}
	m.now = func() time.Time { return base.Add(time.Minute) }
	_, err := m.Upsert(ctx, Record{UserID: 4})
	require.NoError(t, err)

	n, err := m.Count(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var ids []int64
	require.NoError(t, m.Each(ctx, base, func(u Record) error {
		ids = append(ids, u.UserID)
		return nil
	}))
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestMemory_EachStopsOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := int64(1); i <= 5; i++ {
		_, _ = m.Upsert(ctx, Record{UserID: i})
	}
	stop := errors.New("stop")
	calls := 0
	err := m.Each(ctx, time.Now(), func(Record) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestMongoDirectory(t *testing.T) {
	uri := os.Getenv("MEDIABOT_TEST_MONGO")
	if uri == "" {
		t.Skip("MEDIABOT_TEST_MONGO env not set")
	}
	ctx := context.Background()

	client, err := NewMongoClient(ctx, uri)
	require.NoError(t, err)
	dbName := fmt.Sprintf("mediabot_test_%d", time.Now().UnixNano())
	d, err := NewMongoDirectory(ctx, client, dbName, "users")
	require.NoError(t, err)
	defer func() {
		_ = client.Database(dbName).Drop(ctx)
		_ = d.Close(ctx)
	}()

	created, err := d.Upsert(ctx, Record{UserID: 42, Username: "a"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = d.Upsert(ctx, Record{UserID: 42, Username: "b"})
	require.NoError(t, err)
	assert.False(t, created)

	n, err := d.Count(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = d.Count(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var got []Record
	require.NoError(t, d.Each(ctx, time.Now().Add(time.Second), func(u Record) error {
		got = append(got, u)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Username)
}
