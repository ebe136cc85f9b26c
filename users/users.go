package users

import (
	"context"
	"time"
)

// Record is everything known about someone who talked to the bot.
type Record struct {
	UserID    int64     `bson:"user_id"`
	Username  string    `bson:"username"`
	FirstSeen time.Time `bson:"first_seen,omitempty"`
}

// Directory is the broadcast distribution list. Upsert overwrites the
// username; FirstSeen is only ever written once.
type Directory interface {
	// Upsert records u and reports whether it was not known before.
	Upsert(ctx context.Context, u Record) (created bool, err error)
	// Count and Each only see users first seen at or before asOf, so a
	// broadcast started at asOf ignores users that arrive while it runs.
	Count(ctx context.Context, asOf time.Time) (int, error)
	Each(ctx context.Context, asOf time.Time, fn func(Record) error) error
	Close(ctx context.Context) error
}
