package media

// Store is one kind's token to record mapping.
// Implementations are safe for concurrent use.
type Store interface {
	Kind() Kind
	Put(token string, rec Record) error
	Get(token string) (Record, bool)
	Len() int
	// Clear drops every record and persists the empty state.
	Clear() error
	// Persist flushes the mapping to durable storage.
	Persist() error
	Close() error
}
