package quorum

import "context"

// StateStore persists JSON-serializable state snapshots with optimistic
// concurrency. Actors treat it as best effort: the in-memory state stays
// authoritative when the store is slow or away.
type StateStore interface {
	Load(ctx context.Context, key string, dest interface{}) (version int64, found bool, err error)
	Save(ctx context.Context, key string, state interface{}, expectedVersion int64) (int64, error)
}
