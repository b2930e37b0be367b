package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"quorum"
)

// fakeStore mirrors the redis snapshot store: JSON values with an
// optimistic version per key.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
	vers map[string]int64
	fail bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte), vers: make(map[string]int64)}
}

func (f *fakeStore) Load(ctx context.Context, key string, dest interface{}) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, false, quorum.Infrastructuref(nil, "store down")
	}
	raw, ok := f.data[key]
	if !ok {
		return 0, false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return 0, false, err
	}
	return f.vers[key], true, nil
}

func (f *fakeStore) Save(ctx context.Context, key string, state interface{}, expectedVersion int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, quorum.Infrastructuref(nil, "store down")
	}
	if f.vers[key] != expectedVersion {
		return 0, quorum.Conflictf("version mismatch for %s", key)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return 0, err
	}
	f.data[key] = raw
	f.vers[key]++
	return f.vers[key], nil
}

func newStoredCoordinator(store *fakeStore) *Coordinator {
	c := NewCoordinator(store)
	c.id = "r1"
	c.log = zap.NewNop()
	return c
}

func TestCoordinator_RestoreFromSnapshot(t *testing.T) {
	store := newFakeStore()
	c := newStoredCoordinator(store)
	createTestRoom(t, c, 4, Settings{GameMode: "DM"})
	join(t, c, "a")
	join(t, c, "b")

	fresh := newStoredCoordinator(store)
	fresh.restore()

	assert.True(t, fresh.IsExists())
	info, err := fresh.GetRoomInfo()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "test room", info.Name)
	assert.Equal(t, "DM", info.Settings.GameMode)
	assert.Equal(t, 2, info.CurrentPlayerCount)
	assert.Equal(t, c.version, fresh.version)

	// Writes from the restored instance continue the version chain.
	join(t, fresh, "c")
	assert.Greater(t, fresh.version, c.version)
}

func TestCoordinator_RestoreMissingSnapshot(t *testing.T) {
	fresh := newStoredCoordinator(newFakeStore())
	fresh.restore()
	assert.False(t, fresh.IsExists())
}

func TestCoordinator_StoreFailureDoesNotFailOps(t *testing.T) {
	store := newFakeStore()
	store.fail = true
	c := newStoredCoordinator(store)

	if err := c.CreateRoom(context.Background(), "creator", "test room", TypeNormal, 4, Settings{}); err != nil {
		t.Fatal(err)
	}
	join(t, c, "a")

	c.restore()
	assert.True(t, c.IsExists())
	assert.Equal(t, int64(0), c.version)
}

func TestCoordinator_PersistedTimesSurviveRoundTrip(t *testing.T) {
	store := newFakeStore()
	c := newStoredCoordinator(store)
	createTestRoom(t, c, 4, Settings{})
	created := c.st.CreatedAt

	fresh := newStoredCoordinator(store)
	fresh.restore()
	assert.True(t, created.Equal(fresh.st.CreatedAt))
	assert.True(t, c.st.UpdatedAt.Equal(fresh.st.UpdatedAt))
}
