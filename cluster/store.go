package cluster

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quorum"
)

const stateKeyPrefix = "quorum:state:"

// saveScript performs the optimistic-version compare-and-swap: the write
// happens only when the stored version matches the caller's expectation.
// Version 0 means "expect no existing record".
var saveScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "version")
if cur == false then cur = "0" end
if cur ~= ARGV[1] then
	return -1
end
local next = tonumber(cur) + 1
redis.call("HSET", KEYS[1], "version", next, "state", ARGV[2])
return next
`)

// Store persists JSON snapshots of actor state. Callers treat it as best
// effort: the in-memory state stays authoritative when redis is slow or
// away.
type Store struct {
	client *redis.Client
	log    *zap.Logger
}

func NewStore(client *redis.Client, log *zap.Logger) *Store {
	return &Store{client: client, log: log}
}

// Load reads a snapshot into dest and returns its version. found is false
// when no snapshot exists.
func (s *Store) Load(ctx context.Context, key string, dest interface{}) (version int64, found bool, err error) {
	vals, err := s.client.HGetAll(ctx, stateKeyPrefix+key).Result()
	if err != nil {
		return 0, false, quorum.Infrastructuref(err, "state backend unreachable for %s", key)
	}
	raw, ok := vals["state"]
	if !ok {
		return 0, false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return 0, false, quorum.Infrastructuref(err, "corrupt snapshot for %s", key)
	}
	ver, _ := strconv.ParseInt(vals["version"], 10, 64)
	return ver, true, nil
}

// Save writes a snapshot when expectedVersion still matches, returning the
// new version. A version mismatch is a Conflict failure.
func (s *Store) Save(ctx context.Context, key string, state interface{}, expectedVersion int64) (int64, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return 0, quorum.Infrastructuref(err, "snapshot for %s not serializable", key)
	}
	next, err := saveScript.Run(ctx, s.client, []string{stateKeyPrefix + key}, expectedVersion, string(raw)).Int64()
	if err != nil {
		return 0, quorum.Infrastructuref(err, "state backend unreachable for %s", key)
	}
	if next < 0 {
		return 0, quorum.Conflictf("snapshot for %s modified concurrently", key)
	}
	return next, nil
}
