package matchmaking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quorum"
)

type queueSnapshot struct {
	ID        quorum.QueueID `json:"id"`
	Name      string         `json:"name"`
	RoomType  string         `json:"roomType,omitempty"`
	GameMode  string         `json:"gameMode,omitempty"`
	Settings  Settings       `json:"settings"`
	Active    bool           `json:"active"`
	AvgWait   time.Duration  `json:"avgWait"`
	LastMatch time.Time      `json:"lastMatch"`
	Waiting   []Request      `json:"waiting"`
}

type snapshot struct {
	Settings Settings        `json:"settings"`
	Queues   []queueSnapshot `json:"queues"`
	Stats    Stats           `json:"stats"`
}

func (e *Engine) snapshot() snapshot {
	snap := snapshot{Settings: e.settings, Stats: e.stats}
	for _, id := range e.queueOrder() {
		q := e.queues[id]
		qs := queueSnapshot{
			ID:        q.ID,
			Name:      q.Name,
			RoomType:  q.RoomType,
			GameMode:  q.GameMode,
			Settings:  q.Settings,
			Active:    q.Active,
			AvgWait:   q.AvgWait,
			LastMatch: q.LastMatch,
			Waiting:   make([]Request, len(q.waiting)),
		}
		for i, r := range q.waiting {
			qs.Waiting[i] = *r
		}
		snap.Queues = append(snap.Queues, qs)
	}
	return snap
}

// persist is best effort: a slow or absent store never fails the operation.
func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	version, err := e.store.Save(ctx, "matchmaking:"+e.id, e.snapshot(), e.version)
	if err != nil {
		e.log.Warn("matchmaking snapshot not persisted", zap.Error(err))
		return
	}
	e.version = version
}

// restore reloads the last persisted snapshot so waiting requests survive
// idle deactivation and host restarts. Best effort like persist.
func (e *Engine) restore() {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var snap snapshot
	version, found, err := e.store.Load(ctx, "matchmaking:"+e.id, &snap)
	if err != nil {
		e.log.Warn("matchmaking snapshot not loaded", zap.Error(err))
		return
	}
	if !found {
		return
	}
	e.settings = snap.Settings
	e.stats = snap.Stats
	e.queues = make(map[quorum.QueueID]*queue, len(snap.Queues))
	e.active = make(map[quorum.PlayerID]*Request)
	for _, qs := range snap.Queues {
		q := &queue{
			ID:        qs.ID,
			Name:      qs.Name,
			RoomType:  qs.RoomType,
			GameMode:  qs.GameMode,
			Settings:  qs.Settings,
			Active:    qs.Active,
			AvgWait:   qs.AvgWait,
			LastMatch: qs.LastMatch,
		}
		for i := range qs.Waiting {
			// The queue and the active index must alias the same Request.
			r := qs.Waiting[i]
			q.waiting = append(q.waiting, &r)
			if r.Status == RequestQueued {
				e.active[r.PlayerID] = &r
			}
		}
		e.queues[q.ID] = q
	}
	e.version = version
}
