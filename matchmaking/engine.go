package matchmaking

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"quorum"
	"quorum/runtime"
)

// RoomService is the one-directional client surface onto the room
// coordinator used during match finalization.
type RoomService interface {
	CreateRoom(ctx context.Context, roomID quorum.RoomID, creatorID quorum.PlayerID, name, roomType string, maxPlayers int, gameMode string) error
	JoinRoom(ctx context.Context, roomID quorum.RoomID, playerID quorum.PlayerID, displayName string, level int) error
}

// Engine is the matchmaking actor. The runtime serializes all operations
// and the periodic match/cleanup passes, so no pass ever interleaves with
// another turn of the same instance.
type Engine struct {
	id    string
	log   *zap.Logger
	now   func() time.Time
	rooms RoomService
	store quorum.StateStore

	settings Settings
	queues   map[quorum.QueueID]*queue
	active   map[quorum.PlayerID]*Request
	stats    Stats
	version  int64
}

// NewEngine builds an engine; store may be nil.
func NewEngine(rooms RoomService, store quorum.StateStore, settings Settings) *Engine {
	return &Engine{
		now:      time.Now,
		rooms:    rooms,
		store:    store,
		settings: settings.merged(DefaultSettings()),
		queues:   make(map[quorum.QueueID]*queue),
		active:   make(map[quorum.PlayerID]*Request),
	}
}

// Register installs the matchmaking actor kind on sys.
func Register(sys *runtime.System, rooms RoomService, store quorum.StateStore, settings Settings) {
	sys.RegisterKind(ActorKind, func(runtime.Ref) runtime.Actor {
		return NewEngine(rooms, store, settings)
	})
}

func (e *Engine) Activate(ctx *runtime.Context) error {
	e.id = ctx.Ref().Key
	e.log = ctx.Logger()
	e.restore()
	ctx.SetTimer("match-check", e.settings.MatchCheckInterval, func() error {
		_, err := e.TriggerMatchCheck(context.Background(), "")
		return err
	})
	ctx.SetTimer("cleanup", e.settings.CleanupInterval, func() error {
		_, err := e.CleanupExpiredRequests()
		return err
	})
	return nil
}

func (e *Engine) Deactivate(*runtime.Context) {}

// Initialize applies engine settings and makes sure the default queue
// exists.
func (e *Engine) Initialize(settings Settings) error {
	if err := e.UpdateSettings(settings); err != nil {
		return err
	}
	e.ensureDefaultQueue("", "")
	return nil
}

func (e *Engine) UpdateSettings(settings Settings) error {
	settings = settings.merged(e.settings)
	if settings.MinPlayersPerMatch > settings.MaxPlayersPerMatch {
		return quorum.Validationf("min players per match (%d) exceeds max (%d)",
			settings.MinPlayersPerMatch, settings.MaxPlayersPerMatch)
	}
	e.settings = settings
	e.persist()
	return nil
}

func (e *Engine) CreateQueue(id quorum.QueueID, name, roomType, gameMode string, settings Settings) error {
	if id == "" {
		return quorum.Validationf("queue id must not be empty")
	}
	if _, ok := e.queues[id]; ok {
		return quorum.Conflictf("queue %s already exists", id)
	}
	settings = settings.merged(e.settings)
	if settings.MinPlayersPerMatch > settings.MaxPlayersPerMatch {
		return quorum.Validationf("min players per match (%d) exceeds max (%d)",
			settings.MinPlayersPerMatch, settings.MaxPlayersPerMatch)
	}
	e.queues[id] = &queue{
		ID:       id,
		Name:     name,
		RoomType: roomType,
		GameMode: gameMode,
		Settings: settings,
		Active:   true,
	}
	e.log.Info("queue created", zap.String("queue", id.String()), zap.String("gameMode", gameMode))
	e.persist()
	return nil
}

// RemoveQueue cancels every waiting request before dropping the queue.
func (e *Engine) RemoveQueue(id quorum.QueueID) error {
	q, ok := e.queues[id]
	if !ok {
		return quorum.NotFoundf("queue %s does not exist", id)
	}
	for _, r := range q.waiting {
		r.Status = RequestCancelled
		delete(e.active, r.PlayerID)
		e.stats.TotalCancelled++
	}
	q.waiting = nil
	delete(e.queues, id)
	e.log.Info("queue removed", zap.String("queue", id.String()))
	e.persist()
	return nil
}

func (e *Engine) UpdateQueueSettings(id quorum.QueueID, settings Settings) error {
	q, ok := e.queues[id]
	if !ok {
		return quorum.NotFoundf("queue %s does not exist", id)
	}
	settings = settings.merged(q.Settings)
	if settings.MinPlayersPerMatch > settings.MaxPlayersPerMatch {
		return quorum.Validationf("min players per match (%d) exceeds max (%d)",
			settings.MinPlayersPerMatch, settings.MaxPlayersPerMatch)
	}
	q.Settings = settings
	e.persist()
	return nil
}

func (e *Engine) SetQueueActive(id quorum.QueueID, active bool) error {
	q, ok := e.queues[id]
	if !ok {
		return quorum.NotFoundf("queue %s does not exist", id)
	}
	q.Active = active
	e.persist()
	return nil
}

func (e *Engine) ensureDefaultQueue(roomType, gameMode string) *queue {
	if q, ok := e.queues[DefaultQueueID]; ok {
		return q
	}
	_ = e.CreateQueue(DefaultQueueID, "default", roomType, gameMode, e.settings)
	return e.queues[DefaultQueueID]
}

// bestQueue picks the active queue of the requested room type (and game
// mode, if specified) with the most waiting players.
func (e *Engine) bestQueue(criteria Criteria) *queue {
	var best *queue
	for _, q := range e.queues {
		if !q.Active {
			continue
		}
		if criteria.RoomType != "" && q.RoomType != "" && q.RoomType != criteria.RoomType {
			continue
		}
		if criteria.GameMode != "" && q.GameMode != "" && q.GameMode != criteria.GameMode {
			continue
		}
		if best == nil || len(q.waiting) > len(best.waiting) {
			best = q
		}
	}
	return best
}

func (e *Engine) enqueue(q *queue, playerID quorum.PlayerID, criteria Criteria, data PlayerData) (*Request, error) {
	if playerID == "" {
		return nil, quorum.Validationf("player id must not be empty")
	}
	if prev, ok := e.active[playerID]; ok {
		return nil, quorum.Conflictf("player %s already has an active request in queue %s", playerID, prev.QueueID)
	}
	if len(q.waiting) >= q.Settings.MaxQueueSize {
		return nil, quorum.Capacityf("queue %s is full (%d)", q.ID, q.Settings.MaxQueueSize)
	}
	r := &Request{
		ID:          quorum.NewRequestID(),
		PlayerID:    playerID,
		QueueID:     q.ID,
		Criteria:    criteria,
		Player:      data,
		RequestedAt: e.now(),
		Status:      RequestQueued,
	}
	q.waiting = append(q.waiting, r)
	e.active[playerID] = r
	return r, nil
}

// QuickMatch enqueues into the best fitting queue and immediately runs a
// match pass on it, so the caller can come back already matched.
func (e *Engine) QuickMatch(ctx context.Context, playerID quorum.PlayerID, criteria Criteria, data PlayerData) (MatchResult, error) {
	q := e.bestQueue(criteria)
	if q == nil {
		q = e.ensureDefaultQueue(criteria.RoomType, criteria.GameMode)
	}
	r, err := e.enqueue(q, playerID, criteria, data)
	if err != nil {
		return MatchResult{}, err
	}
	if _, err := e.matchPass(ctx, q); err != nil {
		e.log.Warn("immediate match pass failed", zap.String("queue", q.ID.String()), zap.Error(err))
	}
	e.persist()
	return MatchResult{RequestID: r.ID, QueueID: q.ID, Status: r.Status, RoomID: r.MatchedRoomID}, nil
}

// JoinQueue targets an explicit queue and does not attempt an immediate
// match.
func (e *Engine) JoinQueue(playerID quorum.PlayerID, queueID quorum.QueueID, criteria Criteria, data PlayerData) (MatchResult, error) {
	q, ok := e.queues[queueID]
	if !ok {
		return MatchResult{}, quorum.NotFoundf("queue %s does not exist", queueID)
	}
	if !q.Active {
		return MatchResult{}, quorum.InvalidStatef("queue %s is not active", queueID)
	}
	r, err := e.enqueue(q, playerID, criteria, data)
	if err != nil {
		return MatchResult{}, err
	}
	e.persist()
	return MatchResult{RequestID: r.ID, QueueID: q.ID, Status: r.Status}, nil
}

func (e *Engine) CancelMatchmaking(playerID quorum.PlayerID) error {
	return e.removeRequest(playerID, RequestCancelled, "cancelled by player")
}

func (e *Engine) ForceRemovePlayerRequest(playerID quorum.PlayerID, reason string) error {
	return e.removeRequest(playerID, RequestCancelled, reason)
}

func (e *Engine) removeRequest(playerID quorum.PlayerID, status RequestStatus, reason string) error {
	r, ok := e.active[playerID]
	if !ok {
		return quorum.NotFoundf("player %s has no active request", playerID)
	}
	if q, ok := e.queues[r.QueueID]; ok {
		q.remove(r.ID)
	}
	delete(e.active, playerID)
	r.Status = status
	switch status {
	case RequestCancelled:
		e.stats.TotalCancelled++
	case RequestTimeout:
		e.stats.TotalTimeouts++
	}
	e.log.Info("request removed",
		zap.String("player", playerID.String()),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	e.persist()
	return nil
}

// TriggerMatchCheck runs the grouping pass on one queue, or on every active
// queue when queueID is empty. It returns the number of matches created.
func (e *Engine) TriggerMatchCheck(ctx context.Context, queueID quorum.QueueID) (int, error) {
	if queueID != "" {
		q, ok := e.queues[queueID]
		if !ok {
			return 0, quorum.NotFoundf("queue %s does not exist", queueID)
		}
		n, err := e.matchPass(ctx, q)
		if n > 0 {
			e.persist()
		}
		return n, err
	}
	total := 0
	var firstErr error
	for _, id := range e.queueOrder() {
		q := e.queues[id]
		if !q.Active {
			continue
		}
		n, err := e.matchPass(ctx, q)
		total += n
		if err != nil {
			firstErr = err
			break
		}
	}
	if total > 0 {
		e.persist()
	}
	return total, firstErr
}

func (e *Engine) queueOrder() []quorum.QueueID {
	ids := make([]quorum.QueueID, 0, len(e.queues))
	for id := range e.queues {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CleanupExpiredRequests times out requests that waited past their queue's
// timeout. It returns the number of removed requests.
func (e *Engine) CleanupExpiredRequests() (int, error) {
	now := e.now()
	var expired []quorum.PlayerID
	for playerID, r := range e.active {
		timeout := e.settings.RequestTimeout
		if q, ok := e.queues[r.QueueID]; ok {
			timeout = q.Settings.RequestTimeout
		}
		if now.Sub(r.RequestedAt) > timeout {
			expired = append(expired, playerID)
		}
	}
	for _, playerID := range expired {
		_ = e.removeRequest(playerID, RequestTimeout, "request timed out")
	}
	return len(expired), nil
}

// GetPlayerRequest returns a copy of the player's active request, or nil
// once the request reached a terminal state.
func (e *Engine) GetPlayerRequest(playerID quorum.PlayerID) *Request {
	r, ok := e.active[playerID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (e *Engine) GetMatchmakingStatus(playerID quorum.PlayerID) (StatusInfo, error) {
	r, ok := e.active[playerID]
	if !ok {
		return StatusInfo{}, quorum.NotFoundf("player %s has no active request", playerID)
	}
	info := StatusInfo{Request: *r, EstimatedWait: e.stats.AverageWaitTime}
	if q, ok := e.queues[r.QueueID]; ok {
		for i, w := range q.waiting {
			if w.ID == r.ID {
				info.QueuePosition = i + 1
				break
			}
		}
		if q.AvgWait > 0 {
			info.EstimatedWait = q.AvgWait
		}
	}
	return info, nil
}

func (e *Engine) GetQueues() []QueueInfo {
	infos := make([]QueueInfo, 0, len(e.queues))
	for _, id := range e.queueOrder() {
		q := e.queues[id]
		infos = append(infos, QueueInfo{
			ID:              q.ID,
			Name:            q.Name,
			RoomType:        q.RoomType,
			GameMode:        q.GameMode,
			Settings:        q.Settings,
			Active:          q.Active,
			WaitingPlayers:  len(q.waiting),
			AverageWaitTime: q.AvgWait,
			LastMatchTime:   q.LastMatch,
		})
	}
	return infos
}

func (e *Engine) GetQueuePlayerCount(queueID quorum.QueueID) (int, error) {
	q, ok := e.queues[queueID]
	if !ok {
		return 0, quorum.NotFoundf("queue %s does not exist", queueID)
	}
	return len(q.waiting), nil
}

func (e *Engine) GetQueueAverageWaitTime(queueID quorum.QueueID) (time.Duration, error) {
	q, ok := e.queues[queueID]
	if !ok {
		return 0, quorum.NotFoundf("queue %s does not exist", queueID)
	}
	return q.AvgWait, nil
}

func (e *Engine) GetStatistics() Stats {
	stats := e.stats
	stats.CurrentInQueue = len(e.active)
	return stats
}

func (e *Engine) ResetStatistics() {
	e.stats = Stats{}
}

// GetHealthStatus checks queue occupancy and the consistency of the
// active-request index against the queues.
func (e *Engine) GetHealthStatus() Health {
	h := Health{Healthy: true}
	waiting := 0
	for _, q := range e.queues {
		waiting += len(q.waiting)
		if q.Settings.MaxQueueSize > 0 && len(q.waiting)*10 >= q.Settings.MaxQueueSize*9 {
			h.Healthy = false
			h.Issues = append(h.Issues, "queue "+q.ID.String()+" is over 90% occupancy")
		}
	}
	if waiting != len(e.active) {
		h.Healthy = false
		h.Issues = append(h.Issues, "active-request index out of sync with queues")
	}
	return h
}
