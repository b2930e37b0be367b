package matchmaking

import (
	"context"
	"time"

	"quorum"
	"quorum/runtime"
)

// Handle addresses one matchmaking engine instance through the runtime.
type Handle struct {
	sys *runtime.System
	key string
}

func NewHandle(sys *runtime.System, key string) Handle {
	return Handle{sys: sys, key: key}
}

func (h Handle) invoke(ctx context.Context, turn func(e *Engine) error) error {
	return h.sys.Invoke(ctx, runtime.Ref{Kind: ActorKind, Key: h.key}, func(a runtime.Actor) error {
		return turn(a.(*Engine))
	})
}

func (h Handle) Initialize(ctx context.Context, settings Settings) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.Initialize(settings)
	})
}

func (h Handle) UpdateSettings(ctx context.Context, settings Settings) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.UpdateSettings(settings)
	})
}

func (h Handle) CreateQueue(ctx context.Context, id quorum.QueueID, name, roomType, gameMode string, settings Settings) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.CreateQueue(id, name, roomType, gameMode, settings)
	})
}

func (h Handle) RemoveQueue(ctx context.Context, id quorum.QueueID) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.RemoveQueue(id)
	})
}

func (h Handle) UpdateQueueSettings(ctx context.Context, id quorum.QueueID, settings Settings) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.UpdateQueueSettings(id, settings)
	})
}

func (h Handle) SetQueueActive(ctx context.Context, id quorum.QueueID, active bool) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.SetQueueActive(id, active)
	})
}

func (h Handle) QuickMatch(ctx context.Context, playerID quorum.PlayerID, criteria Criteria, data PlayerData) (MatchResult, error) {
	var res MatchResult
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		res, err = e.QuickMatch(ctx, playerID, criteria, data)
		return err
	})
	return res, err
}

func (h Handle) JoinQueue(ctx context.Context, playerID quorum.PlayerID, queueID quorum.QueueID, criteria Criteria, data PlayerData) (MatchResult, error) {
	var res MatchResult
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		res, err = e.JoinQueue(playerID, queueID, criteria, data)
		return err
	})
	return res, err
}

func (h Handle) CancelMatchmaking(ctx context.Context, playerID quorum.PlayerID) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.CancelMatchmaking(playerID)
	})
}

func (h Handle) ForceRemovePlayerRequest(ctx context.Context, playerID quorum.PlayerID, reason string) error {
	return h.invoke(ctx, func(e *Engine) error {
		return e.ForceRemovePlayerRequest(playerID, reason)
	})
}

func (h Handle) TriggerMatchCheck(ctx context.Context, queueID quorum.QueueID) (int, error) {
	var n int
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		n, err = e.TriggerMatchCheck(ctx, queueID)
		return err
	})
	return n, err
}

func (h Handle) CleanupExpiredRequests(ctx context.Context) (int, error) {
	var n int
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		n, err = e.CleanupExpiredRequests()
		return err
	})
	return n, err
}

func (h Handle) GetPlayerRequest(ctx context.Context, playerID quorum.PlayerID) (*Request, error) {
	var r *Request
	err := h.invoke(ctx, func(e *Engine) error {
		r = e.GetPlayerRequest(playerID)
		return nil
	})
	return r, err
}

func (h Handle) GetMatchmakingStatus(ctx context.Context, playerID quorum.PlayerID) (StatusInfo, error) {
	var info StatusInfo
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		info, err = e.GetMatchmakingStatus(playerID)
		return err
	})
	return info, err
}

func (h Handle) GetQueues(ctx context.Context) ([]QueueInfo, error) {
	var infos []QueueInfo
	err := h.invoke(ctx, func(e *Engine) error {
		infos = e.GetQueues()
		return nil
	})
	return infos, err
}

func (h Handle) GetQueuePlayerCount(ctx context.Context, queueID quorum.QueueID) (int, error) {
	var n int
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		n, err = e.GetQueuePlayerCount(queueID)
		return err
	})
	return n, err
}

func (h Handle) GetQueueAverageWaitTime(ctx context.Context, queueID quorum.QueueID) (time.Duration, error) {
	var d time.Duration
	err := h.invoke(ctx, func(e *Engine) error {
		var err error
		d, err = e.GetQueueAverageWaitTime(queueID)
		return err
	})
	return d, err
}

func (h Handle) GetStatistics(ctx context.Context) (Stats, error) {
	var stats Stats
	err := h.invoke(ctx, func(e *Engine) error {
		stats = e.GetStatistics()
		return nil
	})
	return stats, err
}

func (h Handle) ResetStatistics(ctx context.Context) error {
	return h.invoke(ctx, func(e *Engine) error {
		e.ResetStatistics()
		return nil
	})
}

func (h Handle) GetHealthStatus(ctx context.Context) (Health, error) {
	var health Health
	err := h.invoke(ctx, func(e *Engine) error {
		health = e.GetHealthStatus()
		return nil
	})
	return health, err
}
