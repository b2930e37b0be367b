package matchmaking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quorum"
)

// emaWeight is the weight of the newest sample in the rolling average wait
// time.
const emaWeight = 0.2

// matchPass runs the grouping algorithm over one queue until no further
// group can be formed. It executes inside one turn, so two passes never
// interleave.
func (e *Engine) matchPass(ctx context.Context, q *queue) (int, error) {
	matches := 0
	for {
		group := e.collectGroup(q)
		if group == nil {
			return matches, nil
		}
		if err := e.finalize(ctx, q, group); err != nil {
			// Room creation failed: every request stays queued for the
			// next pass.
			return matches, err
		}
		matches++
	}
}

// collectGroup walks the waiting requests oldest first. The oldest
// remaining request is the pivot; its level threshold doubles once it has
// waited past the expansion deadline. If the pivot cannot gather the
// minimum group, only the pivot is skipped and the next oldest takes over.
func (e *Engine) collectGroup(q *queue) []*Request {
	s := q.Settings
	remaining := q.waiting
	for len(remaining) >= s.MinPlayersPerMatch {
		pivot := remaining[0]
		threshold := s.MaxLevelDifference
		if e.now().Sub(pivot.RequestedAt) > s.ExpandLevelDifferenceAfter {
			threshold *= 2
		}
		group := []*Request{pivot}
		for _, cand := range remaining[1:] {
			if len(group) == s.MaxPlayersPerMatch {
				break
			}
			if compatible(pivot, cand, threshold, s.RegionPriority) {
				group = append(group, cand)
			}
		}
		if len(group) >= s.MinPlayersPerMatch {
			return group
		}
		remaining = remaining[1:]
	}
	return nil
}

func compatible(pivot, cand *Request, levelThreshold int, regionPriority bool) bool {
	diff := pivot.Criteria.Level - cand.Criteria.Level
	if diff < 0 {
		diff = -diff
	}
	if diff > levelThreshold {
		return false
	}
	if pivot.Criteria.GameMode != cand.Criteria.GameMode {
		return false
	}
	if regionPriority && pivot.Criteria.Region != "" && cand.Criteria.Region != "" &&
		pivot.Criteria.Region != cand.Criteria.Region {
		return false
	}
	return true
}

// finalize is the cross-actor handoff: create the room, then place every
// matched player. A failed room creation aborts with no side effects. A
// player whose join fails is left queued and retried on the next pass;
// everyone who joined is marked Matched.
func (e *Engine) finalize(ctx context.Context, q *queue, group []*Request) error {
	roomID := quorum.NewRoomID()
	creator := group[0]
	name := fmt.Sprintf("%s match", q.Name)

	if err := e.rooms.CreateRoom(ctx, roomID, creator.PlayerID, name, q.RoomType, q.Settings.MaxPlayersPerMatch, q.GameMode); err != nil {
		return quorum.Infrastructuref(err, "room creation failed for queue %s", q.ID)
	}

	placed := group[:0:0]
	for _, r := range group {
		if err := e.rooms.JoinRoom(ctx, roomID, r.PlayerID, r.Player.DisplayName, r.Criteria.Level); err != nil {
			e.log.Warn("matched player failed to join room, request re-queued",
				zap.String("player", r.PlayerID.String()),
				zap.String("room", roomID.String()),
				zap.Error(err))
			continue
		}
		placed = append(placed, r)
	}
	if len(placed) == 0 {
		return quorum.Infrastructuref(nil, "no matched player could join room %s", roomID)
	}

	now := e.now()
	for _, r := range placed {
		r.Status = RequestMatched
		r.MatchedRoomID = roomID
		q.remove(r.ID)
		delete(e.active, r.PlayerID)
		wait := now.Sub(r.RequestedAt)
		e.stats.AverageWaitTime = ema(e.stats.AverageWaitTime, wait)
		q.AvgWait = ema(q.AvgWait, wait)
	}
	q.LastMatch = now
	e.stats.TotalMatchesMade++
	e.stats.TotalPlayersMatched += uint64(len(placed))

	e.log.Info("match finalized",
		zap.String("queue", q.ID.String()),
		zap.String("room", roomID.String()),
		zap.Int("players", len(placed)))
	return nil
}

func ema(avg, sample time.Duration) time.Duration {
	if avg == 0 {
		return sample
	}
	return time.Duration(float64(avg)*(1-emaWeight) + float64(sample)*emaWeight)
}
