// Package matchmaking groups waiting players into matches and hands them to
// the room coordinator. One engine instance owns a set of named queues; all
// of its state is confined to the actor's turns.
package matchmaking

import (
	"time"

	"quorum"
	"quorum/runtime"
)

const ActorKind = runtime.Kind("matchmaking")

// DefaultQueueID is the queue QuickMatch falls back to when no configured
// queue fits the request.
const DefaultQueueID = quorum.QueueID("default")

type RequestStatus string

const (
	RequestQueued    RequestStatus = "Queued"
	RequestMatched   RequestStatus = "Matched"
	RequestCancelled RequestStatus = "Cancelled"
	RequestTimeout   RequestStatus = "Timeout"
)

// Settings control the grouping algorithm and queue limits. Zero fields are
// replaced with the engine defaults when a queue is created.
type Settings struct {
	MinPlayersPerMatch         int           `json:"minPlayersPerMatch"`
	MaxPlayersPerMatch         int           `json:"maxPlayersPerMatch"`
	MaxLevelDifference         int           `json:"maxLevelDifference"`
	ExpandLevelDifferenceAfter time.Duration `json:"expandLevelDifferenceAfter"`
	RegionPriority             bool          `json:"regionPriority"`
	RequestTimeout             time.Duration `json:"requestTimeout"`
	MaxQueueSize               int           `json:"maxQueueSize"`
	MatchCheckInterval         time.Duration `json:"matchCheckInterval"`
	CleanupInterval            time.Duration `json:"cleanupInterval"`
}

func DefaultSettings() Settings {
	return Settings{
		MinPlayersPerMatch:         2,
		MaxPlayersPerMatch:         4,
		MaxLevelDifference:         10,
		ExpandLevelDifferenceAfter: 30 * time.Second,
		RegionPriority:             false,
		RequestTimeout:             2 * time.Minute,
		MaxQueueSize:               200,
		MatchCheckInterval:         5 * time.Second,
		CleanupInterval:            30 * time.Second,
	}
}

// merged fills the zero fields of s from def.
func (s Settings) merged(def Settings) Settings {
	if s.MinPlayersPerMatch <= 0 {
		s.MinPlayersPerMatch = def.MinPlayersPerMatch
	}
	if s.MaxPlayersPerMatch <= 0 {
		s.MaxPlayersPerMatch = def.MaxPlayersPerMatch
	}
	if s.MaxLevelDifference <= 0 {
		s.MaxLevelDifference = def.MaxLevelDifference
	}
	if s.ExpandLevelDifferenceAfter <= 0 {
		s.ExpandLevelDifferenceAfter = def.ExpandLevelDifferenceAfter
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = def.RequestTimeout
	}
	if s.MaxQueueSize <= 0 {
		s.MaxQueueSize = def.MaxQueueSize
	}
	if s.MatchCheckInterval <= 0 {
		s.MatchCheckInterval = def.MatchCheckInterval
	}
	if s.CleanupInterval <= 0 {
		s.CleanupInterval = def.CleanupInterval
	}
	return s
}

// Criteria is what a player asks for when queueing.
type Criteria struct {
	Level    int    `json:"level"`
	GameMode string `json:"gameMode"`
	Region   string `json:"region,omitempty"`
	RoomType string `json:"roomType,omitempty"`
}

type PlayerData struct {
	DisplayName string `json:"displayName"`
}

type Request struct {
	ID            quorum.RequestID `json:"id"`
	PlayerID      quorum.PlayerID  `json:"playerId"`
	QueueID       quorum.QueueID   `json:"queueId"`
	Criteria      Criteria         `json:"criteria"`
	Player        PlayerData       `json:"player"`
	RequestedAt   time.Time        `json:"requestedAt"`
	Status        RequestStatus    `json:"status"`
	MatchedRoomID quorum.RoomID    `json:"matchedRoomId,omitempty"`
}

type queue struct {
	ID        quorum.QueueID
	Name      string
	RoomType  string
	GameMode  string
	Settings  Settings
	Active    bool
	AvgWait   time.Duration
	LastMatch time.Time
	waiting   []*Request // FIFO by RequestedAt
}

func (q *queue) remove(id quorum.RequestID) {
	waiting := q.waiting[:0]
	for _, r := range q.waiting {
		if r.ID != id {
			waiting = append(waiting, r)
		}
	}
	q.waiting = waiting
}

// QueueInfo is the outward projection of one queue.
type QueueInfo struct {
	ID              quorum.QueueID
	Name            string
	RoomType        string
	GameMode        string
	Settings        Settings
	Active          bool
	WaitingPlayers  int
	AverageWaitTime time.Duration
	LastMatchTime   time.Time
}

type Stats struct {
	TotalMatchesMade    uint64        `json:"totalMatchesMade"`
	TotalPlayersMatched uint64        `json:"totalPlayersMatched"`
	TotalCancelled      uint64        `json:"totalCancelled"`
	TotalTimeouts       uint64        `json:"totalTimeouts"`
	CurrentInQueue      int           `json:"currentInQueue"`
	AverageWaitTime     time.Duration `json:"averageWaitTime"`
}

// MatchResult is what an enqueue call reports back. RoomID is set when the
// caller was matched synchronously.
type MatchResult struct {
	RequestID quorum.RequestID
	QueueID   quorum.QueueID
	Status    RequestStatus
	RoomID    quorum.RoomID
}

// StatusInfo describes a waiting request for polling callers.
type StatusInfo struct {
	Request       Request
	QueuePosition int
	EstimatedWait time.Duration
}

type Health struct {
	Healthy bool
	Issues  []string
}
