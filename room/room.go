// Package room owns the full state of one game room behind a single actor
// key: membership, permissions, settings, the lifecycle state machine and a
// bounded log of recent events.
package room

import (
	"time"

	"quorum"
	"quorum/runtime"
)

const ActorKind = runtime.Kind("room")

type Status string

const (
	StatusWaiting  Status = "Waiting"
	StatusReady    Status = "Ready"
	StatusInGame   Status = "InGame"
	StatusFinished Status = "Finished"
	StatusClosed   Status = "Closed"
)

type Type string

const (
	TypeNormal  Type = "Normal"
	TypeRanked  Type = "Ranked"
	TypePrivate Type = "Private"
)

type Role string

const (
	RoleLeader Role = "Leader"
	RoleMember Role = "Member"
	RoleAdmin  Role = "Admin"
)

const (
	MaxRoomPlayers = 16
	maxEvents      = 100
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Player struct {
	ID          quorum.PlayerID `json:"id"`
	DisplayName string          `json:"displayName"`
	Role        Role            `json:"role"`
	Ready       bool            `json:"ready"`
	Spectator   bool            `json:"spectator"`
	Level       int             `json:"level"`
	JoinedAt    time.Time       `json:"joinedAt"`
	Score       int             `json:"score"`
	Position    Position        `json:"position"`
}

type Settings struct {
	Password   string            `json:"password,omitempty"`
	MinPlayers int               `json:"minPlayers"`
	AutoStart  bool              `json:"autoStart"`
	GameMode   string            `json:"gameMode"`
	Custom     map[string]string `json:"custom,omitempty"`
}

type GameState struct {
	Scores map[quorum.PlayerID]int `json:"scores"`
	Winner quorum.PlayerID         `json:"winner,omitempty"`
}

type Event struct {
	Type        string            `json:"type"`
	PlayerID    quorum.PlayerID   `json:"playerId,omitempty"`
	Description string            `json:"description"`
	Data        map[string]string `json:"data,omitempty"`
	At          time.Time         `json:"at"`
}

// Event types emitted by the coordinator.
const (
	EventRoomCreated     = "RoomCreated"
	EventPlayerJoined    = "PlayerJoined"
	EventPlayerLeft      = "PlayerLeft"
	EventPlayerKicked    = "PlayerKicked"
	EventPlayerReady     = "PlayerReady"
	EventSettingsUpdated = "SettingsUpdated"
	EventGameStarted     = "GameStarted"
	EventGameEnded       = "GameEnded"
	EventRoomClosed      = "RoomClosed"
	EventLeaderChanged   = "LeaderChanged"
)

// state is the actor-owned room record. Nothing outside the coordinator's
// turns may touch it.
type state struct {
	ID            quorum.RoomID   `json:"id"`
	Name          string          `json:"name"`
	CreatorID     quorum.PlayerID `json:"creatorId"`
	Type          Type            `json:"type"`
	Status        Status          `json:"status"`
	MaxPlayers    int             `json:"maxPlayers"`
	Players       []*Player       `json:"players"`
	Settings      Settings        `json:"settings"`
	Game          GameState       `json:"game"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	GameStartTime *time.Time      `json:"gameStartTime,omitempty"`
	GameEndTime   *time.Time      `json:"gameEndTime,omitempty"`
	Events        []Event         `json:"events"`
}

// Info is the full outward projection of a room.
type Info struct {
	ID                 quorum.RoomID
	Name               string
	CreatorID          quorum.PlayerID
	Type               Type
	Status             Status
	MaxPlayers         int
	CurrentPlayerCount int
	Players            []Player
	Settings           Settings
	Game               GameState
	CreatedAt          time.Time
	UpdatedAt          time.Time
	GameStartTime      *time.Time
	GameEndTime        *time.Time
}

// Brief is the summary projection used by room listings.
type Brief struct {
	ID                 quorum.RoomID
	Name               string
	Type               Type
	Status             Status
	CurrentPlayerCount int
	MaxPlayers         int
	HasPassword        bool
	GameMode           string
}
