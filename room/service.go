package room

import (
	"context"

	"quorum"
	"quorum/runtime"
)

// Service adapts the room actor to the flat signatures the matchmaking
// engine places rooms through. Matchmaking stays a one-directional client:
// rooms never call back into it.
type Service struct {
	sys *runtime.System
}

func NewService(sys *runtime.System) *Service {
	return &Service{sys: sys}
}

func (s *Service) CreateRoom(ctx context.Context, roomID quorum.RoomID, creatorID quorum.PlayerID, name, roomType string, maxPlayers int, gameMode string) error {
	settings := Settings{GameMode: gameMode, MinPlayers: 1, AutoStart: true}
	return NewHandle(s.sys, roomID).CreateRoom(ctx, creatorID, name, Type(roomType), maxPlayers, settings)
}

func (s *Service) JoinRoom(ctx context.Context, roomID quorum.RoomID, playerID quorum.PlayerID, displayName string, level int) error {
	_, err := NewHandle(s.sys, roomID).JoinRoom(ctx, playerID, displayName, "", false, level)
	return err
}
