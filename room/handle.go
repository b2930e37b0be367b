package room

import (
	"context"

	"quorum"
	"quorum/runtime"
)

// Handle addresses one room instance through the runtime. Every method is
// executed as a single turn of that instance.
type Handle struct {
	sys *runtime.System
	id  quorum.RoomID
}

func NewHandle(sys *runtime.System, id quorum.RoomID) Handle {
	return Handle{sys: sys, id: id}
}

func (h Handle) ID() quorum.RoomID {
	return h.id
}

func (h Handle) invoke(ctx context.Context, turn func(c *Coordinator) error) error {
	return h.sys.Invoke(ctx, runtime.Ref{Kind: ActorKind, Key: h.id.String()}, func(a runtime.Actor) error {
		return turn(a.(*Coordinator))
	})
}

func (h Handle) CreateRoom(ctx context.Context, creatorID quorum.PlayerID, name string, typ Type, maxPlayers int, settings Settings) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.CreateRoom(ctx, creatorID, name, typ, maxPlayers, settings)
	})
}

func (h Handle) JoinRoom(ctx context.Context, playerID quorum.PlayerID, displayName, password string, spectator bool, level int) (Player, error) {
	var p Player
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		p, err = c.JoinRoom(ctx, playerID, displayName, password, spectator, level)
		return err
	})
	return p, err
}

func (h Handle) LeaveRoom(ctx context.Context, playerID quorum.PlayerID, reason string) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.LeaveRoom(ctx, playerID, reason)
	})
}

func (h Handle) SetPlayerReady(ctx context.Context, playerID quorum.PlayerID, ready bool) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.SetPlayerReady(ctx, playerID, ready)
	})
}

func (h Handle) KickPlayer(ctx context.Context, operatorID, targetID quorum.PlayerID, reason string) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.KickPlayer(ctx, operatorID, targetID, reason)
	})
}

func (h Handle) UpdateRoomSettings(ctx context.Context, playerID quorum.PlayerID, settings Settings) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.UpdateRoomSettings(ctx, playerID, settings)
	})
}

func (h Handle) CanStartGame(ctx context.Context) (bool, error) {
	var ok bool
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		ok, err = c.CanStartGame()
		return err
	})
	return ok, err
}

func (h Handle) StartGame(ctx context.Context, playerID quorum.PlayerID, force bool) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.StartGame(ctx, playerID, force)
	})
}

func (h Handle) EndGame(ctx context.Context, playerID quorum.PlayerID, finalScores map[quorum.PlayerID]int) (quorum.PlayerID, error) {
	var winner quorum.PlayerID
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		winner, err = c.EndGame(ctx, playerID, finalScores)
		return err
	})
	return winner, err
}

func (h Handle) UpdatePlayerPosition(ctx context.Context, playerID quorum.PlayerID, pos Position) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.UpdatePlayerPosition(playerID, pos)
	})
}

func (h Handle) UpdatePlayerScore(ctx context.Context, playerID quorum.PlayerID, score int) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.UpdatePlayerScore(playerID, score)
	})
}

func (h Handle) AddRoomEvent(ctx context.Context, typ string, playerID quorum.PlayerID, description string, data map[string]string) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.AddRoomEvent(typ, playerID, description, data)
	})
}

func (h Handle) GetRecentEvents(ctx context.Context, count int) ([]Event, error) {
	var events []Event
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		events, err = c.GetRecentEvents(count)
		return err
	})
	return events, err
}

func (h Handle) CloseRoom(ctx context.Context, operatorID quorum.PlayerID, reason string) error {
	return h.invoke(ctx, func(c *Coordinator) error {
		return c.CloseRoom(ctx, operatorID, reason)
	})
}

func (h Handle) HasPermission(ctx context.Context, playerID quorum.PlayerID) (bool, error) {
	var ok bool
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		ok, err = c.HasPermission(playerID)
		return err
	})
	return ok, err
}

func (h Handle) IsExists(ctx context.Context) (bool, error) {
	var ok bool
	err := h.invoke(ctx, func(c *Coordinator) error {
		ok = c.IsExists()
		return nil
	})
	return ok, err
}

func (h Handle) GetPlayers(ctx context.Context) ([]Player, error) {
	var players []Player
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		players, err = c.GetPlayers()
		return err
	})
	return players, err
}

func (h Handle) GetRoomInfo(ctx context.Context) (Info, error) {
	var info Info
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		info, err = c.GetRoomInfo()
		return err
	})
	return info, err
}

func (h Handle) GetRoomBrief(ctx context.Context) (Brief, error) {
	var brief Brief
	err := h.invoke(ctx, func(c *Coordinator) error {
		var err error
		brief, err = c.GetRoomBrief()
		return err
	})
	return brief, err
}
