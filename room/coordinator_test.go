package room

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"quorum"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	c := NewCoordinator(nil)
	c.id = "r1"
	c.log = zap.NewNop()
	c.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	return c
}

func createTestRoom(t *testing.T, c *Coordinator, maxPlayers int, settings Settings) {
	t.Helper()
	if err := c.CreateRoom(context.Background(), "creator", "test room", TypeNormal, maxPlayers, settings); err != nil {
		t.Fatal(err)
	}
}

func join(t *testing.T, c *Coordinator, id quorum.PlayerID) Player {
	t.Helper()
	p, err := c.JoinRoom(context.Background(), id, string(id), "", false, 1)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCoordinator_CreateRoom(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})

	assert.True(t, c.IsExists())
	info, err := c.GetRoomInfo()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, StatusWaiting, info.Status)
	assert.Equal(t, quorum.PlayerID("creator"), info.CreatorID)
	assert.Equal(t, 1, info.Settings.MinPlayers)
	assert.Equal(t, 0, info.CurrentPlayerCount)

	err = c.CreateRoom(context.Background(), "creator", "again", TypeNormal, 4, Settings{})
	assert.Equal(t, quorum.KindConflict, quorum.KindOf(err))
}

func TestCoordinator_CreateRoomValidation(t *testing.T) {
	c := newTestCoordinator(t)

	err := c.CreateRoom(context.Background(), "", "test", TypeNormal, 4, Settings{})
	assert.Equal(t, quorum.KindValidation, quorum.KindOf(err))

	err = c.CreateRoom(context.Background(), "creator", "test", TypeNormal, 0, Settings{})
	assert.Equal(t, quorum.KindValidation, quorum.KindOf(err))

	err = c.CreateRoom(context.Background(), "creator", "test", TypeNormal, MaxRoomPlayers+1, Settings{})
	assert.Equal(t, quorum.KindValidation, quorum.KindOf(err))
}

func TestCoordinator_RoomNotFound(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.GetRoomInfo()
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))
	_, err = c.JoinRoom(context.Background(), "p1", "p1", "", false, 1)
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))
}

func TestCoordinator_JoinRoom(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 2, Settings{})

	p1 := join(t, c, "p1")
	assert.Equal(t, RoleLeader, p1.Role)

	p2 := join(t, c, "p2")
	assert.Equal(t, RoleMember, p2.Role)

	// Idempotent rejoin returns the original membership.
	again, err := c.JoinRoom(context.Background(), "p1", "other name", "", false, 99)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, p1, again)

	_, err = c.JoinRoom(context.Background(), "p3", "p3", "", false, 1)
	assert.Equal(t, quorum.KindCapacity, quorum.KindOf(err))

	// Spectators do not count against capacity.
	watcher, err := c.JoinRoom(context.Background(), "watcher", "watcher", "", true, 1)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, watcher.Spectator)

	info, err := c.GetRoomInfo()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(info.Players), info.CurrentPlayerCount)
	assert.Equal(t, 3, info.CurrentPlayerCount)
}

func TestCoordinator_JoinRoomPassword(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{Password: "s3cret"})

	_, err := c.JoinRoom(context.Background(), "p1", "p1", "wrong", false, 1)
	assert.Equal(t, quorum.KindPermission, quorum.KindOf(err))

	_, err = c.JoinRoom(context.Background(), "p1", "p1", "s3cret", false, 1)
	assert.NoError(t, err)
}

func TestCoordinator_JoinRoomDuringGame(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{AutoStart: true})
	join(t, c, "p1")
	join(t, c, "p2")
	if err := c.StartGame(context.Background(), "p1", false); err != nil {
		t.Fatal(err)
	}

	_, err := c.JoinRoom(context.Background(), "p3", "p3", "", false, 1)
	assert.Equal(t, quorum.KindInvalidState, quorum.KindOf(err))

	// Spectating a running game is allowed.
	_, err = c.JoinRoom(context.Background(), "watcher", "watcher", "", true, 1)
	assert.NoError(t, err)
}

func TestCoordinator_LeaveRoomPromotesLeader(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "a")
	join(t, c, "b")
	join(t, c, "c")

	if err := c.LeaveRoom(context.Background(), "a", "left"); err != nil {
		t.Fatal(err)
	}
	players, err := c.GetPlayers()
	if err != nil {
		t.Fatal(err)
	}
	roles := map[quorum.PlayerID]Role{}
	for _, p := range players {
		roles[p.ID] = p.Role
	}
	assert.Equal(t, RoleLeader, roles["b"])
	assert.Equal(t, RoleMember, roles["c"])
}

func TestCoordinator_LeaveRoomClosesEmptyRoom(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "a")

	if err := c.LeaveRoom(context.Background(), "a", "left"); err != nil {
		t.Fatal(err)
	}
	assert.False(t, c.IsExists())
	_, err := c.GetRoomInfo()
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))
}

func TestCoordinator_SetPlayerReady(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{MinPlayers: 2})
	join(t, c, "a")
	join(t, c, "b")

	if err := c.SetPlayerReady(context.Background(), "a", true); err != nil {
		t.Fatal(err)
	}
	info, _ := c.GetRoomInfo()
	assert.Equal(t, StatusWaiting, info.Status)

	if err := c.SetPlayerReady(context.Background(), "b", true); err != nil {
		t.Fatal(err)
	}
	info, _ = c.GetRoomInfo()
	assert.Equal(t, StatusReady, info.Status)

	if err := c.SetPlayerReady(context.Background(), "a", false); err != nil {
		t.Fatal(err)
	}
	info, _ = c.GetRoomInfo()
	assert.Equal(t, StatusWaiting, info.Status)
}

func TestCoordinator_KickPlayer(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "leader")
	join(t, c, "m1")
	join(t, c, "m2")

	err := c.KickPlayer(context.Background(), "m1", "m2", "grief")
	assert.Equal(t, quorum.KindPermission, quorum.KindOf(err))

	err = c.KickPlayer(context.Background(), "leader", "leader", "oops")
	assert.Equal(t, quorum.KindValidation, quorum.KindOf(err))

	err = c.KickPlayer(context.Background(), "leader", "ghost", "absent")
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))

	if err := c.KickPlayer(context.Background(), "leader", "m1", "grief"); err != nil {
		t.Fatal(err)
	}
	players, _ := c.GetPlayers()
	assert.Len(t, players, 2)
}

func TestCoordinator_StartGame(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{MinPlayers: 2})
	join(t, c, "a")
	join(t, c, "b")

	// Nobody is ready and AutoStart is off.
	ok, err := c.CanStartGame()
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, ok)
	err = c.StartGame(context.Background(), "a", false)
	assert.Equal(t, quorum.KindInvalidState, quorum.KindOf(err))

	err = c.StartGame(context.Background(), "b", true)
	assert.Equal(t, quorum.KindPermission, quorum.KindOf(err))

	if err := c.StartGame(context.Background(), "a", true); err != nil {
		t.Fatal(err)
	}
	info, _ := c.GetRoomInfo()
	assert.Equal(t, StatusInGame, info.Status)
	assert.NotNil(t, info.GameStartTime)

	err = c.StartGame(context.Background(), "a", true)
	assert.Equal(t, quorum.KindInvalidState, quorum.KindOf(err))
}

func TestCoordinator_EndGame(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{AutoStart: true})
	join(t, c, "a")
	join(t, c, "b")

	_, err := c.EndGame(context.Background(), "a", nil)
	assert.Equal(t, quorum.KindInvalidState, quorum.KindOf(err))

	if err := c.StartGame(context.Background(), "a", false); err != nil {
		t.Fatal(err)
	}
	winner, err := c.EndGame(context.Background(), "a", map[quorum.PlayerID]int{"a": 3, "b": 9})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, quorum.PlayerID("b"), winner)

	info, _ := c.GetRoomInfo()
	assert.Equal(t, StatusFinished, info.Status)
	assert.Equal(t, quorum.PlayerID("b"), info.Game.Winner)
	assert.NotNil(t, info.GameEndTime)
}

func TestCoordinator_EndGameTieBreak(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{AutoStart: true})
	join(t, c, "zed")
	join(t, c, "amy")
	if err := c.StartGame(context.Background(), "zed", false); err != nil {
		t.Fatal(err)
	}

	// Equal scores resolve to the lowest player id.
	winner, err := c.EndGame(context.Background(), "zed", map[quorum.PlayerID]int{"zed": 5, "amy": 5})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, quorum.PlayerID("amy"), winner)
}

func TestCoordinator_EventRing(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "a")

	for i := 0; i < maxEvents+20; i++ {
		if err := c.AddRoomEvent("Ping", "a", fmt.Sprintf("ping %d", i), nil); err != nil {
			t.Fatal(err)
		}
	}
	events, err := c.GetRecentEvents(0)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, events, maxEvents)
	assert.Equal(t, fmt.Sprintf("ping %d", maxEvents+19), events[len(events)-1].Description)

	last5, err := c.GetRecentEvents(5)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, last5, 5)
	assert.Equal(t, events[len(events)-5:], last5)
}

func TestCoordinator_CloseRoom(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "a")
	join(t, c, "b")

	err := c.CloseRoom(context.Background(), "b", "done")
	assert.Equal(t, quorum.KindPermission, quorum.KindOf(err))

	if err := c.CloseRoom(context.Background(), "a", "done"); err != nil {
		t.Fatal(err)
	}
	assert.False(t, c.IsExists())

	// Closed is terminal; every operation reports NotFound from here on.
	_, err = c.JoinRoom(context.Background(), "c", "c", "", false, 1)
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))
	err = c.CloseRoom(context.Background(), "a", "again")
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))
}

func TestCoordinator_UpdatePlayerScore(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "a")

	if err := c.UpdatePlayerScore("a", 11); err != nil {
		t.Fatal(err)
	}
	info, _ := c.GetRoomInfo()
	assert.Equal(t, 11, info.Game.Scores["a"])
	assert.Equal(t, 11, info.Players[0].Score)

	err := c.UpdatePlayerScore("ghost", 1)
	assert.Equal(t, quorum.KindNotFound, quorum.KindOf(err))
}

func TestCoordinator_HasPermission(t *testing.T) {
	c := newTestCoordinator(t)
	createTestRoom(t, c, 4, Settings{})
	join(t, c, "a")
	join(t, c, "b")

	ok, err := c.HasPermission("a")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok)
	ok, err = c.HasPermission("b")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, ok)
}
