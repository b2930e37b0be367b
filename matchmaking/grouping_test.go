package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"quorum"
)

func TestEngine_MatchCheckLevelThresholdExpands(t *testing.T) {
	rooms := newFakeRoomService()
	e, clock := newTestEngine(rooms, pairSettings())

	if _, err := e.JoinQueue("p1", "", Criteria{}, PlayerData{}); quorum.KindOf(err) != quorum.KindNotFound {
		t.Fatal("expected not found for unnamed queue")
	}
	if err := e.CreateQueue("q1", "q1", "", "DM", Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p1", "q1", Criteria{Level: 10, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p2", "q1", Criteria{Level: 25, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}

	// Level gap 15 exceeds the base threshold of 10.
	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, n)
	assert.NotNil(t, e.GetPlayerRequest("p1"))

	// After the expansion deadline the oldest request doubles its
	// threshold to 20 and accepts the gap.
	clock.Advance(31 * time.Second)
	n, err = e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, n)
	assert.Nil(t, e.GetPlayerRequest("p1"))
	assert.Nil(t, e.GetPlayerRequest("p2"))
	assert.Len(t, rooms.created, 1)
}

func TestEngine_MatchCheckSkipsUnmatchablePivot(t *testing.T) {
	rooms := newFakeRoomService()
	e, _ := newTestEngine(rooms, pairSettings())
	if err := e.CreateQueue("q1", "q1", "", "DM", Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("loner", "q1", Criteria{Level: 100, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p1", "q1", Criteria{Level: 1, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p2", "q1", Criteria{Level: 2, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}

	// The oldest request cannot gather a group, so only it is skipped and
	// the two compatible players still match.
	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, n)
	assert.NotNil(t, e.GetPlayerRequest("loner"))
	assert.Nil(t, e.GetPlayerRequest("p1"))
	assert.Nil(t, e.GetPlayerRequest("p2"))
	assert.ElementsMatch(t, []quorum.PlayerID{"p1", "p2"}, rooms.joined[rooms.created[0]])
}

func TestEngine_MatchCheckGameModeMustMatch(t *testing.T) {
	e, _ := newTestEngine(newFakeRoomService(), pairSettings())
	if err := e.CreateQueue("q1", "q1", "", "", Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p1", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p2", "q1", Criteria{Level: 5, GameMode: "CTF"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}

	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, n)
}

func TestEngine_MatchCheckRegionPriority(t *testing.T) {
	rooms := newFakeRoomService()
	settings := pairSettings()
	settings.RegionPriority = true
	e, _ := newTestEngine(rooms, settings)
	if err := e.CreateQueue("q1", "q1", "", "DM", settings); err != nil {
		t.Fatal(err)
	}

	if _, err := e.JoinQueue("eu1", "q1", Criteria{Level: 5, GameMode: "DM", Region: "eu"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("us1", "q1", Criteria{Level: 5, GameMode: "DM", Region: "us"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, n)

	// A request without a region matches either side.
	if _, err := e.JoinQueue("any", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	n, err = e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []quorum.PlayerID{"eu1", "any"}, rooms.joined[rooms.created[0]])
}

func TestEngine_FinalizeRoomCreateFailureKeepsRequestsQueued(t *testing.T) {
	rooms := newFakeRoomService()
	rooms.failCreate = true
	e, _ := newTestEngine(rooms, pairSettings())
	if err := e.CreateQueue("q1", "q1", "", "DM", Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p1", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p2", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}

	_, err := e.TriggerMatchCheck(context.Background(), "q1")
	assert.Equal(t, quorum.KindInfrastructure, quorum.KindOf(err))

	// No side effects: both requests wait for the next pass.
	assert.Equal(t, RequestQueued, e.GetPlayerRequest("p1").Status)
	assert.Equal(t, RequestQueued, e.GetPlayerRequest("p2").Status)
	assert.Equal(t, uint64(0), e.GetStatistics().TotalMatchesMade)

	rooms.failCreate = false
	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, n)
}

func TestEngine_FinalizeJoinFailureRequeuesPlayer(t *testing.T) {
	rooms := newFakeRoomService()
	rooms.failJoin["p2"] = true
	e, _ := newTestEngine(rooms, pairSettings())
	if err := e.CreateQueue("q1", "q1", "", "DM", Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p1", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p2", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}

	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, n)

	// p1 is placed; p2 stays queued and is retried later.
	assert.Nil(t, e.GetPlayerRequest("p1"))
	r := e.GetPlayerRequest("p2")
	if r == nil {
		t.Fatal("expected p2 to stay queued")
	}
	assert.Equal(t, RequestQueued, r.Status)
	assert.Equal(t, uint64(1), e.GetStatistics().TotalPlayersMatched)
}

func TestEngine_AverageWaitTime(t *testing.T) {
	rooms := newFakeRoomService()
	e, clock := newTestEngine(rooms, pairSettings())
	if err := e.CreateQueue("q1", "q1", "", "DM", Settings{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p1", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinQueue("p2", "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)
	if _, err := e.TriggerMatchCheck(context.Background(), "q1"); err != nil {
		t.Fatal(err)
	}

	avg, err := e.GetQueueAverageWaitTime("q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 10*time.Second, avg)
	assert.Equal(t, 10*time.Second, e.GetStatistics().AverageWaitTime)
}

func TestEngine_GroupRespectsMaxPlayers(t *testing.T) {
	rooms := newFakeRoomService()
	e, _ := newTestEngine(rooms, Settings{
		MinPlayersPerMatch: 2,
		MaxPlayersPerMatch: 3,
		MaxLevelDifference: 10,
	})
	if err := e.CreateQueue("q1", "q1", "", "DM", Settings{}); err != nil {
		t.Fatal(err)
	}
	players := []quorum.PlayerID{"p1", "p2", "p3", "p4", "p5"}
	for _, p := range players {
		if _, err := e.JoinQueue(p, "q1", Criteria{Level: 5, GameMode: "DM"}, PlayerData{}); err != nil {
			t.Fatal(err)
		}
	}

	// One pass drains the queue into a full group of three, then the
	// remaining pair.
	n, err := e.TriggerMatchCheck(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, n)
	assert.Len(t, rooms.created, 2)
	assert.Len(t, rooms.joined[rooms.created[0]], 3)
	assert.Len(t, rooms.joined[rooms.created[1]], 2)
	count, err := e.GetQueuePlayerCount("q1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, count)
}
