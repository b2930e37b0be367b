package room

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"quorum"
	"quorum/runtime"
)

// Coordinator is the room actor. The runtime serializes every operation, so
// none of its state needs locking.
type Coordinator struct {
	id    quorum.RoomID
	log   *zap.Logger
	now   func() time.Time
	store quorum.StateStore

	st      *state
	version int64
}

// NewCoordinator builds an empty coordinator; the room itself comes into
// being with CreateRoom. store may be nil.
func NewCoordinator(store quorum.StateStore) *Coordinator {
	return &Coordinator{now: time.Now, store: store}
}

// Register installs the room actor kind on sys.
func Register(sys *runtime.System, store quorum.StateStore) {
	sys.RegisterKind(ActorKind, func(runtime.Ref) runtime.Actor {
		return NewCoordinator(store)
	})
}

func (c *Coordinator) Activate(ctx *runtime.Context) error {
	c.id = quorum.RoomID(ctx.Ref().Key)
	c.log = ctx.Logger()
	c.restore()
	return nil
}

func (c *Coordinator) Deactivate(*runtime.Context) {}

// room returns the live state, mapping absent and closed rooms to the same
// NotFound-class failure.
func (c *Coordinator) room() (*state, error) {
	if c.st == nil || c.st.Status == StatusClosed {
		return nil, quorum.NotFoundf("room %s does not exist", c.id)
	}
	return c.st, nil
}

func (c *Coordinator) player(id quorum.PlayerID) (*Player, error) {
	st, err := c.room()
	if err != nil {
		return nil, err
	}
	for _, p := range st.Players {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, quorum.NotFoundf("player %s is not in room %s", id, c.id)
}

func (c *Coordinator) members() []*Player {
	if c.st == nil {
		return nil
	}
	ms := make([]*Player, 0, len(c.st.Players))
	for _, p := range c.st.Players {
		if !p.Spectator {
			ms = append(ms, p)
		}
	}
	return ms
}

func (c *Coordinator) touch() {
	c.st.UpdatedAt = c.now()
}

func (c *Coordinator) addEvent(typ string, playerID quorum.PlayerID, desc string, data map[string]string) {
	c.st.Events = append(c.st.Events, Event{
		Type:        typ,
		PlayerID:    playerID,
		Description: desc,
		Data:        data,
		At:          c.now(),
	})
	if n := len(c.st.Events); n > maxEvents {
		c.st.Events = c.st.Events[n-maxEvents:]
	}
}

// restore reloads the last persisted snapshot so a room survives idle
// deactivation and host restarts. Best effort like persist.
func (c *Coordinator) restore() {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var st state
	version, found, err := c.store.Load(ctx, "room:"+c.id.String(), &st)
	if err != nil {
		c.log.Warn("room snapshot not loaded", zap.Error(err))
		return
	}
	if !found {
		return
	}
	c.st = &st
	c.version = version
}

// persist is best effort: a slow or absent store never fails the operation.
func (c *Coordinator) persist(ctx context.Context) {
	if c.store == nil || c.st == nil {
		return
	}
	version, err := c.store.Save(ctx, "room:"+c.id.String(), c.st, c.version)
	if err != nil {
		c.log.Warn("room snapshot not persisted", zap.Error(err))
		return
	}
	c.version = version
}

func (c *Coordinator) CreateRoom(ctx context.Context, creatorID quorum.PlayerID, name string, typ Type, maxPlayers int, settings Settings) error {
	if c.st != nil {
		return quorum.Conflictf("room %s already exists", c.id)
	}
	if creatorID == "" {
		return quorum.Validationf("creator id must not be empty")
	}
	if maxPlayers < 1 || maxPlayers > MaxRoomPlayers {
		return quorum.Validationf("max players must be in [1,%d], got %d", MaxRoomPlayers, maxPlayers)
	}
	if settings.MinPlayers <= 0 {
		settings.MinPlayers = 1
	}
	now := c.now()
	c.st = &state{
		ID:         c.id,
		Name:       name,
		CreatorID:  creatorID,
		Type:       typ,
		Status:     StatusWaiting,
		MaxPlayers: maxPlayers,
		Settings:   settings,
		Game:       GameState{Scores: make(map[quorum.PlayerID]int)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.addEvent(EventRoomCreated, creatorID, "room created", nil)
	c.log.Info("room created",
		zap.String("creator", creatorID.String()),
		zap.String("type", string(typ)),
		zap.Int("maxPlayers", maxPlayers))
	c.persist(ctx)
	return nil
}

// JoinRoom is idempotent: a player already present gets their existing
// membership back instead of an error.
func (c *Coordinator) JoinRoom(ctx context.Context, playerID quorum.PlayerID, displayName, password string, spectator bool, level int) (Player, error) {
	st, err := c.room()
	if err != nil {
		return Player{}, err
	}
	if playerID == "" {
		return Player{}, quorum.Validationf("player id must not be empty")
	}
	for _, p := range st.Players {
		if p.ID == playerID {
			return *p, nil
		}
	}
	if st.Settings.Password != "" && st.Settings.Password != password {
		return Player{}, quorum.Permissionf("wrong room password")
	}
	if st.Status == StatusInGame && !spectator {
		return Player{}, quorum.InvalidStatef("game already in progress")
	}
	if !spectator && len(c.members()) >= st.MaxPlayers {
		return Player{}, quorum.Capacityf("room %s is full (%d/%d)", c.id, len(c.members()), st.MaxPlayers)
	}

	role := RoleMember
	if !spectator && len(c.members()) == 0 {
		role = RoleLeader
	}
	p := &Player{
		ID:          playerID,
		DisplayName: displayName,
		Role:        role,
		Spectator:   spectator,
		Level:       level,
		JoinedAt:    c.now(),
	}
	st.Players = append(st.Players, p)
	c.touch()
	c.addEvent(EventPlayerJoined, playerID, "player joined", nil)
	c.persist(ctx)
	return *p, nil
}

func (c *Coordinator) LeaveRoom(ctx context.Context, playerID quorum.PlayerID, reason string) error {
	p, err := c.player(playerID)
	if err != nil {
		return err
	}
	c.removePlayer(p)
	c.touch()
	if !p.Spectator {
		c.addEvent(EventPlayerLeft, playerID, reason, nil)
		c.afterMemberRemoved(p)
	}
	c.persist(ctx)
	return nil
}

func (c *Coordinator) removePlayer(target *Player) {
	players := c.st.Players[:0]
	for _, p := range c.st.Players {
		if p.ID != target.ID {
			players = append(players, p)
		}
	}
	c.st.Players = players
	delete(c.st.Game.Scores, target.ID)
}

// afterMemberRemoved promotes a new leader or closes an emptied room.
// Promotion goes to the longest-joined remaining member.
func (c *Coordinator) afterMemberRemoved(removed *Player) {
	members := c.members()
	if len(members) == 0 {
		c.close("", "last player left")
		return
	}
	if removed.Role != RoleLeader {
		return
	}
	next := members[0]
	for _, m := range members[1:] {
		if m.JoinedAt.Before(next.JoinedAt) {
			next = m
		}
	}
	next.Role = RoleLeader
	c.addEvent(EventLeaderChanged, next.ID, "leader left, promoted longest-joined member", nil)
	c.log.Info("leader promoted", zap.String("player", next.ID.String()))
}

func (c *Coordinator) close(operator quorum.PlayerID, reason string) {
	c.addEvent(EventRoomClosed, operator, reason, nil)
	c.st.Status = StatusClosed
	c.touch()
	c.log.Info("room closed", zap.String("reason", reason))
}

func (c *Coordinator) SetPlayerReady(ctx context.Context, playerID quorum.PlayerID, ready bool) error {
	p, err := c.player(playerID)
	if err != nil {
		return err
	}
	if p.Spectator {
		return quorum.Validationf("spectators have no ready state")
	}
	if c.st.Status != StatusWaiting && c.st.Status != StatusReady {
		return quorum.InvalidStatef("cannot change ready state while %s", c.st.Status)
	}
	p.Ready = ready
	c.refreshReadiness()
	c.touch()
	c.addEvent(EventPlayerReady, playerID, "ready state changed", nil)
	c.persist(ctx)
	return nil
}

func (c *Coordinator) refreshReadiness() {
	members := c.members()
	all := len(members) >= c.st.Settings.MinPlayers
	for _, m := range members {
		if !m.Ready {
			all = false
			break
		}
	}
	if all {
		c.st.Status = StatusReady
	} else if c.st.Status == StatusReady {
		c.st.Status = StatusWaiting
	}
}

func (c *Coordinator) KickPlayer(ctx context.Context, operatorID, targetID quorum.PlayerID, reason string) error {
	op, err := c.player(operatorID)
	if err != nil {
		return err
	}
	if op.Role != RoleLeader && op.Role != RoleAdmin {
		return quorum.Permissionf("player %s may not kick", operatorID)
	}
	if operatorID == targetID {
		return quorum.Validationf("cannot kick yourself")
	}
	target, err := c.player(targetID)
	if err != nil {
		return err
	}
	c.removePlayer(target)
	c.touch()
	c.addEvent(EventPlayerKicked, targetID, reason, map[string]string{"operator": operatorID.String()})
	if !target.Spectator {
		c.afterMemberRemoved(target)
	}
	c.persist(ctx)
	return nil
}

func (c *Coordinator) UpdateRoomSettings(ctx context.Context, playerID quorum.PlayerID, settings Settings) error {
	p, err := c.player(playerID)
	if err != nil {
		return err
	}
	if p.Role != RoleLeader && p.Role != RoleAdmin {
		return quorum.Permissionf("player %s may not change settings", playerID)
	}
	if settings.MinPlayers <= 0 {
		settings.MinPlayers = 1
	}
	c.st.Settings = settings
	c.refreshReadiness()
	c.touch()
	c.addEvent(EventSettingsUpdated, playerID, "settings updated", nil)
	c.persist(ctx)
	return nil
}

// CanStartGame reports whether a start attempt would be accepted without
// forcing.
func (c *Coordinator) CanStartGame() (bool, error) {
	st, err := c.room()
	if err != nil {
		return false, err
	}
	if st.Status != StatusWaiting && st.Status != StatusReady {
		return false, nil
	}
	members := c.members()
	if len(members) < st.Settings.MinPlayers {
		return false, nil
	}
	if st.Settings.AutoStart {
		return true, nil
	}
	for _, m := range members {
		if !m.Ready {
			return false, nil
		}
	}
	return true, nil
}

func (c *Coordinator) StartGame(ctx context.Context, playerID quorum.PlayerID, force bool) error {
	p, err := c.player(playerID)
	if err != nil {
		return err
	}
	if p.Role != RoleLeader && p.Role != RoleAdmin {
		return quorum.Permissionf("player %s may not start the game", playerID)
	}
	if c.st.Status == StatusInGame {
		return quorum.InvalidStatef("game already in progress")
	}
	if !force {
		ok, err := c.CanStartGame()
		if err != nil {
			return err
		}
		if !ok {
			return quorum.InvalidStatef("room is not ready to start")
		}
	}
	for _, m := range c.st.Players {
		m.Score = 0
	}
	c.st.Game = GameState{Scores: make(map[quorum.PlayerID]int)}
	c.st.Status = StatusInGame
	now := c.now()
	c.st.GameStartTime = &now
	c.touch()
	c.addEvent(EventGameStarted, playerID, "game started", nil)
	c.log.Info("game started", zap.Bool("forced", force))
	c.persist(ctx)
	return nil
}

// EndGame merges the final scores and picks the winner: highest score, ties
// broken by lowest player id so the result is deterministic.
func (c *Coordinator) EndGame(ctx context.Context, playerID quorum.PlayerID, finalScores map[quorum.PlayerID]int) (quorum.PlayerID, error) {
	p, err := c.player(playerID)
	if err != nil {
		return "", err
	}
	if p.Role != RoleLeader && p.Role != RoleAdmin {
		return "", quorum.Permissionf("player %s may not end the game", playerID)
	}
	if c.st.Status != StatusInGame {
		return "", quorum.InvalidStatef("no game in progress")
	}
	for id, score := range finalScores {
		c.st.Game.Scores[id] = score
		for _, m := range c.st.Players {
			if m.ID == id {
				m.Score = score
			}
		}
	}

	var winner quorum.PlayerID
	ids := make([]quorum.PlayerID, 0, len(c.st.Game.Scores))
	for id := range c.st.Game.Scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	best := 0
	for _, id := range ids {
		if winner == "" || c.st.Game.Scores[id] > best {
			winner = id
			best = c.st.Game.Scores[id]
		}
	}
	c.st.Game.Winner = winner

	for _, m := range c.st.Players {
		m.Ready = false
	}
	c.st.Status = StatusFinished
	now := c.now()
	c.st.GameEndTime = &now
	c.touch()
	c.addEvent(EventGameEnded, winner, "game ended", nil)
	c.log.Info("game ended", zap.String("winner", winner.String()))
	c.persist(ctx)
	return winner, nil
}

func (c *Coordinator) UpdatePlayerPosition(playerID quorum.PlayerID, pos Position) error {
	p, err := c.player(playerID)
	if err != nil {
		return err
	}
	p.Position = pos
	c.touch()
	return nil
}

func (c *Coordinator) UpdatePlayerScore(playerID quorum.PlayerID, score int) error {
	p, err := c.player(playerID)
	if err != nil {
		return err
	}
	p.Score = score
	c.st.Game.Scores[playerID] = score
	c.touch()
	return nil
}

func (c *Coordinator) AddRoomEvent(typ string, playerID quorum.PlayerID, description string, data map[string]string) error {
	if _, err := c.room(); err != nil {
		return err
	}
	if typ == "" {
		return quorum.Validationf("event type must not be empty")
	}
	c.addEvent(typ, playerID, description, data)
	c.touch()
	return nil
}

func (c *Coordinator) GetRecentEvents(count int) ([]Event, error) {
	st, err := c.room()
	if err != nil {
		return nil, err
	}
	if count <= 0 || count > len(st.Events) {
		count = len(st.Events)
	}
	events := make([]Event, count)
	copy(events, st.Events[len(st.Events)-count:])
	return events, nil
}

func (c *Coordinator) CloseRoom(ctx context.Context, operatorID quorum.PlayerID, reason string) error {
	if _, err := c.room(); err != nil {
		return err
	}
	if operatorID != "" {
		op, err := c.player(operatorID)
		if err != nil {
			return err
		}
		if op.Role != RoleLeader && op.Role != RoleAdmin {
			return quorum.Permissionf("player %s may not close the room", operatorID)
		}
	}
	c.close(operatorID, reason)
	c.persist(ctx)
	return nil
}

// HasPermission reports whether the player holds a management role.
func (c *Coordinator) HasPermission(playerID quorum.PlayerID) (bool, error) {
	p, err := c.player(playerID)
	if err != nil {
		return false, err
	}
	return p.Role == RoleLeader || p.Role == RoleAdmin, nil
}

func (c *Coordinator) IsExists() bool {
	return c.st != nil && c.st.Status != StatusClosed
}

func (c *Coordinator) GetPlayers() ([]Player, error) {
	st, err := c.room()
	if err != nil {
		return nil, err
	}
	players := make([]Player, len(st.Players))
	for i, p := range st.Players {
		players[i] = *p
	}
	return players, nil
}

func (c *Coordinator) GetRoomInfo() (Info, error) {
	st, err := c.room()
	if err != nil {
		return Info{}, err
	}
	players := make([]Player, len(st.Players))
	for i, p := range st.Players {
		players[i] = *p
	}
	scores := make(map[quorum.PlayerID]int, len(st.Game.Scores))
	for id, s := range st.Game.Scores {
		scores[id] = s
	}
	return Info{
		ID:                 st.ID,
		Name:               st.Name,
		CreatorID:          st.CreatorID,
		Type:               st.Type,
		Status:             st.Status,
		MaxPlayers:         st.MaxPlayers,
		CurrentPlayerCount: len(players),
		Players:            players,
		Settings:           st.Settings,
		Game:               GameState{Scores: scores, Winner: st.Game.Winner},
		CreatedAt:          st.CreatedAt,
		UpdatedAt:          st.UpdatedAt,
		GameStartTime:      st.GameStartTime,
		GameEndTime:        st.GameEndTime,
	}, nil
}

func (c *Coordinator) GetRoomBrief() (Brief, error) {
	st, err := c.room()
	if err != nil {
		return Brief{}, err
	}
	return Brief{
		ID:                 st.ID,
		Name:               st.Name,
		Type:               st.Type,
		Status:             st.Status,
		CurrentPlayerCount: len(st.Players),
		MaxPlayers:         st.MaxPlayers,
		HasPassword:        st.Settings.Password != "",
		GameMode:           st.Settings.GameMode,
	}, nil
}
