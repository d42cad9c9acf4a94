package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Ehr051/MAIRA-sub004/internal/model"
)

// mockSessionRepo implements repository.SessionRepository for testing.
type mockSessionRepo struct {
	sessions map[string]*model.Session
	players  map[string][]model.SessionPlayer
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string]*model.Session),
		players:  make(map[string][]model.SessionPlayer),
	}
}

func (m *mockSessionRepo) Create(_ context.Context, name, creatorID, scenario, turnDur string) (*model.Session, error) {
	s := &model.Session{
		ID:           fmt.Sprintf("session-%d", len(m.sessions)+1),
		Name:         name,
		CreatorID:    creatorID,
		Status:       "waiting",
		Scenario:     scenario,
		TurnDuration: turnDur,
		CreatedAt:    time.Now(),
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Players = m.players[id]
	return &cp, nil
}

func (m *mockSessionRepo) ListOpen(_ context.Context) ([]model.Session, error) {
	return m.listByStatus("waiting"), nil
}

func (m *mockSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	return m.listByStatus("active"), nil
}

func (m *mockSessionRepo) ListFinished(_ context.Context) ([]model.Session, error) {
	return m.listByStatus("finished"), nil
}

func (m *mockSessionRepo) listByStatus(status string) []model.Session {
	var result []model.Session
	for _, s := range m.sessions {
		if s.Status == status {
			cp := *s
			cp.Players = m.players[s.ID]
			result = append(result, cp)
		}
	}
	return result
}

func (m *mockSessionRepo) ListByUser(_ context.Context, userID string) ([]model.Session, error) {
	seen := make(map[string]bool)
	var result []model.Session
	for sessionID, players := range m.players {
		for _, p := range players {
			if p.UserID == userID && !seen[sessionID] {
				if s, ok := m.sessions[sessionID]; ok {
					cp := *s
					cp.Players = players
					result = append(result, cp)
					seen[sessionID] = true
				}
			}
		}
	}
	return result, nil
}

func (m *mockSessionRepo) Join(_ context.Context, sessionID, userID, team string) error {
	m.players[sessionID] = append(m.players[sessionID], model.SessionPlayer{
		SessionID: sessionID,
		UserID:    userID,
		Team:      team,
		JoinedAt:  time.Now(),
	})
	return nil
}

func (m *mockSessionRepo) ListPlayers(_ context.Context, sessionID string) ([]model.SessionPlayer, error) {
	return m.players[sessionID], nil
}

func (m *mockSessionRepo) PlayerCount(_ context.Context, sessionID string) (int, error) {
	return len(m.players[sessionID]), nil
}

func (m *mockSessionRepo) SetDirector(_ context.Context, sessionID, userID string) error {
	players := m.players[sessionID]
	for i := range players {
		players[i].IsDirector = players[i].UserID == userID
	}
	m.players[sessionID] = players
	return nil
}

func (m *mockSessionRepo) UpdatePlayerTeam(_ context.Context, sessionID, userID, team string) error {
	players := m.players[sessionID]
	for i, p := range players {
		if p.UserID == userID {
			players[i].Team = team
			return nil
		}
	}
	return fmt.Errorf("player not found")
}

func (m *mockSessionRepo) SetStarted(_ context.Context, sessionID string) error {
	if s, ok := m.sessions[sessionID]; ok {
		s.Status = "active"
		now := time.Now()
		s.StartedAt = &now
	}
	return nil
}

func (m *mockSessionRepo) SetFinished(_ context.Context, sessionID string) error {
	if s, ok := m.sessions[sessionID]; ok {
		s.Status = "finished"
		now := time.Now()
		s.FinishedAt = &now
	}
	return nil
}

func (m *mockSessionRepo) Delete(_ context.Context, sessionID string) error {
	delete(m.sessions, sessionID)
	delete(m.players, sessionID)
	return nil
}

// mockUserRepo implements repository.UserRepository for testing.
type mockUserRepo struct {
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			return u, nil
		}
	}
	m.seq++
	u := &model.User{
		ID:          fmt.Sprintf("user-%d", m.seq),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

// mockTurnRepo implements repository.TurnRepository for testing.
type mockTurnRepo struct {
	turns  map[string]*model.TurnRecord
	orders map[string][]model.OrderRecord
	seq    int
}

func newMockTurnRepo() *mockTurnRepo {
	return &mockTurnRepo{
		turns:  make(map[string]*model.TurnRecord),
		orders: make(map[string][]model.OrderRecord),
	}
}

func (m *mockTurnRepo) CreateTurn(_ context.Context, sessionID string, turn int, phase, subphase string, stateBefore json.RawMessage, deadline time.Time) (*model.TurnRecord, error) {
	m.seq++
	t := &model.TurnRecord{
		ID:          fmt.Sprintf("turn-%d", m.seq),
		SessionID:   sessionID,
		Turn:        turn,
		Phase:       phase,
		Subphase:    subphase,
		StateBefore: stateBefore,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	m.turns[t.ID] = t
	return t, nil
}

func (m *mockTurnRepo) CurrentTurn(_ context.Context, sessionID string) (*model.TurnRecord, error) {
	var latest *model.TurnRecord
	for _, t := range m.turns {
		if t.SessionID == sessionID && t.CompletedAt == nil {
			if latest == nil || t.Turn > latest.Turn {
				latest = t
			}
		}
	}
	return latest, nil
}

func (m *mockTurnRepo) ListTurns(_ context.Context, sessionID string) ([]model.TurnRecord, error) {
	var result []model.TurnRecord
	for _, t := range m.turns {
		if t.SessionID == sessionID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTurnRepo) CompleteTurn(_ context.Context, turnID string, stateAfter json.RawMessage) error {
	if t, ok := m.turns[turnID]; ok {
		t.StateAfter = stateAfter
		now := time.Now()
		t.CompletedAt = &now
	}
	return nil
}

func (m *mockTurnRepo) SaveOrders(_ context.Context, orders []model.OrderRecord) error {
	for _, o := range orders {
		m.orders[o.TurnID] = append(m.orders[o.TurnID], o)
	}
	return nil
}

func (m *mockTurnRepo) OrdersByTurn(_ context.Context, turnID string) ([]model.OrderRecord, error) {
	return m.orders[turnID], nil
}

func (m *mockTurnRepo) ListExpired(_ context.Context) ([]model.TurnRecord, error) {
	var result []model.TurnRecord
	for _, t := range m.turns {
		if t.CompletedAt == nil && time.Now().After(t.Deadline) {
			result = append(result, *t)
		}
	}
	return result, nil
}

// mockCache implements repository.SessionCache for testing.
type mockCache struct {
	snapshots map[string]json.RawMessage
	ready     map[string]map[string]bool
	timers    map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots: make(map[string]json.RawMessage),
		ready:     make(map[string]map[string]bool),
		timers:    make(map[string]time.Time),
	}
}

func (c *mockCache) SetSnapshot(_ context.Context, sessionID string, snapshot json.RawMessage) error {
	c.snapshots[sessionID] = snapshot
	return nil
}

func (c *mockCache) GetSnapshot(_ context.Context, sessionID string) (json.RawMessage, error) {
	return c.snapshots[sessionID], nil
}

func (c *mockCache) MarkReady(_ context.Context, sessionID, playerID string) error {
	if c.ready[sessionID] == nil {
		c.ready[sessionID] = make(map[string]bool)
	}
	c.ready[sessionID][playerID] = true
	return nil
}

func (c *mockCache) UnmarkReady(_ context.Context, sessionID, playerID string) error {
	if c.ready[sessionID] != nil {
		delete(c.ready[sessionID], playerID)
	}
	return nil
}

func (c *mockCache) ReadyCount(_ context.Context, sessionID string) (int64, error) {
	return int64(len(c.ready[sessionID])), nil
}

func (c *mockCache) ReadyPlayers(_ context.Context, sessionID string) ([]string, error) {
	var result []string
	for p := range c.ready[sessionID] {
		result = append(result, p)
	}
	return result, nil
}

func (c *mockCache) ClearReady(_ context.Context, sessionID string) error {
	delete(c.ready, sessionID)
	return nil
}

func (c *mockCache) SetTurnTimer(_ context.Context, sessionID string, deadline time.Time) error {
	c.timers[sessionID] = deadline
	return nil
}

func (c *mockCache) ClearTurnTimer(_ context.Context, sessionID string) error {
	delete(c.timers, sessionID)
	return nil
}

func (c *mockCache) DeleteSessionData(_ context.Context, sessionID string) error {
	delete(c.snapshots, sessionID)
	delete(c.ready, sessionID)
	delete(c.timers, sessionID)
	return nil
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	sessionID string
	eventType string
	data      any
}

func (b *recordingBroadcaster) BroadcastSessionEvent(sessionID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{sessionID: sessionID, eventType: eventType, data: data})
}

func (b *recordingBroadcaster) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]string, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.eventType)
	}
	return types
}

func (b *recordingBroadcaster) countType(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}
