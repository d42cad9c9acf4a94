package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ehr051/MAIRA-sub004/internal/eventbus"
	"github.com/Ehr051/MAIRA-sub004/internal/game"
	"github.com/Ehr051/MAIRA-sub004/internal/model"
	"github.com/Ehr051/MAIRA-sub004/internal/repository"
)

var ErrMatchNotFound = errors.New("no live match for session")

// tickInterval drives the live match countdowns.
const tickInterval = time.Second

// MatchService owns the live state of every active session: one facade
// per match, ticked centrally, with mutations funneled through Dispatch.
type MatchService struct {
	sessionRepo repository.SessionRepository
	turnRepo    repository.TurnRepository
	cache       repository.SessionCache
	broadcaster Broadcaster

	mu      sync.RWMutex
	matches map[string]*liveMatch
}

// liveMatch pairs a facade with the lock that serializes access to it.
// The facade itself is single-writer; everything that touches it goes
// through this mutex.
type liveMatch struct {
	mu        sync.Mutex
	sessionID string
	facade    *game.Facade

	turnDuration time.Duration
	turnID       string // current turn record in Postgres
	dirty        bool
	finished     bool
}

// NewMatchService creates a MatchService.
func NewMatchService(
	sessionRepo repository.SessionRepository,
	turnRepo repository.TurnRepository,
	cache repository.SessionCache,
	broadcaster Broadcaster,
) *MatchService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &MatchService{
		sessionRepo: sessionRepo,
		turnRepo:    turnRepo,
		cache:       cache,
		broadcaster: broadcaster,
		matches:     make(map[string]*liveMatch),
	}
}

// buildMatch constructs the facade and bus wiring for a session without
// persisting anything.
func (s *MatchService) buildMatch(session *model.Session) (*liveMatch, error) {
	roster := rosterFromPlayers(session.Players)
	dur := parseDuration(session.TurnDuration)

	reg := game.NewRegistry()
	reg.RegisterInstance(game.KindRenderer, &broadcastRenderer{sessionID: session.ID, b: s.broadcaster})
	reg.RegisterInstance(game.KindNotifier, &broadcastNotifier{sessionID: session.ID, b: s.broadcaster})

	facade, err := game.New(game.Config{
		Mode:                game.ModeLocal,
		Players:             roster,
		TurnDurationSeconds: dur.Seconds(),
		Registry:            reg,
	})
	if err != nil {
		return nil, fmt.Errorf("build session facade: %w", err)
	}

	m := &liveMatch{sessionID: session.ID, facade: facade, turnDuration: dur}
	s.wireMatch(m)
	return m, nil
}

// StartMatch builds the live facade for a freshly started session and
// stores its initial state.
func (s *MatchService) StartMatch(ctx context.Context, session *model.Session) error {
	m, err := s.buildMatch(session)
	if err != nil {
		return err
	}
	facade := m.facade
	dur := m.turnDuration

	snap := facade.Snapshot()
	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal initial snapshot: %w", err)
	}
	record, err := s.turnRepo.CreateTurn(ctx, session.ID, snap.Turn, string(snap.Phase), string(snap.Subphase), stateJSON, time.Now().Add(dur))
	if err != nil {
		return fmt.Errorf("create initial turn record: %w", err)
	}
	m.turnID = record.ID

	if err := s.cache.SetSnapshot(ctx, session.ID, stateJSON); err != nil {
		return fmt.Errorf("cache initial snapshot: %w", err)
	}
	if err := s.cache.SetTurnTimer(ctx, session.ID, time.Now().Add(dur)); err != nil {
		return fmt.Errorf("set turn timer: %w", err)
	}

	s.mu.Lock()
	s.matches[session.ID] = m
	s.mu.Unlock()

	log.Info().Str("sessionId", session.ID).Int("players", len(session.Players)).
		Dur("turnDuration", dur).Msg("Live match started")
	return nil
}

// wireMatch attaches the server-side bus subscriptions: event relay to
// connected clients, snapshot dirty-marking, and turn record rollover.
// Handlers run synchronously inside the match lock.
func (s *MatchService) wireMatch(m *liveMatch) {
	bus := m.facade.Bus()

	bus.SubscribeAll(func(eventbus.Event) { m.dirty = true })

	bus.Subscribe(eventbus.TypeClockUpdated, func(e eventbus.Event) {
		ev := e.(game.ClockUpdatedEvent)
		s.broadcaster.BroadcastSessionEvent(m.sessionID, "clock", map[string]any{
			"turn":              ev.Turn,
			"remaining_seconds": ev.RemainingSeconds,
		})
	})
	bus.Subscribe(eventbus.TypeAllPlayersReady, func(e eventbus.Event) {
		ev := e.(game.AllPlayersReadyEvent)
		s.broadcaster.BroadcastSessionEvent(m.sessionID, "all_players_ready", map[string]any{
			"turn": ev.Turn,
		})
	})
	bus.Subscribe(eventbus.TypeUnitDeployed, func(e eventbus.Event) {
		ev := e.(game.UnitDeployedEvent)
		s.broadcaster.BroadcastSessionEvent(m.sessionID, "unit_deployed", ev)
	})
	bus.Subscribe(eventbus.TypeOrdersValidated, func(e eventbus.Event) {
		ev := e.(game.OrdersValidatedEvent)
		s.broadcaster.BroadcastSessionEvent(m.sessionID, "orders_validated", ev)
	})

	bus.Subscribe(eventbus.TypeTurnChanged, func(e eventbus.Event) {
		ev := e.(game.TurnChangedEvent)
		s.rolloverTurnRecord(m, ev)
	})
	bus.Subscribe(eventbus.TypeSessionEnded, func(e eventbus.Event) {
		ev := e.(game.SessionEndedEvent)
		s.finishSession(m, ev.Turn)
	})
}

// rolloverTurnRecord completes the current turn record and opens the
// next one. Persistence failures are logged, never allowed to block the
// in-memory game.
func (s *MatchService) rolloverTurnRecord(m *liveMatch, ev game.TurnChangedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := m.facade.Snapshot()
	stateJSON, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to marshal snapshot for turn record")
		return
	}

	if m.turnID != "" {
		if err := s.turnRepo.CompleteTurn(ctx, m.turnID, stateJSON); err != nil {
			log.Error().Err(err).Str("sessionId", m.sessionID).Str("turnId", m.turnID).Msg("Failed to complete turn record")
		}
		if orders := orderRecords(m.turnID, snap); len(orders) > 0 {
			if err := s.turnRepo.SaveOrders(ctx, orders); err != nil {
				log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to save turn orders")
			}
		}
	}

	deadline := time.Now().Add(m.turnDuration)
	record, err := s.turnRepo.CreateTurn(ctx, m.sessionID, ev.Turn, string(snap.Phase), string(snap.Subphase), stateJSON, deadline)
	if err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to create next turn record")
		return
	}
	m.turnID = record.ID

	if err := s.cache.SetTurnTimer(ctx, m.sessionID, deadline); err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to reset turn timer")
	}
}

// finishSession marks the session finished once the facade reaches its
// terminal state.
func (s *MatchService) finishSession(m *liveMatch, finalTurn int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info().Str("sessionId", m.sessionID).Int("finalTurn", finalTurn).Msg("Session reached end state")
	if err := s.sessionRepo.SetFinished(ctx, m.sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to mark session finished")
	}
	if err := s.cache.DeleteSessionData(ctx, m.sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to clear session cache")
	}
	s.broadcaster.BroadcastSessionEvent(m.sessionID, "session_ended", map[string]any{
		"final_turn": finalTurn,
	})

	m.finished = true
	s.mu.Lock()
	delete(s.matches, m.sessionID)
	s.mu.Unlock()
}

func (s *MatchService) match(sessionID string) (*liveMatch, error) {
	s.mu.RLock()
	m, ok := s.matches[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// Dispatch applies a player action to a live match and persists the
// resulting snapshot.
func (s *MatchService) Dispatch(ctx context.Context, sessionID string, a game.Action) error {
	m, err := s.match(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.facade.DispatchAction(a); err != nil {
		return err
	}
	s.persistSnapshot(ctx, m)
	return nil
}

// State returns the current snapshot of a live match.
func (s *MatchService) State(sessionID string) (game.Snapshot, error) {
	m, err := s.match(sessionID)
	if err != nil {
		return game.Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facade.GetState(), nil
}

// ValidateOrders runs the order validation pass for one team.
func (s *MatchService) ValidateOrders(ctx context.Context, sessionID, team string) (game.OrderCounts, error) {
	m, err := s.match(sessionID)
	if err != nil {
		return game.OrderCounts{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts, err := m.facade.ValidateOrders(ctx, team)
	if err != nil {
		return game.OrderCounts{}, err
	}
	s.persistSnapshot(ctx, m)
	return counts, nil
}

// AbortToPreparation resets a live match back to the setup stage on the
// director's order.
func (s *MatchService) AbortToPreparation(ctx context.Context, sessionID, playerID string) error {
	m, err := s.match(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.facade.AbortToPreparation(playerID); err != nil {
		return err
	}
	if err := s.cache.ClearReady(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to clear ready set on abort")
	}
	if err := s.cache.ClearTurnTimer(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to clear turn timer on abort")
	}
	s.broadcaster.BroadcastSessionEvent(sessionID, "session_aborted", map[string]any{
		"by": playerID,
	})
	s.persistSnapshot(ctx, m)
	return nil
}

// HandleTurnExpiry is invoked by the timer listener when a session's
// turn timer key expires. The tick loop normally advances the turn
// first; this path only acts when the in-memory countdown is stalled,
// e.g. right after a restart.
func (s *MatchService) HandleTurnExpiry(ctx context.Context, sessionID string) error {
	m, err := s.match(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.facade.Turns().Started() {
		return nil
	}
	if m.facade.Turns().Remaining() > 0 {
		log.Debug().Str("sessionId", sessionID).Float64("remaining", m.facade.Turns().Remaining()).
			Msg("Turn timer expired but countdown still running, skipping")
		return nil
	}
	if err := m.facade.DispatchAction(game.Action{Type: game.ActionEndTurn}); err != nil {
		return fmt.Errorf("advance expired turn: %w", err)
	}
	s.persistSnapshot(ctx, m)
	return nil
}

// Run drives the countdowns of every live match until the context is
// cancelled.
func (s *MatchService) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", tickInterval).Msg("Match tick loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Match tick loop stopped")
			return
		case <-ticker.C:
			s.tickAll(ctx)
		}
	}
}

func (s *MatchService) tickAll(ctx context.Context) {
	s.mu.RLock()
	matches := make([]*liveMatch, 0, len(s.matches))
	for _, m := range s.matches {
		matches = append(matches, m)
	}
	s.mu.RUnlock()

	for _, m := range matches {
		m.mu.Lock()
		if m.facade.Turns().Started() {
			m.facade.Tick(tickInterval.Seconds())
		}
		if m.dirty {
			s.persistSnapshot(ctx, m)
		}
		m.mu.Unlock()
	}
}

// persistSnapshot writes the current snapshot to the cache and clears
// the dirty flag. Caller holds the match lock.
func (s *MatchService) persistSnapshot(ctx context.Context, m *liveMatch) {
	m.dirty = false
	if m.finished {
		return
	}
	stateJSON, err := json.Marshal(m.facade.Snapshot())
	if err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to marshal snapshot")
		return
	}
	if err := s.cache.SetSnapshot(ctx, m.sessionID, stateJSON); err != nil {
		log.Error().Err(err).Str("sessionId", m.sessionID).Msg("Failed to persist snapshot")
	}
}

// StopMatch tears down a live match when the creator stops the session.
func (s *MatchService) StopMatch(ctx context.Context, sessionID string) error {
	m, err := s.match(sessionID)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return nil
		}
		return err
	}
	s.broadcaster.BroadcastSessionEvent(sessionID, "session_ended", map[string]any{
		"reason": "stopped",
	})
	if err := s.cache.DeleteSessionData(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session cache: %w", err)
	}

	s.mu.Lock()
	delete(s.matches, m.sessionID)
	s.mu.Unlock()
	return nil
}

// RecoverActiveSessions rehydrates live matches for every active session
// after a restart, from the cached snapshot or the latest turn record.
func (s *MatchService) RecoverActiveSessions(ctx context.Context) error {
	sessions, err := s.sessionRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		log.Info().Msg("No active sessions to recover")
		return nil
	}
	log.Info().Int("count", len(sessions)).Msg("Recovering active sessions after restart")

	for i := range sessions {
		session := &sessions[i]
		if err := s.recoverSession(ctx, session); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("Failed to recover session")
		}
	}
	return nil
}

func (s *MatchService) recoverSession(ctx context.Context, session *model.Session) error {
	stateJSON, err := s.cache.GetSnapshot(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("get cached snapshot: %w", err)
	}
	record, err := s.turnRepo.CurrentTurn(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("get current turn: %w", err)
	}
	if stateJSON == nil && record != nil {
		stateJSON = record.StateBefore
	}
	if stateJSON == nil {
		return fmt.Errorf("no recoverable state")
	}

	var snap game.Snapshot
	if err := json.Unmarshal(stateJSON, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	m, err := s.buildMatch(session)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.facade.Restore(snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if record != nil {
		m.turnID = record.ID
		if time.Now().Before(record.Deadline) {
			if err := s.cache.SetTurnTimer(ctx, session.ID, record.Deadline); err != nil {
				log.Warn().Err(err).Str("sessionId", session.ID).Msg("Failed to restore turn timer")
			}
		}
	}
	s.persistSnapshot(ctx, m)

	s.mu.Lock()
	s.matches[session.ID] = m
	s.mu.Unlock()

	log.Info().Str("sessionId", session.ID).Str("phase", string(snap.Phase)).
		Str("subphase", string(snap.Subphase)).Int("turn", snap.Turn).
		Msg("Recovered session state")
	return nil
}

// Turns returns the persisted turn history for a session.
func (s *MatchService) Turns(ctx context.Context, sessionID string) ([]model.TurnRecord, error) {
	return s.turnRepo.ListTurns(ctx, sessionID)
}

// TurnOrders returns the orders recorded against one turn.
func (s *MatchService) TurnOrders(ctx context.Context, turnID string) ([]model.OrderRecord, error) {
	return s.turnRepo.OrdersByTurn(ctx, turnID)
}

// rosterFromPlayers converts lobby membership rows into the facade's
// roster, preserving join order.
func rosterFromPlayers(players []model.SessionPlayer) []*game.Player {
	roster := make([]*game.Player, 0, len(players))
	for _, p := range players {
		roster = append(roster, &game.Player{
			ID:         p.UserID,
			Team:       p.Team,
			IsDirector: p.IsDirector,
			IsCreator:  p.IsCreator,
		})
	}
	return roster
}

// orderRecords flattens a snapshot's order queues for after-action
// persistence.
func orderRecords(turnID string, snap game.Snapshot) []model.OrderRecord {
	var records []model.OrderRecord
	for team, units := range snap.OrderQueues {
		for unitID, orders := range units {
			for _, o := range orders {
				records = append(records, model.OrderRecord{
					TurnID:          turnID,
					Team:            team,
					UnitID:          unitID,
					Kind:            string(o.Kind),
					DurationSeconds: o.DurationSeconds,
					StartSeconds:    o.StartSeconds,
					State:           string(o.State),
				})
			}
		}
	}
	return records
}

// broadcastRenderer relays facade display callbacks to connected clients.
type broadcastRenderer struct {
	sessionID string
	b         Broadcaster
}

func (r *broadcastRenderer) ShowPhase(phase game.Phase, subphase game.Subphase) {
	r.b.BroadcastSessionEvent(r.sessionID, "phase_changed", map[string]any{
		"phase":    string(phase),
		"subphase": string(subphase),
	})
}

func (r *broadcastRenderer) HighlightActivePlayer(playerID string) {
	r.b.BroadcastSessionEvent(r.sessionID, "turn_changed", map[string]any{
		"active_player_id": playerID,
	})
}

func (r *broadcastRenderer) RenderOrderTimeline(team string, units map[string][]game.Order) {
	r.b.BroadcastSessionEvent(r.sessionID, "order_timeline", map[string]any{
		"team":  team,
		"units": units,
	})
}

// broadcastNotifier relays user-facing notices to connected clients.
type broadcastNotifier struct {
	sessionID string
	b         Broadcaster
}

func (n *broadcastNotifier) ShowMessage(text, severity string) {
	n.b.BroadcastSessionEvent(n.sessionID, "notice", map[string]any{
		"text":     text,
		"severity": severity,
	})
}

// parseDuration converts Postgres interval strings like "00:05:00" or Go
// duration strings like "5m" to time.Duration.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d
	}
	parts := strings.Split(s, ":")
	if len(parts) == 3 {
		h, e1 := strconv.Atoi(parts[0])
		m, e2 := strconv.Atoi(parts[1])
		sec, e3 := strconv.Atoi(parts[2])
		if e1 == nil && e2 == nil && e3 == nil {
			return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
		}
	}
	return 5 * time.Minute
}
