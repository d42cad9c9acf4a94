package game

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Ehr051/MAIRA-sub004/internal/eventbus"
)

// Player is a session participant. Role flags are assigned once by the
// director-selection step; the ready flag is mutated by readiness signals
// during deployment. Players are never destroyed during a match.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Team       string `json:"team"`
	IsDirector bool   `json:"is_director,omitempty"`
	IsCreator  bool   `json:"is_creator,omitempty"`
	Ready      bool   `json:"ready"`
}

// TurnCoordinator owns turn sequencing, active-player rotation, and the
// countdown clock. Rotation order is the insertion order of the roster:
// given the same roster and the same sequence of AdvanceTurn/Tick calls,
// the active-player sequence is identical.
type TurnCoordinator struct {
	bus *eventbus.Bus

	roster       []*Player
	turn         int
	activeIdx    int
	turnDuration float64
	remaining    float64
	started      bool

	// expired debounces countdown expiry so a single zero-crossing cannot
	// double-advance if Tick races with a manual AdvanceTurn.
	expired bool

	allReadyFired bool

	// readyGate reports whether readiness signals are currently accepted.
	// Installed by the facade (true only during the deployment sub-phase).
	readyGate func() bool

	// turnEndHook runs before the rotation advances, with the player whose
	// turn is ending. The facade installs the turn-expiry order policy here.
	turnEndHook func(p *Player)
}

// NewTurnCoordinator creates an idle coordinator. Turns begin on StartTurns.
func NewTurnCoordinator(bus *eventbus.Bus) *TurnCoordinator {
	return &TurnCoordinator{bus: bus}
}

// SetReadyGate installs the deployment gate consulted by MarkReady.
func (t *TurnCoordinator) SetReadyGate(gate func() bool) { t.readyGate = gate }

// SetTurnEndHook installs the hook invoked when a turn completes.
func (t *TurnCoordinator) SetTurnEndHook(hook func(p *Player)) { t.turnEndHook = hook }

// Roster returns the players in rotation order.
func (t *TurnCoordinator) Roster() []*Player { return t.roster }

// SetRoster installs the roster before turns start, so readiness signals
// during deployment can be tracked.
func (t *TurnCoordinator) SetRoster(players []*Player) { t.roster = players }

// Turn returns the current turn number (0 before StartTurns).
func (t *TurnCoordinator) Turn() int { return t.turn }

// Started reports whether the turn sequence is running.
func (t *TurnCoordinator) Started() bool { return t.started }

// Remaining returns the countdown in seconds.
func (t *TurnCoordinator) Remaining() float64 { return t.remaining }

// ActivePlayer returns the player whose turn it is, or nil before start.
func (t *TurnCoordinator) ActivePlayer() *Player {
	if !t.started || len(t.roster) == 0 {
		return nil
	}
	return t.roster[t.activeIdx]
}

// StartTurns begins the turn sequence at turn 1 with the first player in
// the roster active and the countdown running.
func (t *TurnCoordinator) StartTurns(players []*Player, turnDurationSeconds float64) error {
	if len(players) == 0 {
		return ErrEmptyRoster
	}
	if turnDurationSeconds <= 0 {
		return fmt.Errorf("%w: turn duration must be positive", ErrConfiguration)
	}
	t.roster = players
	t.turn = 1
	t.activeIdx = 0
	t.turnDuration = turnDurationSeconds
	t.remaining = turnDurationSeconds
	t.started = true
	t.expired = false
	t.bus.Publish(TurnChangedEvent{
		Turn:           t.turn,
		ActivePlayerID: players[0].ID,
		Team:           players[0].Team,
	})
	return nil
}

// AdvanceTurn completes the current player's turn and activates the next
// player in rotation, incrementing the turn number after a full rotation.
// May be called manually before the countdown expires; this cancels the
// pending auto-advance.
func (t *TurnCoordinator) AdvanceTurn() error {
	if !t.started {
		return ErrTurnsNotStarted
	}
	if t.turnEndHook != nil {
		t.turnEndHook(t.roster[t.activeIdx])
	}
	t.activeIdx++
	if t.activeIdx >= len(t.roster) {
		t.activeIdx = 0
		t.turn++
	}
	t.remaining = t.turnDuration
	t.expired = false
	active := t.roster[t.activeIdx]
	t.bus.Publish(TurnChangedEvent{
		Turn:           t.turn,
		ActivePlayerID: active.ID,
		Team:           active.Team,
	})
	return nil
}

// Tick decrements the countdown by deltaSeconds. When the countdown
// crosses zero it advances the turn exactly once; otherwise it publishes
// the updated clock.
func (t *TurnCoordinator) Tick(deltaSeconds float64) {
	if !t.started || deltaSeconds <= 0 {
		return
	}
	t.remaining -= deltaSeconds
	if t.remaining <= 0 {
		t.remaining = 0
		if t.expired {
			return
		}
		t.expired = true
		if err := t.AdvanceTurn(); err != nil {
			log.Error().Err(err).Msg("Auto-advance on countdown expiry failed")
		}
		return
	}
	t.bus.Publish(ClockUpdatedEvent{Turn: t.turn, RemainingSeconds: t.remaining})
}

// MarkReady records a readiness signal during deployment. Outside
// deployment the call is a logged no-op. When the last player becomes
// ready, AllPlayersReady fires exactly once; repeat signals from an
// already-ready player do not re-fire it.
func (t *TurnCoordinator) MarkReady(playerID string) {
	if t.readyGate != nil && !t.readyGate() {
		log.Warn().Str("playerId", playerID).Msg("Readiness signal outside deployment ignored")
		return
	}
	var player *Player
	for _, p := range t.roster {
		if p.ID == playerID {
			player = p
			break
		}
	}
	if player == nil {
		log.Warn().Str("playerId", playerID).Msg("Readiness signal from unknown player ignored")
		return
	}
	if player.Ready {
		return
	}
	player.Ready = true

	for _, p := range t.roster {
		if !p.Ready {
			return
		}
	}
	if t.allReadyFired {
		return
	}
	t.allReadyFired = true
	t.bus.Publish(AllPlayersReadyEvent{Turn: t.turn})
}

// ResetReady clears all readiness flags, re-arming the all-ready event.
// Called when the session aborts back to preparation.
func (t *TurnCoordinator) ResetReady() {
	for _, p := range t.roster {
		p.Ready = false
	}
	t.allReadyFired = false
}

// restore rebuilds coordinator state from a snapshot without events.
func (t *TurnCoordinator) restore(players []*Player, turn int, activeID string, remaining, turnDuration float64, started bool) {
	t.roster = players
	t.turn = turn
	t.turnDuration = turnDuration
	t.remaining = remaining
	t.started = started
	t.expired = false
	t.activeIdx = 0
	for i, p := range players {
		if p.ID == activeID {
			t.activeIdx = i
			break
		}
	}
	t.allReadyFired = false
	if started {
		t.allReadyFired = true
	}
}
