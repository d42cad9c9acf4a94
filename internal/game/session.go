package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Ehr051/MAIRA-sub004/internal/eventbus"
)

// Mode selects whether the session replicates mutations over a network
// channel.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeOnline Mode = "online"
)

// lowClockThreshold is the countdown value at which the notifier warns
// the active player, in seconds.
const lowClockThreshold = 10.0

// Config describes a session to be composed. Collaborators are resolved
// through the registry at construction; renderer and notifier are
// required, the network channel is required in online mode, and the
// order validator is optional.
type Config struct {
	Mode                Mode
	Players             []*Player
	TurnDurationSeconds float64
	Registry            *Registry
}

// Action is a player-originated mutation request, and also the wire delta
// replicated to remote sessions. Unused fields stay at their zero value.
type Action struct {
	Type            ActionType `json:"type"`
	PlayerID        string     `json:"player_id,omitempty"`
	Team            string     `json:"team,omitempty"`
	UnitID          string     `json:"unit_id,omitempty"`
	OrderID         string     `json:"order_id,omitempty"`
	Kind            OrderKind  `json:"kind,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	FromIndex       int        `json:"from_index,omitempty"`
	ToIndex         int        `json:"to_index,omitempty"`
}

// PlayerSnapshot is the serialized form of a roster entry.
type PlayerSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Team       string `json:"team"`
	Ready      bool   `json:"ready"`
	IsDirector bool   `json:"is_director,omitempty"`
	IsCreator  bool   `json:"is_creator,omitempty"`
}

// Snapshot is the full serialized session state, used for save/resume,
// late-join catch-up, and the read-only state exposed to the interface.
type Snapshot struct {
	Phase            Phase                        `json:"phase"`
	Subphase         Subphase                     `json:"subphase"`
	Mode             Mode                         `json:"mode"`
	Turn             int                          `json:"turn"`
	TurnsStarted     bool                         `json:"turns_started"`
	ActivePlayerID   string                       `json:"active_player_id,omitempty"`
	RemainingSeconds float64                      `json:"remaining_seconds"`
	DirectorID       string                       `json:"director_id,omitempty"`
	CreatorID        string                       `json:"creator_id,omitempty"`
	Players          []PlayerSnapshot             `json:"players"`
	Units            map[string]string            `json:"units,omitempty"`
	OrderQueues      map[string]map[string][]Order `json:"order_queues"`
	Timestamp        time.Time                    `json:"timestamp"`
}

// Facade is the composition root and single mutation funnel of a session.
// It exclusively owns the session state: coordinators and queues are never
// mutated directly by callers, and remote deltas flow through the same
// apply path as local actions. The facade itself is single-writer; the
// hosting layer serializes access.
type Facade struct {
	bus    *eventbus.Bus
	phases *PhaseCoordinator
	turns  *TurnCoordinator

	mode                Mode
	turnDurationSeconds float64
	roster              []*Player
	teams               []string
	queues              map[string]*OrderQueue

	// unitTeams maps deployed unit IDs to their owning team.
	unitTeams map[string]string

	renderer  Renderer
	notifier  Notifier
	channel   NetworkChannel
	validator OrderValidator

	lowClockWarned bool
}

// New validates the configuration, resolves collaborators, constructs the
// coordinators and per-team queues, and wires event subscriptions. On any
// collaborator construction failure the already-built collaborators are
// torn down before the error is returned.
func New(cfg Config) (*Facade, error) {
	if len(cfg.Players) == 0 {
		return nil, fmt.Errorf("%w: roster must not be empty", ErrConfiguration)
	}
	if cfg.TurnDurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: turn duration must be positive", ErrConfiguration)
	}
	switch cfg.Mode {
	case ModeLocal, ModeOnline:
	case "":
		cfg.Mode = ModeLocal
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrConfiguration, cfg.Mode)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: collaborator registry is required", ErrConfiguration)
	}
	seen := make(map[string]bool, len(cfg.Players))
	for _, p := range cfg.Players {
		if p.ID == "" || p.Team == "" {
			return nil, fmt.Errorf("%w: every player needs an id and a team", ErrConfiguration)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate player id %s", ErrConfiguration, p.ID)
		}
		seen[p.ID] = true
	}

	f := &Facade{
		bus:                 eventbus.New(),
		mode:                cfg.Mode,
		turnDurationSeconds: cfg.TurnDurationSeconds,
		roster:              cfg.Players,
		queues:              make(map[string]*OrderQueue),
		unitTeams:           make(map[string]string),
	}
	f.phases = NewPhaseCoordinator(f.bus)
	f.turns = NewTurnCoordinator(f.bus)
	f.turns.SetRoster(cfg.Players)

	for _, p := range cfg.Players {
		if _, ok := f.queues[p.Team]; !ok {
			f.teams = append(f.teams, p.Team)
			f.queues[p.Team] = NewOrderQueue(f.bus, p.Team)
		}
		if p.IsDirector && f.phases.directorID == "" {
			f.phases.directorID = p.ID
		}
		if p.IsCreator && f.phases.creatorID == "" {
			f.phases.creatorID = p.ID
		}
	}

	if err := f.resolveCollaborators(cfg.Registry); err != nil {
		return nil, err
	}
	f.wire()
	return f, nil
}

// resolveCollaborators builds collaborators from the registry, checking
// required slots once here instead of at every call site.
func (f *Facade) resolveCollaborators(reg *Registry) error {
	var built []any

	fail := func(err error) error {
		closeAll(built)
		return err
	}

	instance, err := reg.resolve(KindRenderer)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
	if instance == nil {
		return fail(fmt.Errorf("%w: renderer collaborator is required", ErrConfiguration))
	}
	renderer, ok := instance.(Renderer)
	if !ok {
		return fail(fmt.Errorf("%w: renderer collaborator has wrong type %T", ErrConfiguration, instance))
	}
	built = append(built, instance)
	f.renderer = renderer

	instance, err = reg.resolve(KindNotifier)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
	if instance == nil {
		return fail(fmt.Errorf("%w: notifier collaborator is required", ErrConfiguration))
	}
	notifier, ok := instance.(Notifier)
	if !ok {
		return fail(fmt.Errorf("%w: notifier collaborator has wrong type %T", ErrConfiguration, instance))
	}
	built = append(built, instance)
	f.notifier = notifier

	instance, err = reg.resolve(KindChannel)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
	if instance != nil {
		channel, ok := instance.(NetworkChannel)
		if !ok {
			return fail(fmt.Errorf("%w: channel collaborator has wrong type %T", ErrConfiguration, instance))
		}
		built = append(built, instance)
		f.channel = channel
	}
	if f.mode == ModeOnline && f.channel == nil {
		return fail(fmt.Errorf("%w: online mode requires a network channel", ErrConfiguration))
	}

	instance, err = reg.resolve(KindValidator)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
	if instance != nil {
		validator, ok := instance.(OrderValidator)
		if !ok {
			return fail(fmt.Errorf("%w: validator collaborator has wrong type %T", ErrConfiguration, instance))
		}
		f.validator = validator
	}
	return nil
}

// wire connects coordinators, collaborators, and the replication channel.
// Renderer and notifier are subscribers only.
func (f *Facade) wire() {
	f.turns.SetReadyGate(func() bool {
		return f.phases.Phase() == PhasePreparation && f.phases.Subphase() == SubphaseDeployment
	})
	f.turns.SetTurnEndHook(func(p *Player) {
		q := f.queues[p.Team]
		if q == nil {
			return
		}
		// Expiry policy: executing orders need re-issue, pending carry over.
		q.InvalidateExecuting()
		q.PruneCompleted()
	})

	f.bus.Subscribe(eventbus.TypeAllPlayersReady, func(eventbus.Event) {
		if err := f.enterCombat(); err != nil {
			log.Error().Err(err).Msg("Auto-advance to combat after all-ready failed")
		}
	})

	f.bus.Subscribe(eventbus.TypePhaseChanged, func(e eventbus.Event) {
		ev := e.(PhaseChangedEvent)
		f.renderer.ShowPhase(ev.Phase, ev.Subphase)
	})
	f.bus.Subscribe(eventbus.TypeTurnChanged, func(e eventbus.Event) {
		ev := e.(TurnChangedEvent)
		f.lowClockWarned = false
		f.renderer.HighlightActivePlayer(ev.ActivePlayerID)
	})
	for _, t := range []eventbus.Type{eventbus.TypeOrderAdded, eventbus.TypeOrderCancelled, eventbus.TypeOrderReordered} {
		f.bus.Subscribe(t, func(e eventbus.Event) {
			team := ""
			switch ev := e.(type) {
			case OrderAddedEvent:
				team = ev.Team
			case OrderCancelledEvent:
				team = ev.Team
			case OrderReorderedEvent:
				team = ev.Team
			}
			if q := f.queues[team]; q != nil {
				f.renderer.RenderOrderTimeline(team, q.snapshotUnits())
			}
		})
	}

	f.bus.Subscribe(eventbus.TypeActionRejected, func(e eventbus.Event) {
		ev := e.(ActionRejectedEvent)
		f.notifier.ShowMessage(ev.Reason, "warning")
	})
	f.bus.Subscribe(eventbus.TypeClockUpdated, func(e eventbus.Event) {
		ev := e.(ClockUpdatedEvent)
		if ev.RemainingSeconds <= lowClockThreshold && !f.lowClockWarned {
			f.lowClockWarned = true
			f.notifier.ShowMessage(fmt.Sprintf("%.0f seconds remaining", ev.RemainingSeconds), "info")
		}
	})

	if f.mode == ModeOnline && f.channel != nil {
		for _, at := range []ActionType{
			ActionDeployUnit, ActionMoveUnit, ActionAttack, ActionEndTurn,
			ActionEndPhase, ActionMarkReady, ActionAddOrder, ActionRemoveOrder,
			ActionReorderOrder,
		} {
			f.channel.OnReceive(string(at), func(payload []byte) {
				if err := f.ApplyRemote(payload); err != nil {
					log.Warn().Err(err).Msg("Discarded remote delta")
				}
			})
		}
	}
}

// Bus exposes the session event bus for additional subscribers (server
// broadcast relay, tests).
func (f *Facade) Bus() *eventbus.Bus { return f.bus }

// Mode returns the replication mode.
func (f *Facade) Mode() Mode { return f.mode }

// Phases returns the phase coordinator for read access and role
// administration.
func (f *Facade) Phases() *PhaseCoordinator { return f.phases }

// Turns returns the turn coordinator for read access.
func (f *Facade) Turns() *TurnCoordinator { return f.turns }

// Queue returns the order queue of a team, or nil.
func (f *Facade) Queue(team string) *OrderQueue { return f.queues[team] }

// Teams returns the team IDs in roster order.
func (f *Facade) Teams() []string {
	out := make([]string, len(f.teams))
	copy(out, f.teams)
	return out
}

// Tick drives the countdown and the active team's simulated order clock.
// The periodic timer lives outside the core; deltaSeconds is whatever the
// host's timer produces.
func (f *Facade) Tick(deltaSeconds float64) {
	if active := f.turns.ActivePlayer(); active != nil {
		if q := f.queues[active.Team]; q != nil {
			q.AdvanceClock(deltaSeconds)
		}
	}
	f.turns.Tick(deltaSeconds)
}

// DispatchAction validates and applies a player action, then, in online
// mode, replicates the applied action to the network channel. Rejections
// leave state unchanged and are surfaced through the notifier.
func (f *Facade) DispatchAction(a Action) error {
	f.prepare(&a)
	return f.dispatch(a, true)
}

// ApplyRemote applies a serialized action received from the network
// channel, through the same apply path as DispatchAction. Malformed
// deltas are discarded whole; partial application never occurs.
func (f *Facade) ApplyRemote(payload []byte) error {
	var a Action
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("decode remote delta: %w", err)
	}
	if a.Type == "" {
		return fmt.Errorf("remote delta missing action type")
	}
	return f.dispatch(a, false)
}

// prepare fills server-generated fields before apply and replication, so
// the local apply and every remote apply see identical input.
func (f *Facade) prepare(a *Action) {
	switch a.Type {
	case ActionAddOrder, ActionMoveUnit, ActionAttack:
		if a.OrderID == "" {
			a.OrderID = uuid.NewString()
		}
	}
}

func (f *Facade) dispatch(a Action, broadcast bool) error {
	if !ValidateAction(a.Type, f.phases.Phase(), f.phases.Subphase()) {
		err := rejected(a.Type, "%s is not allowed during %s/%s", a.Type, f.phases.Phase(), f.phases.Subphase())
		f.reject(a, err)
		return err
	}
	if err := f.apply(a); err != nil {
		f.reject(a, err)
		return err
	}
	if broadcast && f.mode == ModeOnline && f.channel != nil {
		payload, err := json.Marshal(a)
		if err != nil {
			log.Error().Err(err).Str("action", string(a.Type)).Msg("Failed to encode action for replication")
			return nil
		}
		if err := f.channel.Send(string(a.Type), payload); err != nil {
			log.Error().Err(err).Str("action", string(a.Type)).Msg("Failed to replicate action")
		}
	}
	return nil
}

func (f *Facade) reject(a Action, err error) {
	reason := err.Error()
	if re, ok := err.(*ActionRejectedError); ok {
		reason = re.Reason
	}
	f.bus.Publish(ActionRejectedEvent{Action: a.Type, PlayerID: a.PlayerID, Reason: reason})
}

// apply routes a validated action to the owning coordinator or queue.
// This is the only mutation path; local and remote mutations cannot
// diverge in semantics.
func (f *Facade) apply(a Action) error {
	switch a.Type {
	case ActionDeployUnit:
		return f.applyDeploy(a)
	case ActionMarkReady:
		f.turns.MarkReady(a.PlayerID)
		return nil
	case ActionEndTurn:
		return f.applyEndTurn(a)
	case ActionEndPhase:
		return f.applyEndPhase(a)
	case ActionMoveUnit:
		return f.applyAddOrder(a, OrderMove)
	case ActionAttack:
		return f.applyAddOrder(a, OrderAttack)
	case ActionAddOrder:
		return f.applyAddOrder(a, a.Kind)
	case ActionRemoveOrder:
		return f.applyRemoveOrder(a)
	case ActionReorderOrder:
		return f.applyReorder(a)
	default:
		return rejected(a.Type, "unknown action type")
	}
}

func (f *Facade) applyDeploy(a Action) error {
	if a.UnitID == "" {
		return rejected(a.Type, "unit id is required")
	}
	team, err := f.resolveTeam(a)
	if err != nil {
		return err
	}
	f.unitTeams[a.UnitID] = team
	f.bus.Publish(UnitDeployedEvent{Team: team, UnitID: a.UnitID, PlayerID: a.PlayerID})
	return nil
}

func (f *Facade) applyEndTurn(a Action) error {
	active := f.turns.ActivePlayer()
	if active == nil {
		return rejected(a.Type, "turns have not started")
	}
	if a.PlayerID != "" && a.PlayerID != active.ID && !f.phases.IsDirector(a.PlayerID) {
		return rejected(a.Type, "it is not your turn")
	}
	return f.turns.AdvanceTurn()
}

func (f *Facade) applyEndPhase(a Action) error {
	if a.PlayerID != "" && !f.phases.IsDirector(a.PlayerID) {
		return rejected(a.Type, "only the director may finalize the current phase")
	}
	next, nextSub := f.phases.NextState()
	if next == PhaseCombat {
		return f.enterCombat()
	}
	if err := f.phases.TransitionTo(next, nextSub); err != nil {
		return err
	}
	if next == PhaseEnd {
		f.bus.Publish(SessionEndedEvent{Turn: f.turns.Turn()})
	}
	return nil
}

// enterCombat moves to COMBAT/TURN and starts the turn sequence. Shared
// by the all-ready auto-advance and the director's endPhase.
func (f *Facade) enterCombat() error {
	if f.phases.Phase() == PhaseCombat {
		return nil
	}
	if err := f.phases.TransitionTo(PhaseCombat, SubphaseTurn); err != nil {
		return err
	}
	if !f.turns.Started() {
		return f.turns.StartTurns(f.roster, f.turnDurationSeconds)
	}
	return nil
}

func (f *Facade) applyAddOrder(a Action, kind OrderKind) error {
	if a.UnitID == "" {
		return rejected(a.Type, "unit id is required")
	}
	if kind == "" {
		return rejected(a.Type, "order kind is required")
	}
	if a.DurationSeconds <= 0 {
		return rejected(a.Type, "order duration must be positive")
	}
	team, err := f.resolveTeam(a)
	if err != nil {
		return err
	}
	if _, ok := f.unitTeams[a.UnitID]; !ok {
		f.unitTeams[a.UnitID] = team
	}
	q := f.queues[team]
	q.AddOrder(a.UnitID, Order{
		ID:              a.OrderID,
		Kind:            kind,
		DurationSeconds: a.DurationSeconds,
	})
	return nil
}

func (f *Facade) applyRemoveOrder(a Action) error {
	team, err := f.resolveTeam(a)
	if err != nil {
		return err
	}
	if err := f.queues[team].RemoveOrder(a.UnitID, a.OrderID); err != nil {
		return rejected(a.Type, "%v", err)
	}
	return nil
}

func (f *Facade) applyReorder(a Action) error {
	team, err := f.resolveTeam(a)
	if err != nil {
		return err
	}
	if _, err := f.queues[team].Reorder(a.UnitID, a.FromIndex, a.ToIndex); err != nil {
		return rejected(a.Type, "%v", err)
	}
	return nil
}

// resolveTeam finds the team an action targets: explicit field first,
// then the unit's registered team, then the acting player's team.
func (f *Facade) resolveTeam(a Action) (string, error) {
	team := a.Team
	if team == "" && a.UnitID != "" {
		team = f.unitTeams[a.UnitID]
	}
	if team == "" && a.PlayerID != "" {
		for _, p := range f.roster {
			if p.ID == a.PlayerID {
				team = p.Team
				break
			}
		}
	}
	if team == "" {
		return "", rejected(a.Type, "cannot resolve target team")
	}
	if _, ok := f.queues[team]; !ok {
		return "", rejected(a.Type, "unknown team %s", team)
	}
	return team, nil
}

// AbortToPreparation is the director's administrative reset: back to
// PREPARATION/DEFINE_SECTOR, turn sequence stopped, readiness cleared,
// order queues discarded.
func (f *Facade) AbortToPreparation(playerID string) error {
	if err := f.phases.AbortToPreparation(playerID); err != nil {
		return err
	}
	f.turns.started = false
	f.turns.ResetReady()
	for _, q := range f.queues {
		q.Reset()
	}
	f.unitTeams = make(map[string]string)
	return nil
}

// ValidateOrders runs the order validation pass for one team using the
// configured validator collaborator.
func (f *Facade) ValidateOrders(ctx context.Context, team string) (OrderCounts, error) {
	q, ok := f.queues[team]
	if !ok {
		return OrderCounts{}, fmt.Errorf("unknown team %s", team)
	}
	return q.ValidateOrders(ctx, f.validator)
}

// Snapshot serializes the full session state as plain data.
func (f *Facade) Snapshot() Snapshot {
	s := Snapshot{
		Phase:            f.phases.Phase(),
		Subphase:         f.phases.Subphase(),
		Mode:             f.mode,
		Turn:             f.turns.Turn(),
		TurnsStarted:     f.turns.Started(),
		RemainingSeconds: f.turns.Remaining(),
		DirectorID:       f.phases.DirectorID(),
		CreatorID:        f.phases.CreatorID(),
		Units:            make(map[string]string, len(f.unitTeams)),
		OrderQueues:      make(map[string]map[string][]Order, len(f.teams)),
		Timestamp:        time.Now().UTC(),
	}
	if active := f.turns.ActivePlayer(); active != nil {
		s.ActivePlayerID = active.ID
	}
	for _, p := range f.roster {
		s.Players = append(s.Players, PlayerSnapshot{
			ID: p.ID, Name: p.Name, Team: p.Team, Ready: p.Ready,
			IsDirector: p.IsDirector, IsCreator: p.IsCreator,
		})
	}
	for unitID, team := range f.unitTeams {
		s.Units[unitID] = team
	}
	for _, team := range f.teams {
		s.OrderQueues[team] = f.queues[team].snapshotUnits()
	}
	return s
}

// GetState returns the read-only snapshot the interface renders from.
func (f *Facade) GetState() Snapshot { return f.Snapshot() }

// Restore rebuilds session state from a snapshot, without emitting
// events. Used for save/resume and late-join catch-up.
func (f *Facade) Restore(s Snapshot) error {
	if len(s.Players) == 0 {
		return fmt.Errorf("%w: snapshot has no players", ErrConfiguration)
	}
	if subphaseRank(s.Phase, s.Subphase) < 0 {
		return fmt.Errorf("%w: snapshot state %s/%s", ErrInvalidTransition, s.Phase, s.Subphase)
	}

	roster := make([]*Player, len(s.Players))
	for i, ps := range s.Players {
		roster[i] = &Player{
			ID: ps.ID, Name: ps.Name, Team: ps.Team, Ready: ps.Ready,
			IsDirector: ps.IsDirector, IsCreator: ps.IsCreator,
		}
	}
	f.roster = roster
	f.phases.restore(s.Phase, s.Subphase)
	f.phases.directorID = s.DirectorID
	f.phases.creatorID = s.CreatorID
	f.turns.restore(roster, s.Turn, s.ActivePlayerID, s.RemainingSeconds, f.turnDurationSeconds, s.TurnsStarted)

	f.unitTeams = make(map[string]string, len(s.Units))
	for unitID, team := range s.Units {
		f.unitTeams[unitID] = team
	}

	f.teams = nil
	f.queues = make(map[string]*OrderQueue)
	teamSet := make(map[string]bool)
	for _, p := range roster {
		if !teamSet[p.Team] {
			teamSet[p.Team] = true
			f.teams = append(f.teams, p.Team)
			f.queues[p.Team] = NewOrderQueue(f.bus, p.Team)
		}
	}
	for team, units := range s.OrderQueues {
		q, ok := f.queues[team]
		if !ok {
			teamSet[team] = true
			f.teams = append(f.teams, team)
			q = NewOrderQueue(f.bus, team)
			f.queues[team] = q
		}
		unitIDs := make([]string, 0, len(units))
		for unitID := range units {
			unitIDs = append(unitIDs, unitID)
		}
		sort.Strings(unitIDs)
		q.restoreUnits(unitIDs, units)
	}
	return nil
}
