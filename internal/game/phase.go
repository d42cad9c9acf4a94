package game

import (
	"fmt"

	"github.com/Ehr051/MAIRA-sub004/internal/eventbus"
)

// Phase is a top-level stage of a session.
type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseCombat      Phase = "combat"
	PhaseEnd         Phase = "end"
)

// Subphase refines a phase. Which subphases are legal depends on the phase.
type Subphase string

const (
	SubphaseDefineSector Subphase = "define_sector"
	SubphaseDefineZones  Subphase = "define_zones"
	SubphaseDeployment   Subphase = "deployment"
	SubphaseTurn         Subphase = "turn"
	SubphaseNone         Subphase = ""
)

// subphasesByPhase lists the legal subphases of each phase in forward order.
// The first entry is the subphase entered when the phase begins.
var subphasesByPhase = map[Phase][]Subphase{
	PhasePreparation: {SubphaseDefineSector, SubphaseDefineZones, SubphaseDeployment},
	PhaseCombat:      {SubphaseTurn},
	PhaseEnd:         {SubphaseNone},
}

var phaseRank = map[Phase]int{
	PhasePreparation: 0,
	PhaseCombat:      1,
	PhaseEnd:         2,
}

// InitialSubphase returns the subphase a phase starts in.
func InitialSubphase(p Phase) Subphase {
	subs, ok := subphasesByPhase[p]
	if !ok || len(subs) == 0 {
		return SubphaseNone
	}
	return subs[0]
}

// subphaseRank returns the position of sub within its phase, or -1 if the
// pair is not legal.
func subphaseRank(p Phase, sub Subphase) int {
	for i, s := range subphasesByPhase[p] {
		if s == sub {
			return i
		}
	}
	return -1
}

// ActionType names a player-originated mutation.
type ActionType string

const (
	ActionDeployUnit   ActionType = "deployUnit"
	ActionMoveUnit     ActionType = "moveUnit"
	ActionAttack       ActionType = "attack"
	ActionEndTurn      ActionType = "endTurn"
	ActionEndPhase     ActionType = "endPhase"
	ActionMarkReady    ActionType = "markReady"
	ActionAddOrder     ActionType = "addOrder"
	ActionRemoveOrder  ActionType = "removeOrder"
	ActionReorderOrder ActionType = "reorderOrder"
)

type stateKey struct {
	Phase    Phase
	Subphase Subphase
}

// allowedActions maps each (phase, subphase) state to the actions legal in
// it. Anything absent is denied: validation is fail-closed.
var allowedActions = map[stateKey]map[ActionType]bool{
	{PhasePreparation, SubphaseDefineSector}: {
		ActionEndPhase: true,
	},
	{PhasePreparation, SubphaseDefineZones}: {
		ActionEndPhase: true,
	},
	{PhasePreparation, SubphaseDeployment}: {
		ActionDeployUnit: true,
		ActionMarkReady:  true,
		ActionEndPhase:   true,
	},
	{PhaseCombat, SubphaseTurn}: {
		ActionMoveUnit:     true,
		ActionAttack:       true,
		ActionEndTurn:      true,
		ActionEndPhase:     true,
		ActionAddOrder:     true,
		ActionRemoveOrder:  true,
		ActionReorderOrder: true,
	},
}

// ValidateAction reports whether an action is legal in the given state.
// Pure function, table-driven; unknown triples deny.
func ValidateAction(action ActionType, p Phase, sub Subphase) bool {
	return allowedActions[stateKey{p, sub}][action]
}

// PhaseCoordinator owns the phase/sub-phase state machine and the
// director/creator role bookkeeping. All transitions are forward-only
// except the director-restricted abort back to preparation; END is
// terminal.
type PhaseCoordinator struct {
	bus        *eventbus.Bus
	phase      Phase
	subphase   Subphase
	directorID string
	creatorID  string
}

// NewPhaseCoordinator creates a coordinator in PREPARATION/DEFINE_SECTOR.
func NewPhaseCoordinator(bus *eventbus.Bus) *PhaseCoordinator {
	return &PhaseCoordinator{
		bus:      bus,
		phase:    PhasePreparation,
		subphase: SubphaseDefineSector,
	}
}

// Phase returns the current phase.
func (c *PhaseCoordinator) Phase() Phase { return c.phase }

// Subphase returns the current subphase.
func (c *PhaseCoordinator) Subphase() Subphase { return c.subphase }

// DirectorID returns the assigned director, or empty.
func (c *PhaseCoordinator) DirectorID() string { return c.directorID }

// CreatorID returns the assigned creator, or empty.
func (c *PhaseCoordinator) CreatorID() string { return c.creatorID }

// AssignDirector sets the director role. Settable once per session.
func (c *PhaseCoordinator) AssignDirector(playerID string) error {
	if c.directorID != "" {
		return fmt.Errorf("%w: director is %s", ErrRoleAlreadyAssigned, c.directorID)
	}
	c.directorID = playerID
	return nil
}

// AssignCreator sets the creator role. Settable once per session.
func (c *PhaseCoordinator) AssignCreator(playerID string) error {
	if c.creatorID != "" {
		return fmt.Errorf("%w: creator is %s", ErrRoleAlreadyAssigned, c.creatorID)
	}
	c.creatorID = playerID
	return nil
}

// ResetRoles clears both role assignments so they may be set again.
func (c *PhaseCoordinator) ResetRoles() {
	c.directorID = ""
	c.creatorID = ""
}

// IsDirector reports whether playerID holds the director role. When no
// director has been assigned, any player may act as one.
func (c *PhaseCoordinator) IsDirector(playerID string) bool {
	return c.directorID == "" || c.directorID == playerID
}

// TransitionTo moves the state machine to (phase, subphase). An empty
// subphase selects the target phase's initial subphase. The transition
// must be strictly forward; ErrInvalidTransition otherwise, with state
// unchanged.
func (c *PhaseCoordinator) TransitionTo(phase Phase, subphase Subphase) error {
	if _, ok := phaseRank[phase]; !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, phase)
	}
	if subphase == SubphaseNone && phase != PhaseEnd {
		subphase = InitialSubphase(phase)
	}
	if subphaseRank(phase, subphase) < 0 {
		return fmt.Errorf("%w: %s is not a subphase of %s", ErrInvalidTransition, subphase, phase)
	}
	if c.phase == PhaseEnd {
		return fmt.Errorf("%w: session has ended", ErrInvalidTransition)
	}

	cur, next := phaseRank[c.phase], phaseRank[phase]
	switch {
	case next < cur:
		return fmt.Errorf("%w: %s/%s is behind %s/%s", ErrInvalidTransition, phase, subphase, c.phase, c.subphase)
	case next == cur:
		if subphaseRank(phase, subphase) <= subphaseRank(c.phase, c.subphase) {
			return fmt.Errorf("%w: %s/%s is not ahead of %s/%s", ErrInvalidTransition, phase, subphase, c.phase, c.subphase)
		}
	}

	c.apply(phase, subphase)
	return nil
}

// AbortToPreparation is the administrative backward transition, restricted
// to the director role.
func (c *PhaseCoordinator) AbortToPreparation(playerID string) error {
	if !c.IsDirector(playerID) {
		return fmt.Errorf("%w: only the director may abort to preparation", ErrInvalidTransition)
	}
	if c.phase == PhaseEnd {
		return fmt.Errorf("%w: session has ended", ErrInvalidTransition)
	}
	if c.phase == PhasePreparation {
		return fmt.Errorf("%w: already in preparation", ErrInvalidTransition)
	}
	c.apply(PhasePreparation, InitialSubphase(PhasePreparation))
	return nil
}

// NextState returns the forward successor of the current state:
// the next subphase within the phase, or the next phase's initial
// subphase once the current phase is exhausted.
func (c *PhaseCoordinator) NextState() (Phase, Subphase) {
	subs := subphasesByPhase[c.phase]
	idx := subphaseRank(c.phase, c.subphase)
	if idx >= 0 && idx+1 < len(subs) {
		return c.phase, subs[idx+1]
	}
	switch c.phase {
	case PhasePreparation:
		return PhaseCombat, InitialSubphase(PhaseCombat)
	case PhaseCombat:
		return PhaseEnd, SubphaseNone
	default:
		return PhaseEnd, SubphaseNone
	}
}

// restore sets the state directly without legality checks or events.
// Used by snapshot restore only.
func (c *PhaseCoordinator) restore(phase Phase, subphase Subphase) {
	c.phase = phase
	c.subphase = subphase
}

func (c *PhaseCoordinator) apply(phase Phase, subphase Subphase) {
	prev, prevSub := c.phase, c.subphase
	c.phase = phase
	c.subphase = subphase
	c.bus.Publish(PhaseChangedEvent{
		PreviousPhase:    prev,
		PreviousSubphase: prevSub,
		Phase:            phase,
		Subphase:         subphase,
	})
}
