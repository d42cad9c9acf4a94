package game

import "github.com/Ehr051/MAIRA-sub004/internal/eventbus"

// Bus payload structs, one per eventbus.Type. Renderer and notifier
// collaborators are pure subscribers to these; they are never called
// synchronously from inside a mutator.

// PhaseChangedEvent is published after a successful phase or sub-phase
// transition.
type PhaseChangedEvent struct {
	PreviousPhase    Phase    `json:"previous_phase"`
	PreviousSubphase Subphase `json:"previous_subphase"`
	Phase            Phase    `json:"phase"`
	Subphase         Subphase `json:"subphase"`
}

func (PhaseChangedEvent) EventType() eventbus.Type { return eventbus.TypePhaseChanged }

// TurnChangedEvent is published when the active player changes.
type TurnChangedEvent struct {
	Turn           int    `json:"turn"`
	ActivePlayerID string `json:"active_player_id"`
	Team           string `json:"team"`
}

func (TurnChangedEvent) EventType() eventbus.Type { return eventbus.TypeTurnChanged }

// ClockUpdatedEvent is published on every countdown tick that does not
// expire the turn.
type ClockUpdatedEvent struct {
	Turn             int     `json:"turn"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func (ClockUpdatedEvent) EventType() eventbus.Type { return eventbus.TypeClockUpdated }

// AllPlayersReadyEvent fires exactly once per deployment when the last
// player marks ready.
type AllPlayersReadyEvent struct {
	Turn int `json:"turn"`
}

func (AllPlayersReadyEvent) EventType() eventbus.Type { return eventbus.TypeAllPlayersReady }

// UnitDeployedEvent is published when a unit is registered to a team
// during the deployment sub-phase.
type UnitDeployedEvent struct {
	Team     string `json:"team"`
	UnitID   string `json:"unit_id"`
	PlayerID string `json:"player_id"`
}

func (UnitDeployedEvent) EventType() eventbus.Type { return eventbus.TypeUnitDeployed }

// OrderAddedEvent is published after an order is appended to a unit queue.
type OrderAddedEvent struct {
	Team   string `json:"team"`
	UnitID string `json:"unit_id"`
	Order  Order  `json:"order"`
}

func (OrderAddedEvent) EventType() eventbus.Type { return eventbus.TypeOrderAdded }

// OrderCancelledEvent is published after an order is removed.
type OrderCancelledEvent struct {
	Team    string `json:"team"`
	UnitID  string `json:"unit_id"`
	OrderID string `json:"order_id"`
}

func (OrderCancelledEvent) EventType() eventbus.Type { return eventbus.TypeOrderCancelled }

// OrderReorderedEvent is published after an order moves within its unit
// queue.
type OrderReorderedEvent struct {
	Team      string `json:"team"`
	UnitID    string `json:"unit_id"`
	OrderID   string `json:"order_id"`
	FromIndex int    `json:"from_index"`
	ToIndex   int    `json:"to_index"`
}

func (OrderReorderedEvent) EventType() eventbus.Type { return eventbus.TypeOrderReordered }

// OrdersValidatedEvent reports the result of a validation pass over a
// team queue.
type OrdersValidatedEvent struct {
	Team   string      `json:"team"`
	Counts OrderCounts `json:"counts"`
}

func (OrdersValidatedEvent) EventType() eventbus.Type { return eventbus.TypeOrdersValidated }

// ActionRejectedEvent is published when a dispatched action fails
// validation, so the interface collaborator can surface the reason.
type ActionRejectedEvent struct {
	Action   ActionType `json:"action"`
	PlayerID string     `json:"player_id,omitempty"`
	Reason   string     `json:"reason"`
}

func (ActionRejectedEvent) EventType() eventbus.Type { return eventbus.TypeActionRejected }

// SessionEndedEvent is published when the session reaches the END phase.
type SessionEndedEvent struct {
	Turn int `json:"turn"`
}

func (SessionEndedEvent) EventType() eventbus.Type { return eventbus.TypeSessionEnded }
