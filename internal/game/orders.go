package game

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/Ehr051/MAIRA-sub004/internal/eventbus"
)

// OrderKind names what a unit has been told to do.
type OrderKind string

const (
	OrderMove     OrderKind = "move"
	OrderAttack   OrderKind = "attack"
	OrderDefend   OrderKind = "defend"
	OrderEngineer OrderKind = "engineer"
	OrderComms    OrderKind = "comms"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderExecuting OrderState = "executing"
	OrderCompleted OrderState = "completed"
	OrderInvalid   OrderState = "invalid"
)

// Order is one entry in a unit's sequential queue. StartSeconds is derived:
// within a unit's queue, order i starts when orders 0..i-1 have finished.
type Order struct {
	ID              string     `json:"id"`
	UnitID          string     `json:"unit_id"`
	Kind            OrderKind  `json:"kind"`
	DurationSeconds float64    `json:"duration_seconds"`
	StartSeconds    float64    `json:"start_seconds"`
	State           OrderState `json:"state"`
}

// OrderCounts aggregates order states after a validation pass.
type OrderCounts struct {
	Pending   int `json:"pending"`
	Executing int `json:"executing"`
	Invalid   int `json:"invalid"`
	Completed int `json:"completed"`
}

// OrderStatistics summarizes a team queue for round-duration estimation.
type OrderStatistics struct {
	UnitCount          int     `json:"unit_count"`
	OrderCount         int     `json:"order_count"`
	TotalSeconds       float64 `json:"total_seconds"`
	LongestUnitSeconds float64 `json:"longest_unit_seconds"`
}

// TurnsNeeded returns how many turns of the given duration the longest
// unit timeline spans.
func (s OrderStatistics) TurnsNeeded(turnDurationSeconds float64) int {
	if turnDurationSeconds <= 0 || s.LongestUnitSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(s.LongestUnitSeconds / turnDurationSeconds))
}

// OrderValidator checks whether an order's preconditions still hold.
// Implemented by the map/terrain collaborator; the queue only consumes
// the pass/fail result.
type OrderValidator interface {
	ValidateOrder(ctx context.Context, team, unitID string, o Order) (bool, error)
}

// OrderQueue holds the pending orders of one team, one sequential queue
// per unit. Orders of the same unit never overlap; different units run
// independent timelines in parallel.
type OrderQueue struct {
	bus  *eventbus.Bus
	team string

	units     map[string][]*Order
	unitOrder []string // deterministic iteration order

	// clock is the simulated seconds elapsed within the current turn,
	// advanced by AdvanceClock.
	clock float64
}

// NewOrderQueue creates an empty queue for a team.
func NewOrderQueue(bus *eventbus.Bus, team string) *OrderQueue {
	return &OrderQueue{bus: bus, team: team, units: make(map[string][]*Order)}
}

// Team returns the owning team.
func (q *OrderQueue) Team() string { return q.team }

// Units returns the unit IDs with queues, in insertion order.
func (q *OrderQueue) Units() []string {
	out := make([]string, len(q.unitOrder))
	copy(out, q.unitOrder)
	return out
}

// UnitOrders returns a copy of one unit's queue in index order.
func (q *OrderQueue) UnitOrders(unitID string) []Order {
	orders := q.units[unitID]
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = *o
	}
	return out
}

// AddOrder appends an order to the unit's queue, creating the queue if
// absent, and recomputes that unit's timeline. A missing ID is generated;
// a missing state defaults to pending.
func (q *OrderQueue) AddOrder(unitID string, o Order) Order {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.State == "" {
		o.State = OrderPending
	}
	o.UnitID = unitID

	if _, ok := q.units[unitID]; !ok {
		q.unitOrder = append(q.unitOrder, unitID)
	}
	stored := o
	q.units[unitID] = append(q.units[unitID], &stored)
	q.recalcUnit(unitID)

	q.bus.Publish(OrderAddedEvent{Team: q.team, UnitID: unitID, Order: stored})
	return stored
}

// RemoveOrder cancels an order and recomputes the downstream start times
// of the remaining orders of that unit.
func (q *OrderQueue) RemoveOrder(unitID, orderID string) error {
	orders, ok := q.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	for i, o := range orders {
		if o.ID == orderID {
			q.units[unitID] = append(orders[:i], orders[i+1:]...)
			q.recalcUnit(unitID)
			q.bus.Publish(OrderCancelledEvent{Team: q.team, UnitID: unitID, OrderID: orderID})
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
}

// Reorder moves the order at fromIndex to toIndex within a unit's queue
// and recomputes the timeline. Returns false without error when
// fromIndex == toIndex.
func (q *OrderQueue) Reorder(unitID string, fromIndex, toIndex int) (bool, error) {
	orders, ok := q.units[unitID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	if fromIndex < 0 || fromIndex >= len(orders) || toIndex < 0 || toIndex >= len(orders) {
		return false, fmt.Errorf("reorder out of range: %d -> %d of %d", fromIndex, toIndex, len(orders))
	}
	if fromIndex == toIndex {
		return false, nil
	}

	moved := orders[fromIndex]
	orders = append(orders[:fromIndex], orders[fromIndex+1:]...)
	rest := make([]*Order, 0, len(orders)+1)
	rest = append(rest, orders[:toIndex]...)
	rest = append(rest, moved)
	rest = append(rest, orders[toIndex:]...)
	q.units[unitID] = rest
	q.recalcUnit(unitID)

	q.bus.Publish(OrderReorderedEvent{
		Team: q.team, UnitID: unitID, OrderID: moved.ID,
		FromIndex: fromIndex, ToIndex: toIndex,
	})
	return true, nil
}

// ReorderToTime moves an order so that it starts at or before
// targetSeconds on the unit timeline, as when an operator drags an order
// block. When the target time falls inside an existing order's interval
// [start, start+duration), the dragged order is inserted before that
// order; exact-boundary ties resolve to the earlier slot.
func (q *OrderQueue) ReorderToTime(unitID, orderID string, targetSeconds float64) (bool, error) {
	orders, ok := q.units[unitID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	fromIndex := -1
	for i, o := range orders {
		if o.ID == orderID {
			fromIndex = i
			break
		}
	}
	if fromIndex == -1 {
		return false, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	// Walk the timeline without the dragged order and find the first
	// interval containing the target.
	toIndex := 0
	cum := 0.0
	for i, o := range orders {
		if i == fromIndex {
			continue
		}
		if targetSeconds < cum+o.DurationSeconds {
			break
		}
		cum += o.DurationSeconds
		toIndex++
	}

	return q.Reorder(unitID, fromIndex, toIndex)
}

// RecalculateTimeline recomputes start times for every unit queue.
// Idempotent: with no intervening mutation, a second call yields
// identical values.
func (q *OrderQueue) RecalculateTimeline() {
	for _, unitID := range q.unitOrder {
		q.recalcUnit(unitID)
	}
}

func (q *OrderQueue) recalcUnit(unitID string) {
	cum := 0.0
	for _, o := range q.units[unitID] {
		o.StartSeconds = cum
		cum += o.DurationSeconds
	}
}

// AdvanceClock moves the simulated clock forward, promoting orders along
// pending -> executing -> completed as their intervals are reached.
func (q *OrderQueue) AdvanceClock(seconds float64) {
	if seconds <= 0 {
		return
	}
	q.clock += seconds
	for _, unitID := range q.unitOrder {
		for _, o := range q.units[unitID] {
			switch o.State {
			case OrderPending:
				if o.StartSeconds+o.DurationSeconds <= q.clock {
					o.State = OrderCompleted
				} else if o.StartSeconds <= q.clock {
					o.State = OrderExecuting
				}
			case OrderExecuting:
				if o.StartSeconds+o.DurationSeconds <= q.clock {
					o.State = OrderCompleted
				}
			}
		}
	}
}

// Clock returns the simulated seconds elapsed.
func (q *OrderQueue) Clock() float64 { return q.clock }

// InvalidateExecuting marks every executing order invalid. This is the
// turn-expiry policy: in-flight orders require re-issue, while pending
// orders stay queued and carry over to the next turn.
func (q *OrderQueue) InvalidateExecuting() int {
	n := 0
	for _, unitID := range q.unitOrder {
		for _, o := range q.units[unitID] {
			if o.State == OrderExecuting {
				o.State = OrderInvalid
				n++
			}
		}
	}
	return n
}

// ValidateOrders runs a validation pass over every pending or executing
// order, marking failures invalid. Invalid orders are kept visible for
// operator review, not removed. Returns the resulting state counts.
func (q *OrderQueue) ValidateOrders(ctx context.Context, v OrderValidator) (OrderCounts, error) {
	for _, unitID := range q.unitOrder {
		for _, o := range q.units[unitID] {
			if o.State != OrderPending && o.State != OrderExecuting {
				continue
			}
			if v == nil {
				continue
			}
			valid, err := v.ValidateOrder(ctx, q.team, unitID, *o)
			if err != nil {
				return OrderCounts{}, fmt.Errorf("validate order %s: %w", o.ID, err)
			}
			if !valid {
				o.State = OrderInvalid
			}
		}
	}
	counts := q.Counts()
	q.bus.Publish(OrdersValidatedEvent{Team: q.team, Counts: counts})
	return counts, nil
}

// Counts tallies orders by state.
func (q *OrderQueue) Counts() OrderCounts {
	var c OrderCounts
	for _, unitID := range q.unitOrder {
		for _, o := range q.units[unitID] {
			switch o.State {
			case OrderPending:
				c.Pending++
			case OrderExecuting:
				c.Executing++
			case OrderInvalid:
				c.Invalid++
			case OrderCompleted:
				c.Completed++
			}
		}
	}
	return c
}

// Statistics aggregates queue size and timeline length across all units.
func (q *OrderQueue) Statistics() OrderStatistics {
	var s OrderStatistics
	s.UnitCount = len(q.unitOrder)
	for _, unitID := range q.unitOrder {
		unitTotal := 0.0
		for _, o := range q.units[unitID] {
			s.OrderCount++
			unitTotal += o.DurationSeconds
		}
		s.TotalSeconds += unitTotal
		if unitTotal > s.LongestUnitSeconds {
			s.LongestUnitSeconds = unitTotal
		}
	}
	return s
}

// PruneCompleted removes completed orders, shifting the remaining
// timeline back to zero. Called when a team's turn completes.
func (q *OrderQueue) PruneCompleted() {
	for _, unitID := range q.unitOrder {
		orders := q.units[unitID]
		kept := orders[:0]
		for _, o := range orders {
			if o.State != OrderCompleted {
				kept = append(kept, o)
			}
		}
		q.units[unitID] = kept
		q.recalcUnit(unitID)
	}
}

// Reset discards every queue and rewinds the simulated clock. Called on
// phase completion.
func (q *OrderQueue) Reset() {
	q.units = make(map[string][]*Order)
	q.unitOrder = nil
	q.clock = 0
}

// snapshotUnits exports the queue as plain data keyed by unit ID.
func (q *OrderQueue) snapshotUnits() map[string][]Order {
	out := make(map[string][]Order, len(q.unitOrder))
	for _, unitID := range q.unitOrder {
		out[unitID] = q.UnitOrders(unitID)
	}
	return out
}

// restoreUnits rebuilds the queue from snapshot data. Unit iteration
// order follows the provided order slice for determinism.
func (q *OrderQueue) restoreUnits(unitIDs []string, units map[string][]Order) {
	q.units = make(map[string][]*Order, len(units))
	q.unitOrder = nil
	for _, unitID := range unitIDs {
		orders, ok := units[unitID]
		if !ok {
			continue
		}
		q.unitOrder = append(q.unitOrder, unitID)
		stored := make([]*Order, len(orders))
		for i := range orders {
			o := orders[i]
			stored[i] = &o
		}
		q.units[unitID] = stored
	}
	q.RecalculateTimeline()
}
