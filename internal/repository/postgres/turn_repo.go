package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ehr051/MAIRA-sub004/internal/model"
)

// TurnRepo handles turn and order history database operations.
type TurnRepo struct {
	db *sql.DB
}

// NewTurnRepo creates a TurnRepo.
func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

// CreateTurn inserts a new turn record.
func (r *TurnRepo) CreateTurn(ctx context.Context, sessionID string, turn int, phase, subphase string, stateBefore json.RawMessage, deadline time.Time) (*model.TurnRecord, error) {
	var t model.TurnRecord
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO turns (session_id, turn, phase, subphase, state_before, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, session_id, turn, phase, subphase, state_before, deadline, created_at`,
		sessionID, turn, phase, subphase, stateBefore, deadline,
	).Scan(&t.ID, &t.SessionID, &t.Turn, &t.Phase, &t.Subphase, &t.StateBefore, &t.Deadline, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return &t, nil
}

// CurrentTurn returns the latest uncompleted turn for a session.
func (r *TurnRepo) CurrentTurn(ctx context.Context, sessionID string) (*model.TurnRecord, error) {
	var t model.TurnRecord
	var stateAfter sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, turn, phase, subphase, state_before, state_after, deadline, completed_at, created_at
		 FROM turns WHERE session_id = $1 AND completed_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, sessionID,
	).Scan(&t.ID, &t.SessionID, &t.Turn, &t.Phase, &t.Subphase, &t.StateBefore, &stateAfter, &t.Deadline, &t.CompletedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current turn: %w", err)
	}
	if stateAfter.Valid {
		t.StateAfter = json.RawMessage(stateAfter.String)
	}
	return &t, nil
}

// ListTurns returns all turns for a session in chronological order.
func (r *TurnRepo) ListTurns(ctx context.Context, sessionID string) ([]model.TurnRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, turn, phase, subphase, state_before, state_after, deadline, completed_at, created_at
		 FROM turns WHERE session_id = $1 ORDER BY created_at`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.TurnRecord
	for rows.Next() {
		var t model.TurnRecord
		var stateAfter sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Turn, &t.Phase, &t.Subphase, &t.StateBefore, &stateAfter, &t.Deadline, &t.CompletedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if stateAfter.Valid {
			t.StateAfter = json.RawMessage(stateAfter.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// CompleteTurn marks a turn as completed and stores the resulting state.
func (r *TurnRepo) CompleteTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE turns SET state_after = $1, completed_at = now() WHERE id = $2`,
		stateAfter, turnID,
	)
	if err != nil {
		return fmt.Errorf("complete turn: %w", err)
	}
	return nil
}

// SaveOrders inserts a batch of orders for a turn.
func (r *TurnRepo) SaveOrders(ctx context.Context, orders []model.OrderRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO orders (turn_id, team, unit_id, kind, duration_seconds, start_seconds, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert order: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		_, err := stmt.ExecContext(ctx, o.TurnID, o.Team, o.UnitID, o.Kind,
			o.DurationSeconds, o.StartSeconds, nullStr(o.State))
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return tx.Commit()
}

// OrdersByTurn returns all orders for a turn.
func (r *TurnRepo) OrdersByTurn(ctx context.Context, turnID string) ([]model.OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, turn_id, team, unit_id, kind, duration_seconds, start_seconds, state, created_at
		 FROM orders WHERE turn_id = $1 ORDER BY team, unit_id, start_seconds`, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("orders by turn: %w", err)
	}
	defer rows.Close()

	var orders []model.OrderRecord
	for rows.Next() {
		var o model.OrderRecord
		var state sql.NullString
		if err := rows.Scan(&o.ID, &o.TurnID, &o.Team, &o.UnitID, &o.Kind,
			&o.DurationSeconds, &o.StartSeconds, &state, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.State = state.String
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListExpired returns the latest uncompleted turn per session where the
// deadline has passed. Uses DISTINCT ON to avoid returning orphaned old
// turns from previous race conditions.
func (r *TurnRepo) ListExpired(ctx context.Context) ([]model.TurnRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (t.session_id) t.id, t.session_id, t.turn, t.phase, t.subphase, t.state_before, t.deadline, t.created_at
		 FROM turns t
		 JOIN sessions s ON s.id = t.session_id
		 WHERE t.completed_at IS NULL AND t.deadline < now() AND s.status = 'active'
		 ORDER BY t.session_id, t.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expired turns: %w", err)
	}
	defer rows.Close()

	var turns []model.TurnRecord
	for rows.Next() {
		var t model.TurnRecord
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Turn, &t.Phase, &t.Subphase, &t.StateBefore, &t.Deadline, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
