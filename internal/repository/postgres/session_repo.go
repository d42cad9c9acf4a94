package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ehr051/MAIRA-sub004/internal/model"
)

// SessionRepo handles session and session_player database operations.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a new session.
func (r *SessionRepo) Create(ctx context.Context, name, creatorID, scenario, turnDur string) (*model.Session, error) {
	var s model.Session
	var scen sql.NullString
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (name, creator_id, scenario, turn_duration)
		 VALUES ($1, $2, $3, $4::interval)
		 RETURNING id, name, creator_id, status, scenario, turn_duration, created_at`,
		name, creatorID, nullStr(scenario), turnDur,
	).Scan(&s.ID, &s.Name, &s.CreatorID, &s.Status, &scen, &s.TurnDuration, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Scenario = scen.String
	return &s, nil
}

// FindByID returns a session by ID with its players.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	var scen sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id, status, scenario, turn_duration, created_at, started_at, finished_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.CreatorID, &s.Status, &scen, &s.TurnDuration, &s.CreatedAt, &s.StartedAt, &s.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	s.Scenario = scen.String

	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Players = players
	return &s, nil
}

// ListOpen returns sessions in "waiting" status.
func (r *SessionRepo) ListOpen(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, status, scenario, turn_duration, created_at, started_at, finished_at
		 FROM sessions WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
}

// ListByUser returns all sessions a user is part of (as player or creator).
func (r *SessionRepo) ListByUser(ctx context.Context, userID string) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT DISTINCT s.id, s.name, s.creator_id, s.status, s.scenario, s.turn_duration, s.created_at, s.started_at, s.finished_at
		 FROM sessions s LEFT JOIN session_players sp ON s.id = sp.session_id AND sp.user_id = $1
		 WHERE sp.user_id = $1 OR s.creator_id = $1
		 ORDER BY s.created_at DESC LIMIT 50`, userID)
}

// ListActive returns all sessions with status 'active', including their players.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	sessions, err := r.list(ctx,
		`SELECT id, name, creator_id, status, scenario, turn_duration, created_at, started_at, finished_at
		 FROM sessions WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		players, err := r.ListPlayers(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Players = players
	}
	return sessions, nil
}

// ListFinished returns all finished sessions, most recent first.
func (r *SessionRepo) ListFinished(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, status, scenario, turn_duration, created_at, started_at, finished_at
		 FROM sessions WHERE status = 'finished' ORDER BY finished_at DESC LIMIT 100`)
}

func (r *SessionRepo) list(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		var scen sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatorID, &s.Status, &scen, &s.TurnDuration, &s.CreatedAt, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Scenario = scen.String
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Join adds a player to a session.
func (r *SessionRepo) Join(ctx context.Context, sessionID, userID, team string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_players (session_id, user_id, team, is_creator)
		 SELECT $1, $2, $3, s.creator_id = $2 FROM sessions s WHERE s.id = $1
		 ON CONFLICT DO NOTHING`,
		sessionID, userID, nullStr(team),
	)
	if err != nil {
		return fmt.Errorf("join session: %w", err)
	}
	return nil
}

// ListPlayers returns all players in a session.
func (r *SessionRepo) ListPlayers(ctx context.Context, sessionID string) ([]model.SessionPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, user_id, team, is_director, is_creator, joined_at
		 FROM session_players WHERE session_id = $1 ORDER BY joined_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.SessionPlayer
	for rows.Next() {
		var p model.SessionPlayer
		var team sql.NullString
		if err := rows.Scan(&p.SessionID, &p.UserID, &team, &p.IsDirector, &p.IsCreator, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Team = team.String
		players = append(players, p)
	}
	return players, rows.Err()
}

// PlayerCount returns the number of players in a session.
func (r *SessionRepo) PlayerCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_players WHERE session_id = $1`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return count, nil
}

// SetDirector marks one player as the session director, clearing any
// previous holder in the same transaction.
func (r *SessionRepo) SetDirector(ctx context.Context, sessionID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE session_players SET is_director = false WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear director: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE session_players SET is_director = true WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID); err != nil {
		return fmt.Errorf("set director: %w", err)
	}
	return tx.Commit()
}

// UpdatePlayerTeam sets a player's team in a waiting session.
func (r *SessionRepo) UpdatePlayerTeam(ctx context.Context, sessionID, userID, team string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE session_players SET team = $1 WHERE session_id = $2 AND user_id = $3`,
		team, sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("update player team: %w", err)
	}
	return nil
}

// SetStarted marks a session as active.
func (r *SessionRepo) SetStarted(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'active', started_at = now() WHERE id = $1`, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set started: %w", err)
	}
	return nil
}

// SetFinished marks a session as finished.
func (r *SessionRepo) SetFinished(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'finished', finished_at = now() WHERE id = $1`, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// Delete removes a session and all associated data (cascades to players,
// turns, orders).
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
