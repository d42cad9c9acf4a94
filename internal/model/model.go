package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session represents a hosted exercise session.
type Session struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CreatorID    string          `json:"creator_id"`
	Status       string          `json:"status"` // waiting, active, finished
	Scenario     string          `json:"scenario,omitempty"`
	TurnDuration string          `json:"turn_duration"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Players      []SessionPlayer `json:"players,omitempty"`
	ReadyCount   int             `json:"ready_count,omitempty"`
}

// SessionPlayer represents a player's membership in a session.
type SessionPlayer struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Team       string    `json:"team,omitempty"`
	IsDirector bool      `json:"is_director"`
	IsCreator  bool      `json:"is_creator"`
	JoinedAt   time.Time `json:"joined_at"`
}

// TurnRecord represents one completed turn of a session, with the full
// state snapshots taken at its boundaries.
type TurnRecord struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Turn        int             `json:"turn"`
	Phase       string          `json:"phase"`
	Subphase    string          `json:"subphase"`
	StateBefore json.RawMessage `json:"state_before"`
	StateAfter  json.RawMessage `json:"state_after,omitempty"`
	Deadline    time.Time       `json:"deadline"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderRecord represents an order issued during a turn, as persisted for
// after-action review.
type OrderRecord struct {
	ID              string    `json:"id"`
	TurnID          string    `json:"turn_id"`
	Team            string    `json:"team"`
	UnitID          string    `json:"unit_id"`
	Kind            string    `json:"kind"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartSeconds    float64   `json:"start_seconds"`
	State           string    `json:"state,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
