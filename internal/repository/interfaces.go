package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Ehr051/MAIRA-sub004/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// SessionRepository defines session and session_player data operations.
type SessionRepository interface {
	Create(ctx context.Context, name, creatorID, scenario, turnDur string) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ListOpen(ctx context.Context) ([]model.Session, error)
	ListByUser(ctx context.Context, userID string) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	ListFinished(ctx context.Context) ([]model.Session, error)
	Join(ctx context.Context, sessionID, userID, team string) error
	ListPlayers(ctx context.Context, sessionID string) ([]model.SessionPlayer, error)
	PlayerCount(ctx context.Context, sessionID string) (int, error)
	SetDirector(ctx context.Context, sessionID, userID string) error
	UpdatePlayerTeam(ctx context.Context, sessionID, userID, team string) error
	SetStarted(ctx context.Context, sessionID string) error
	SetFinished(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// TurnRepository defines turn and order history operations.
type TurnRepository interface {
	CreateTurn(ctx context.Context, sessionID string, turn int, phase, subphase string, stateBefore json.RawMessage, deadline time.Time) (*model.TurnRecord, error)
	CurrentTurn(ctx context.Context, sessionID string) (*model.TurnRecord, error)
	ListTurns(ctx context.Context, sessionID string) ([]model.TurnRecord, error)
	CompleteTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error
	SaveOrders(ctx context.Context, orders []model.OrderRecord) error
	OrdersByTurn(ctx context.Context, turnID string) ([]model.OrderRecord, error)
	ListExpired(ctx context.Context) ([]model.TurnRecord, error)
}

// SessionCache defines live session state operations (Redis).
type SessionCache interface {
	SetSnapshot(ctx context.Context, sessionID string, snapshot json.RawMessage) error
	GetSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error)
	MarkReady(ctx context.Context, sessionID, playerID string) error
	UnmarkReady(ctx context.Context, sessionID, playerID string) error
	ReadyCount(ctx context.Context, sessionID string) (int64, error)
	ReadyPlayers(ctx context.Context, sessionID string) ([]string, error)
	ClearReady(ctx context.Context, sessionID string) error
	SetTurnTimer(ctx context.Context, sessionID string, deadline time.Time) error
	ClearTurnTimer(ctx context.Context, sessionID string) error
	DeleteSessionData(ctx context.Context, sessionID string) error
}
