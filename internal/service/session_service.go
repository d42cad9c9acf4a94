package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ehr051/MAIRA-sub004/internal/model"
	"github.com/Ehr051/MAIRA-sub004/internal/repository"
	"github.com/Ehr051/MAIRA-sub004/internal/scenario"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotWaiting = errors.New("session is not in waiting status")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrNotEnough         = errors.New("need at least 2 players to start")
	ErrNotCreator        = errors.New("only the creator can do this")
	ErrAlreadyJoined     = errors.New("already joined this session")
	ErrNotInSession      = errors.New("you are not in this session")
	ErrInvalidTeam       = errors.New("invalid team")
	ErrUnknownScenario   = errors.New("unknown scenario")
)

// validTeams is the fixed pair of sides an exercise is fought between.
var validTeams = map[string]bool{"blue": true, "red": true}

// SessionService handles session lobby lifecycle operations.
type SessionService struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	scenarios   *scenario.Catalog
	matches     *MatchService
}

// NewSessionService creates a SessionService. The scenario catalog may
// be nil, in which case scenario names are not checked.
func NewSessionService(sessionRepo repository.SessionRepository, userRepo repository.UserRepository, scenarios *scenario.Catalog, matches *MatchService) *SessionService {
	return &SessionService{sessionRepo: sessionRepo, userRepo: userRepo, scenarios: scenarios, matches: matches}
}

// CreateSession creates a new session in "waiting" status. The creator
// auto-joins on the blue side.
func (s *SessionService) CreateSession(ctx context.Context, name, creatorID, scenarioName, turnDur string) (*model.Session, error) {
	if scenarioName != "" && s.scenarios != nil {
		if _, ok := s.scenarios.Get(scenarioName); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, scenarioName)
		}
	}
	turnDur = toPgInterval(turnDur, "5 minutes")

	session, err := s.sessionRepo.Create(ctx, name, creatorID, scenarioName, turnDur)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Join(ctx, session.ID, creatorID, "blue"); err != nil {
		return nil, err
	}
	// The creator directs the exercise until reassigned.
	if err := s.sessionRepo.SetDirector(ctx, session.ID, creatorID); err != nil {
		return nil, err
	}
	return s.sessionRepo.FindByID(ctx, session.ID)
}

// JoinSession adds a player to a waiting session on the given team.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, userID, team string) error {
	if team == "" {
		team = "red"
	}
	if !validTeams[team] {
		return ErrInvalidTeam
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.Status != "waiting" {
		return ErrSessionNotWaiting
	}
	for _, p := range session.Players {
		if p.UserID == userID {
			return ErrAlreadyJoined
		}
	}
	return s.sessionRepo.Join(ctx, sessionID, userID, team)
}

// UpdatePlayerTeam moves a player to another team in a waiting session.
// Players move themselves; the creator can move anyone.
func (s *SessionService) UpdatePlayerTeam(ctx context.Context, sessionID, targetUserID, requestingUserID, team string) error {
	if !validTeams[team] {
		return ErrInvalidTeam
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.Status != "waiting" {
		return ErrSessionNotWaiting
	}

	found := false
	for _, p := range session.Players {
		if p.UserID == targetUserID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotInSession
	}
	if targetUserID != requestingUserID && session.CreatorID != requestingUserID {
		return ErrNotCreator
	}
	return s.sessionRepo.UpdatePlayerTeam(ctx, sessionID, targetUserID, team)
}

// SetDirector hands the director role to another player in the session.
// Only the creator may reassign it.
func (s *SessionService) SetDirector(ctx context.Context, sessionID, targetUserID, requestingUserID string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.CreatorID != requestingUserID {
		return ErrNotCreator
	}
	found := false
	for _, p := range session.Players {
		if p.UserID == targetUserID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotInSession
	}
	return s.sessionRepo.SetDirector(ctx, sessionID, targetUserID)
}

// StartSession activates a waiting session and brings up its live match.
// Both teams must be represented.
func (s *SessionService) StartSession(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != "waiting" {
		return nil, ErrSessionNotWaiting
	}
	if session.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if len(session.Players) < 2 {
		return nil, ErrNotEnough
	}
	teams := make(map[string]bool)
	for _, p := range session.Players {
		teams[p.Team] = true
	}
	if !teams["blue"] || !teams["red"] {
		return nil, fmt.Errorf("%w: both teams need players", ErrNotEnough)
	}

	if err := s.sessionRepo.SetStarted(ctx, sessionID); err != nil {
		return nil, err
	}
	session, err = s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.matches.StartMatch(ctx, session); err != nil {
		return nil, fmt.Errorf("start match: %w", err)
	}
	return session, nil
}

// GetSession returns a session by ID.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns open sessions, the user's sessions, or finished ones.
func (s *SessionService) ListSessions(ctx context.Context, userID string, filter string) ([]model.Session, error) {
	switch filter {
	case "my":
		return s.sessionRepo.ListByUser(ctx, userID)
	case "finished":
		return s.sessionRepo.ListFinished(ctx)
	default:
		return s.sessionRepo.ListOpen(ctx)
	}
}

// DeleteSession removes a waiting session. Only the creator can delete it.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.Status != "waiting" {
		return ErrSessionNotWaiting
	}
	if session.CreatorID != userID {
		return ErrNotCreator
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

// StopSession ends an active session early. Only the creator can stop it.
func (s *SessionService) StopSession(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != "active" {
		return nil, ErrSessionNotActive
	}
	if session.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.matches.StopMatch(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.SetFinished(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// toPgInterval converts Go-style duration strings (e.g. "5m", "1h") to
// PostgreSQL interval format (e.g. "5 minutes"). Returns defaultVal if
// input is empty or unparseable.
func toPgInterval(s, defaultVal string) string {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%d seconds", totalSeconds)
	}
	return fmt.Sprintf("%d minutes", totalSeconds/60)
}
