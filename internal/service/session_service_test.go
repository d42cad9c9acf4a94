package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Ehr051/MAIRA-sub004/internal/scenario"
)

func newTestServices() (*SessionService, *MatchService, *mockSessionRepo, *mockTurnRepo, *mockCache, *recordingBroadcaster) {
	sessionRepo := newMockSessionRepo()
	turnRepo := newMockTurnRepo()
	cache := newMockCache()
	bc := &recordingBroadcaster{}
	matches := NewMatchService(sessionRepo, turnRepo, cache, bc)
	scenarios := scenario.NewCatalog(&scenario.Scenario{
		Name:  "desert",
		Teams: []string{"blue", "red"},
	})
	svc := NewSessionService(sessionRepo, newMockUserRepo(), scenarios, matches)
	return svc, matches, sessionRepo, turnRepo, cache, bc
}

// createReadySession builds a waiting session with a blue creator and a
// red opponent, ready to start.
func createReadySession(t *testing.T, svc *SessionService) string {
	t.Helper()
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "Exercise Alpha", "u-blue", "desert", "5m")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := svc.JoinSession(ctx, session.ID, "u-red", "red"); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	return session.ID
}

func TestCreateSessionCreatorJoinsBlueAsDirector(t *testing.T) {
	svc, _, _, _, _, _ := newTestServices()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "Exercise Alpha", "u-blue", "desert", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Status != "waiting" {
		t.Errorf("status = %q, want waiting", session.Status)
	}
	if session.TurnDuration != "5 minutes" {
		t.Errorf("default turn duration = %q, want \"5 minutes\"", session.TurnDuration)
	}
	if len(session.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(session.Players))
	}
	p := session.Players[0]
	if p.UserID != "u-blue" || p.Team != "blue" || !p.IsDirector {
		t.Errorf("creator player = %+v, want u-blue on blue as director", p)
	}
}

func TestCreateSessionConvertsTurnDuration(t *testing.T) {
	svc, _, _, _, _, _ := newTestServices()

	session, err := svc.CreateSession(context.Background(), "Exercise Bravo", "u-blue", "", "10m")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.TurnDuration != "10 minutes" {
		t.Errorf("turn duration = %q, want \"10 minutes\"", session.TurnDuration)
	}
}

func TestCreateSessionUnknownScenario(t *testing.T) {
	svc, _, _, _, _, _ := newTestServices()

	_, err := svc.CreateSession(context.Background(), "Exercise Charlie", "u-blue", "atlantis", "")
	if !errors.Is(err, ErrUnknownScenario) {
		t.Errorf("expected ErrUnknownScenario, got %v", err)
	}
}

func TestJoinSession(t *testing.T) {
	svc, _, repo, _, _, _ := newTestServices()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "Exercise Alpha", "u-blue", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := svc.JoinSession(ctx, session.ID, "u-red", ""); err != nil {
		t.Fatalf("JoinSession with empty team: %v", err)
	}
	players, _ := repo.ListPlayers(ctx, session.ID)
	if len(players) != 2 || players[1].Team != "red" {
		t.Errorf("empty team should default to red, got %+v", players)
	}

	if err := svc.JoinSession(ctx, session.ID, "u-green", "green"); !errors.Is(err, ErrInvalidTeam) {
		t.Errorf("unknown team: expected ErrInvalidTeam, got %v", err)
	}
	if err := svc.JoinSession(ctx, session.ID, "u-red", "red"); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("duplicate join: expected ErrAlreadyJoined, got %v", err)
	}
	if err := svc.JoinSession(ctx, "nope", "u-x", "red"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: expected ErrSessionNotFound, got %v", err)
	}

	repo.sessions[session.ID].Status = "active"
	if err := svc.JoinSession(ctx, session.ID, "u-late", "red"); !errors.Is(err, ErrSessionNotWaiting) {
		t.Errorf("join after start: expected ErrSessionNotWaiting, got %v", err)
	}
}

func TestUpdatePlayerTeam(t *testing.T) {
	svc, _, repo, _, _, _ := newTestServices()
	ctx := context.Background()
	sessionID := createReadySession(t, svc)

	if err := svc.UpdatePlayerTeam(ctx, sessionID, "u-red", "u-red", "blue"); err != nil {
		t.Fatalf("self move: %v", err)
	}
	players, _ := repo.ListPlayers(ctx, sessionID)
	if players[1].Team != "blue" {
		t.Errorf("team = %q, want blue", players[1].Team)
	}

	if err := svc.UpdatePlayerTeam(ctx, sessionID, "u-blue", "u-red", "red"); !errors.Is(err, ErrNotCreator) {
		t.Errorf("moving another player: expected ErrNotCreator, got %v", err)
	}
	if err := svc.UpdatePlayerTeam(ctx, sessionID, "u-red", "u-blue", "red"); err != nil {
		t.Errorf("creator moving a player: %v", err)
	}
	if err := svc.UpdatePlayerTeam(ctx, sessionID, "u-ghost", "u-blue", "red"); !errors.Is(err, ErrNotInSession) {
		t.Errorf("unknown target: expected ErrNotInSession, got %v", err)
	}
	if err := svc.UpdatePlayerTeam(ctx, sessionID, "u-red", "u-red", "yellow"); !errors.Is(err, ErrInvalidTeam) {
		t.Errorf("bad team: expected ErrInvalidTeam, got %v", err)
	}
}

func TestSetDirector(t *testing.T) {
	svc, _, repo, _, _, _ := newTestServices()
	ctx := context.Background()
	sessionID := createReadySession(t, svc)

	if err := svc.SetDirector(ctx, sessionID, "u-red", "u-red"); !errors.Is(err, ErrNotCreator) {
		t.Errorf("non-creator reassigning director: expected ErrNotCreator, got %v", err)
	}
	if err := svc.SetDirector(ctx, sessionID, "u-ghost", "u-blue"); !errors.Is(err, ErrNotInSession) {
		t.Errorf("unknown target: expected ErrNotInSession, got %v", err)
	}
	if err := svc.SetDirector(ctx, sessionID, "u-red", "u-blue"); err != nil {
		t.Fatalf("SetDirector: %v", err)
	}
	players, _ := repo.ListPlayers(ctx, sessionID)
	for _, p := range players {
		if p.UserID == "u-red" && !p.IsDirector {
			t.Error("u-red should be director")
		}
		if p.UserID == "u-blue" && p.IsDirector {
			t.Error("u-blue should no longer be director")
		}
	}
}

func TestStartSessionValidations(t *testing.T) {
	ctx := context.Background()

	t.Run("non-creator", func(t *testing.T) {
		svc, _, _, _, _, _ := newTestServices()
		sessionID := createReadySession(t, svc)
		if _, err := svc.StartSession(ctx, sessionID, "u-red"); !errors.Is(err, ErrNotCreator) {
			t.Errorf("expected ErrNotCreator, got %v", err)
		}
	})

	t.Run("too few players", func(t *testing.T) {
		svc, _, _, _, _, _ := newTestServices()
		session, err := svc.CreateSession(ctx, "Solo", "u-blue", "", "")
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if _, err := svc.StartSession(ctx, session.ID, "u-blue"); !errors.Is(err, ErrNotEnough) {
			t.Errorf("expected ErrNotEnough, got %v", err)
		}
	})

	t.Run("one-sided", func(t *testing.T) {
		svc, _, _, _, _, _ := newTestServices()
		session, err := svc.CreateSession(ctx, "Lopsided", "u-blue", "", "")
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := svc.JoinSession(ctx, session.ID, "u-blue2", "blue"); err != nil {
			t.Fatalf("JoinSession: %v", err)
		}
		if _, err := svc.StartSession(ctx, session.ID, "u-blue"); !errors.Is(err, ErrNotEnough) {
			t.Errorf("expected ErrNotEnough, got %v", err)
		}
	})
}

func TestStartSessionBringsUpLiveMatch(t *testing.T) {
	svc, matches, _, turnRepo, cache, _ := newTestServices()
	ctx := context.Background()
	sessionID := createReadySession(t, svc)

	session, err := svc.StartSession(ctx, sessionID, "u-blue")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if session.Status != "active" {
		t.Errorf("status = %q, want active", session.Status)
	}

	snap, err := matches.State(sessionID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Phase != "preparation" || snap.Subphase != "define_sector" {
		t.Errorf("initial state = %s/%s, want preparation/define_sector", snap.Phase, snap.Subphase)
	}
	if len(turnRepo.turns) != 1 {
		t.Errorf("turn records = %d, want 1", len(turnRepo.turns))
	}
	if cache.snapshots[sessionID] == nil {
		t.Error("expected cached snapshot")
	}
	if _, ok := cache.timers[sessionID]; !ok {
		t.Error("expected turn timer to be set")
	}
}

func TestListSessionsFilters(t *testing.T) {
	svc, _, repo, _, _, _ := newTestServices()
	ctx := context.Background()

	s1, _ := svc.CreateSession(ctx, "Open", "u-blue", "", "")
	s2, _ := svc.CreateSession(ctx, "Done", "u-other", "", "")
	repo.sessions[s2.ID].Status = "finished"

	open, err := svc.ListSessions(ctx, "u-blue", "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(open) != 1 || open[0].ID != s1.ID {
		t.Errorf("open list = %+v, want only %s", open, s1.ID)
	}

	mine, _ := svc.ListSessions(ctx, "u-blue", "my")
	if len(mine) != 1 || mine[0].ID != s1.ID {
		t.Errorf("my list = %+v, want only %s", mine, s1.ID)
	}

	finished, _ := svc.ListSessions(ctx, "u-blue", "finished")
	if len(finished) != 1 || finished[0].ID != s2.ID {
		t.Errorf("finished list = %+v, want only %s", finished, s2.ID)
	}
}

func TestDeleteSession(t *testing.T) {
	svc, _, repo, _, _, _ := newTestServices()
	ctx := context.Background()
	sessionID := createReadySession(t, svc)

	if err := svc.DeleteSession(ctx, sessionID, "u-red"); !errors.Is(err, ErrNotCreator) {
		t.Errorf("non-creator delete: expected ErrNotCreator, got %v", err)
	}
	if err := svc.DeleteSession(ctx, sessionID, "u-blue"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok := repo.sessions[sessionID]; ok {
		t.Error("session should be gone")
	}

	sessionID = createReadySession(t, svc)
	if _, err := svc.StartSession(ctx, sessionID, "u-blue"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := svc.DeleteSession(ctx, sessionID, "u-blue"); !errors.Is(err, ErrSessionNotWaiting) {
		t.Errorf("delete active session: expected ErrSessionNotWaiting, got %v", err)
	}
}

func TestStopSessionTearsDownMatch(t *testing.T) {
	svc, matches, _, _, cache, _ := newTestServices()
	ctx := context.Background()
	sessionID := createReadySession(t, svc)

	if _, err := svc.StopSession(ctx, sessionID, "u-blue"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("stop before start: expected ErrSessionNotActive, got %v", err)
	}
	if _, err := svc.StartSession(ctx, sessionID, "u-blue"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := svc.StopSession(ctx, sessionID, "u-red"); !errors.Is(err, ErrNotCreator) {
		t.Errorf("non-creator stop: expected ErrNotCreator, got %v", err)
	}

	session, err := svc.StopSession(ctx, sessionID, "u-blue")
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if session.Status != "finished" {
		t.Errorf("status = %q, want finished", session.Status)
	}
	if _, err := matches.State(sessionID); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected live match gone, got %v", err)
	}
	if cache.snapshots[sessionID] != nil {
		t.Error("cached snapshot should be cleared")
	}
}
