//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/Ehr051/MAIRA-sub004/internal/model"
	"github.com/Ehr051/MAIRA-sub004/internal/testutil"
)

var testDB *sql.DB

func setup(t *testing.T) {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
}

// createTestUser is a helper that inserts a user and returns it.
func createTestUser(t *testing.T, repo *UserRepo, suffix string) *model.User {
	t.Helper()
	u, err := repo.Upsert(context.Background(), "google", "provider-"+suffix, "User "+suffix, "https://avatar/"+suffix)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}

// createTestSession inserts a session with the creator joined on blue.
func createTestSession(t *testing.T, repo *SessionRepo, creatorID string) *model.Session {
	t.Helper()
	ctx := context.Background()
	s, err := repo.Create(ctx, "Exercise Alpha", creatorID, "desert", "5 minutes")
	if err != nil {
		t.Fatalf("create test session: %v", err)
	}
	if err := repo.Join(ctx, s.ID, creatorID, "blue"); err != nil {
		t.Fatalf("join creator: %v", err)
	}
	return s
}

// --- UserRepo Tests ---

func TestUserUpsertCreates(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)

	u, err := repo.Upsert(context.Background(), "google", "goog-123", "Alice", "https://avatar/alice")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if u.Provider != "google" || u.ProviderID != "goog-123" {
		t.Fatalf("unexpected provider data: %s / %s", u.Provider, u.ProviderID)
	}
}

func TestUserUpsertUpdates(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)
	ctx := context.Background()

	first, _ := repo.Upsert(ctx, "google", "goog-123", "Alice", "")
	second, err := repo.Upsert(ctx, "google", "goog-123", "Alice Renamed", "https://avatar/new")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("upsert should not create a second user")
	}
	if second.DisplayName != "Alice Renamed" {
		t.Fatalf("expected updated display name, got %s", second.DisplayName)
	}
}

func TestUserFindByID(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)

	u := createTestUser(t, repo, "a")
	got, err := repo.FindByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("expected user %s, got %+v", u.ID, got)
	}

	missing, err := repo.FindByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing user")
	}
}

// --- SessionRepo Tests ---

func TestSessionCreateAndFind(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)

	creator := createTestUser(t, userRepo, "creator")
	s := createTestSession(t, sessionRepo, creator.ID)

	got, err := sessionRepo.FindByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if got.Status != "waiting" {
		t.Fatalf("expected waiting status, got %s", got.Status)
	}
	if got.Scenario != "desert" {
		t.Fatalf("expected scenario desert, got %s", got.Scenario)
	}
	if len(got.Players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(got.Players))
	}
	if !got.Players[0].IsCreator {
		t.Fatal("expected creator flag derived from sessions.creator_id")
	}
}

func TestSessionJoinIdempotent(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	other := createTestUser(t, userRepo, "other")
	s := createTestSession(t, sessionRepo, creator.ID)

	if err := sessionRepo.Join(ctx, s.ID, other.ID, "red"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := sessionRepo.Join(ctx, s.ID, other.ID, "blue"); err != nil {
		t.Fatalf("duplicate join should be a no-op: %v", err)
	}

	players, _ := sessionRepo.ListPlayers(ctx, s.ID)
	if len(players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(players))
	}
	for _, p := range players {
		if p.UserID == other.ID && p.Team != "red" {
			t.Fatalf("duplicate join must not change team, got %s", p.Team)
		}
	}
}

func TestSessionSetDirectorExclusive(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	other := createTestUser(t, userRepo, "other")
	s := createTestSession(t, sessionRepo, creator.ID)
	sessionRepo.Join(ctx, s.ID, other.ID, "red")

	sessionRepo.SetDirector(ctx, s.ID, creator.ID)
	if err := sessionRepo.SetDirector(ctx, s.ID, other.ID); err != nil {
		t.Fatalf("set director: %v", err)
	}

	players, _ := sessionRepo.ListPlayers(ctx, s.ID)
	directors := 0
	for _, p := range players {
		if p.IsDirector {
			directors++
			if p.UserID != other.ID {
				t.Fatalf("wrong director: %s", p.UserID)
			}
		}
	}
	if directors != 1 {
		t.Fatalf("expected exactly 1 director, got %d", directors)
	}
}

func TestSessionLifecycleStatus(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	s := createTestSession(t, sessionRepo, creator.ID)

	open, _ := sessionRepo.ListOpen(ctx)
	if len(open) != 1 {
		t.Fatalf("expected 1 open session, got %d", len(open))
	}

	sessionRepo.SetStarted(ctx, s.ID)
	active, _ := sessionRepo.ListActive(ctx)
	if len(active) != 1 || active[0].StartedAt == nil {
		t.Fatalf("expected 1 active session with started_at, got %+v", active)
	}

	sessionRepo.SetFinished(ctx, s.ID)
	finished, _ := sessionRepo.ListFinished(ctx)
	if len(finished) != 1 || finished[0].FinishedAt == nil {
		t.Fatalf("expected 1 finished session with finished_at, got %+v", finished)
	}
}

func TestSessionDeleteCascades(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	turnRepo := NewTurnRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	s := createTestSession(t, sessionRepo, creator.ID)
	turn, err := turnRepo.CreateTurn(ctx, s.ID, 0, "preparation", "define_sector",
		json.RawMessage(`{}`), time.Now().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("create turn: %v", err)
	}
	turnRepo.SaveOrders(ctx, []model.OrderRecord{
		{TurnID: turn.ID, Team: "blue", UnitID: "tank1", Kind: "move", DurationSeconds: 30},
	})

	if err := sessionRepo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	got, _ := sessionRepo.FindByID(ctx, s.ID)
	if got != nil {
		t.Fatal("expected session deleted")
	}
	turns, _ := turnRepo.ListTurns(ctx, s.ID)
	if len(turns) != 0 {
		t.Fatal("expected turns cascaded")
	}
}

// --- TurnRepo Tests ---

func TestTurnCreateCompleteAndList(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	turnRepo := NewTurnRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	s := createTestSession(t, sessionRepo, creator.ID)

	before := json.RawMessage(`{"phase":"combat","turn":1}`)
	turn, err := turnRepo.CreateTurn(ctx, s.ID, 1, "combat", "turn", before, time.Now().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("create turn: %v", err)
	}

	current, err := turnRepo.CurrentTurn(ctx, s.ID)
	if err != nil {
		t.Fatalf("current turn: %v", err)
	}
	if current == nil || current.ID != turn.ID {
		t.Fatalf("expected current turn %s, got %+v", turn.ID, current)
	}

	after := json.RawMessage(`{"phase":"combat","turn":2}`)
	if err := turnRepo.CompleteTurn(ctx, turn.ID, after); err != nil {
		t.Fatalf("complete turn: %v", err)
	}

	current, _ = turnRepo.CurrentTurn(ctx, s.ID)
	if current != nil {
		t.Fatal("expected no current turn after completion")
	}

	turns, _ := turnRepo.ListTurns(ctx, s.ID)
	if len(turns) != 1 || turns[0].CompletedAt == nil {
		t.Fatalf("expected 1 completed turn, got %+v", turns)
	}
	if string(turns[0].StateAfter) == "" {
		t.Fatal("expected state_after stored")
	}
}

func TestTurnOrdersRoundTrip(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	turnRepo := NewTurnRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	s := createTestSession(t, sessionRepo, creator.ID)
	turn, _ := turnRepo.CreateTurn(ctx, s.ID, 1, "combat", "turn",
		json.RawMessage(`{}`), time.Now().Add(5*time.Minute))

	err := turnRepo.SaveOrders(ctx, []model.OrderRecord{
		{TurnID: turn.ID, Team: "blue", UnitID: "tank1", Kind: "move", DurationSeconds: 30, StartSeconds: 0, State: "pending"},
		{TurnID: turn.ID, Team: "red", UnitID: "inf1", Kind: "attack", DurationSeconds: 45, StartSeconds: 10},
	})
	if err != nil {
		t.Fatalf("save orders: %v", err)
	}

	orders, err := turnRepo.OrdersByTurn(ctx, turn.ID)
	if err != nil {
		t.Fatalf("orders by turn: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].Team != "blue" || orders[0].UnitID != "tank1" {
		t.Fatalf("unexpected order ordering: %+v", orders[0])
	}
}

func TestListExpiredOnlyActiveSessions(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	turnRepo := NewTurnRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	active := createTestSession(t, sessionRepo, creator.ID)
	waiting := createTestSession(t, sessionRepo, creator.ID)
	sessionRepo.SetStarted(ctx, active.ID)

	past := time.Now().Add(-time.Minute)
	turnRepo.CreateTurn(ctx, active.ID, 1, "combat", "turn", json.RawMessage(`{}`), past)
	turnRepo.CreateTurn(ctx, waiting.ID, 1, "combat", "turn", json.RawMessage(`{}`), past)

	expired, err := turnRepo.ListExpired(ctx)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired turn (active session only), got %d", len(expired))
	}
	if expired[0].SessionID != active.ID {
		t.Fatalf("expected expired turn for active session, got %s", expired[0].SessionID)
	}
}

func TestListExpiredReturnsLatestTurn(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	sessionRepo := NewSessionRepo(testDB)
	turnRepo := NewTurnRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, userRepo, "creator")
	s := createTestSession(t, sessionRepo, creator.ID)
	sessionRepo.SetStarted(ctx, s.ID)

	turnRepo.CreateTurn(ctx, s.ID, 1, "combat", "turn", json.RawMessage(`{}`), time.Now().Add(-2*time.Minute))
	latest, _ := turnRepo.CreateTurn(ctx, s.ID, 2, "combat", "turn", json.RawMessage(`{}`), time.Now().Add(-time.Minute))

	expired, err := turnRepo.ListExpired(ctx)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != latest.ID {
		t.Fatalf("expected only latest open turn, got %+v", expired)
	}
}
