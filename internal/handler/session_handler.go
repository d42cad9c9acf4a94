package handler

import (
	"errors"
	"net/http"

	"github.com/Ehr051/MAIRA-sub004/internal/auth"
	"github.com/Ehr051/MAIRA-sub004/internal/game"
	"github.com/Ehr051/MAIRA-sub004/internal/service"
)

// SessionHandler handles session lobby and live match endpoints.
type SessionHandler struct {
	sessionSvc *service.SessionService
	matches    *service.MatchService
	wsHub      *Hub
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessionSvc *service.SessionService, matches *service.MatchService, wsHub *Hub) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc, matches: matches, wsHub: wsHub}
}

// lobbyStatus maps lobby service errors to HTTP status codes.
func lobbyStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotCreator), errors.Is(err, service.ErrNotInSession):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSessionNotWaiting), errors.Is(err, service.ErrSessionNotActive),
		errors.Is(err, service.ErrNotEnough), errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrInvalidTeam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// matchStatus maps live match errors to HTTP status codes.
func matchStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrActionRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Name         string `json:"name"`
		Scenario     string `json:"scenario,omitempty"`
		TurnDuration string `json:"turn_duration,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	session, err := h.sessionSvc.CreateSession(r.Context(), req.Name, userID, req.Scenario, req.TurnDuration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	filter := r.URL.Query().Get("filter")
	sessions, err := h.sessionSvc.ListSessions(r.Context(), userID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	session, err := h.sessionSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// JoinSession handles POST /api/v1/sessions/{id}/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Team string `json:"team,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.sessionSvc.JoinSession(r.Context(), sessionID, userID, req.Team); err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}

	h.wsHub.BroadcastToSession(sessionID, WSEvent{
		Type:      EventPlayerJoined,
		SessionID: sessionID,
		Data:      map[string]string{"user_id": userID, "team": req.Team},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// UpdatePlayerTeam handles PATCH /api/v1/sessions/{id}/players/{userId}/team
func (h *SessionHandler) UpdatePlayerTeam(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	targetUserID := r.PathValue("userId")
	requestingUserID := auth.UserIDFromContext(r.Context())

	var req struct {
		Team string `json:"team"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessionSvc.UpdatePlayerTeam(r.Context(), sessionID, targetUserID, requestingUserID, req.Team); err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}

	h.wsHub.BroadcastToSession(sessionID, WSEvent{
		Type:      EventTeamChanged,
		SessionID: sessionID,
		Data:      map[string]string{"user_id": targetUserID, "team": req.Team},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// SetDirector handles PATCH /api/v1/sessions/{id}/players/{userId}/director
func (h *SessionHandler) SetDirector(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	targetUserID := r.PathValue("userId")
	requestingUserID := auth.UserIDFromContext(r.Context())

	if err := h.sessionSvc.SetDirector(r.Context(), sessionID, targetUserID, requestingUserID); err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}

	h.wsHub.BroadcastToSession(sessionID, WSEvent{
		Type:      EventDirectorChanged,
		SessionID: sessionID,
		Data:      map[string]string{"user_id": targetUserID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// StartSession handles POST /api/v1/sessions/{id}/start
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	session, err := h.sessionSvc.StartSession(r.Context(), sessionID, userID)
	if err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}

	h.wsHub.BroadcastToSession(sessionID, WSEvent{
		Type:      EventSessionStarted,
		SessionID: sessionID,
		Data:      session,
	})
	writeJSON(w, http.StatusOK, session)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.sessionSvc.DeleteSession(r.Context(), sessionID, userID); err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}

	h.wsHub.BroadcastToSession(sessionID, WSEvent{
		Type:      EventSessionDeleted,
		SessionID: sessionID,
		Data:      map[string]string{},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// StopSession handles POST /api/v1/sessions/{id}/stop
func (h *SessionHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	session, err := h.sessionSvc.StopSession(r.Context(), sessionID, userID)
	if err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// GetState handles GET /api/v1/sessions/{id}/state
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	snap, err := h.matches.State(sessionID)
	if err != nil {
		writeError(w, matchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DispatchAction handles POST /api/v1/sessions/{id}/actions
// The acting player is always the authenticated user.
func (h *SessionHandler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var action game.Action
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if action.Type == "" {
		writeError(w, http.StatusBadRequest, "action type is required")
		return
	}
	action.PlayerID = userID

	if err := h.matches.Dispatch(r.Context(), sessionID, action); err != nil {
		writeError(w, matchStatus(err), err.Error())
		return
	}

	snap, err := h.matches.State(sessionID)
	if err != nil {
		writeError(w, matchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ValidateOrders handles POST /api/v1/sessions/{id}/orders/validate
// Validates the requesting player's own team's order queue.
func (h *SessionHandler) ValidateOrders(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	session, err := h.sessionSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, lobbyStatus(err), err.Error())
		return
	}
	team := ""
	for _, p := range session.Players {
		if p.UserID == userID {
			team = p.Team
			break
		}
	}
	if team == "" {
		writeError(w, http.StatusForbidden, "you are not in this session")
		return
	}

	counts, err := h.matches.ValidateOrders(r.Context(), sessionID, team)
	if err != nil {
		writeError(w, matchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Abort handles POST /api/v1/sessions/{id}/abort. The director resets
// the match back to preparation.
func (h *SessionHandler) Abort(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.matches.AbortToPreparation(r.Context(), sessionID, userID); err != nil {
		writeError(w, matchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

// ListTurns handles GET /api/v1/sessions/{id}/turns
func (h *SessionHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	turns, err := h.matches.Turns(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// TurnOrders handles GET /api/v1/sessions/{id}/turns/{turnId}/orders
func (h *SessionHandler) TurnOrders(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnId")

	orders, err := h.matches.TurnOrders(r.Context(), turnID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orders == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
