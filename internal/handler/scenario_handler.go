package handler

import (
	"net/http"

	"github.com/Ehr051/MAIRA-sub004/internal/scenario"
)

// ScenarioHandler serves the scenario catalog loaded at startup.
type ScenarioHandler struct {
	catalog *scenario.Catalog
}

// NewScenarioHandler creates a ScenarioHandler.
func NewScenarioHandler(catalog *scenario.Catalog) *ScenarioHandler {
	return &ScenarioHandler{catalog: catalog}
}

// ListScenarios handles GET /api/v1/scenarios
func (h *ScenarioHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": h.catalog.Names()})
}

// GetScenario handles GET /api/v1/scenarios/{name}
func (h *ScenarioHandler) GetScenario(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s, ok := h.catalog.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "scenario not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
