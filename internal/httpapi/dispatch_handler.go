package httpapi

import (
	"net/http"

	"github.com/clawcontrol/clawcontrol/internal/dispatch"
)

// DispatchHandler exposes Agent Dispatch Core's Spawn operation.
type DispatchHandler struct {
	Spawner *dispatch.Spawner
}

func NewDispatchHandler(spawner *dispatch.Spawner) *DispatchHandler {
	return &DispatchHandler{Spawner: spawner}
}

func (h *DispatchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/dispatch/spawn", h.handleSpawn)
}

func (h *DispatchHandler) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if h.Spawner == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	var req dispatch.SpawnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AgentID == "" || req.Task == "" {
		writeError(w, http.StatusBadRequest, errMissingRequiredFields)
		return
	}

	res, err := h.Spawner.Spawn(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
