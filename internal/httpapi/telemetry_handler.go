package httpapi

import (
	"net/http"

	"github.com/clawcontrol/clawcontrol/internal/telemetry"
)

// TelemetryHandler exposes the Session Telemetry Overlay's sync trigger
// and read access to its AgentSession rows.
type TelemetryHandler struct {
	Syncer *telemetry.Syncer
	Store telemetry.Store
}

func NewTelemetryHandler(syncer *telemetry.Syncer, store telemetry.Store) *TelemetryHandler {
	return &TelemetryHandler{Syncer: syncer, Store: store}
}

func (h *TelemetryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/telemetry/sync", h.handleSync)
	mux.HandleFunc("GET /v1/telemetry/sessions/{sessionID}", h.handleGet)
	mux.HandleFunc("GET /v1/telemetry/agents/{agentID}/sessions", h.handleListByAgent)
}

func (h *TelemetryHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.Syncer == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	stats, err := h.Syncer.SyncAgentSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *TelemetryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	session, err := h.Store.Get(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *TelemetryHandler) handleListByAgent(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	sessions, err := h.Store.ListByAgent(r.Context(), r.PathValue("agentID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
