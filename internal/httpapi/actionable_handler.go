package httpapi

import (
	"net/http"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
)

// ActionableHandler exposes Ops Actionable Intake's Ingest operation
//.
type ActionableHandler struct {
	Intake *actionable.Intake
}

func NewActionableHandler(intake *actionable.Intake) *ActionableHandler {
	return &ActionableHandler{Intake: intake}
}

func (h *ActionableHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/actionable/ingest", h.handleIngest)
}

func (h *ActionableHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if h.Intake == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	var p actionable.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.Intake.Ingest(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
