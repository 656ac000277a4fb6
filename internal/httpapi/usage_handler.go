package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// UsageHandler exposes the ingestion engine, parity scope resolver, and
// explore query engine as thin read/trigger endpoints.
type UsageHandler struct {
	Ingester *usage.Ingester
	Scope *usage.ScopeResolver
	Explore *usage.Explorer
}

func NewUsageHandler(ingester *usage.Ingester, scope *usage.ScopeResolver, explore *usage.Explorer) *UsageHandler {
	return &UsageHandler{Ingester: ingester, Scope: scope, Explore: explore}
}

func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/usage/sync", h.handleSync)
	mux.HandleFunc("GET /v1/usage/scope", h.handleScope)
	mux.HandleFunc("POST /v1/usage/explore/summary", h.handleExploreSummary)
}

func (h *UsageHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.Ingester == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	res, err := h.Ingester.SyncUsage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UsageHandler) handleScope(w http.ResponseWriter, r *http.Request) {
	if h.Scope == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	q := r.URL.Query()
	from, err := parseRFC3339(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseRFC3339(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := h.Scope.ResolveScope(r.Context(), usage.ScopeRequest{From: from, To: to, SessionLimit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UsageHandler) handleExploreSummary(w http.ResponseWriter, r *http.Request) {
	if h.Explore == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured)
		return
	}
	var q usage.ExploreQuery
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := h.Explore.GetSummary(r.Context(), usage.Normalize(q, time.Now()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parseRFC3339(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
