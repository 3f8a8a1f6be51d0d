package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prism-data/prism/internal/cache"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/search"
)

// QueryHandler serves both query surfaces: the hybrid search router and
// the per-source-type strategy dispatch.
type QueryHandler struct {
	router   *search.Router
	registry *nlquery.Registry
	cache    *cache.Cache
	cacheTTL time.Duration
}

func NewQueryHandler(router *search.Router, registry *nlquery.Registry, c *cache.Cache) *QueryHandler {
	return &QueryHandler{
		router:   router,
		registry: registry,
		cache:    c,
		cacheTTL: time.Minute,
	}
}

// Search runs the hybrid router. Successful responses are cached briefly
// keyed by source and query, so repeated dashboard polls stay cheap.
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
		return
	}

	key := queryCacheKey(req.DataSourceID, req.Query, req.TopK)
	if h.cache != nil {
		var cached search.Response
		err := h.cache.Get(r.Context(), key, &cached)
		if err == nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("query cache read failed", "error", err)
		}
	}

	resp := h.router.Query(r.Context(), req)

	if h.cache != nil && resp.Error == "" {
		if err := h.cache.Set(r.Context(), key, resp, h.cacheTTL); err != nil {
			slog.Warn("query cache write failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type nlQueryRequest struct {
	Query   string          `json:"query"`
	Options nlquery.Options `json:"options"`
}

// NLQuery dispatches to the strategy registered for the requested data
// source type. An unknown type is a 404; execution failures come back as
// a 200 with the result's Error populated.
func (h *QueryHandler) NLQuery(w http.ResponseWriter, r *http.Request) {
	var req nlQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
		return
	}
	if req.Options.DataSourceType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data_source_type required"})
		return
	}

	result, err := h.registry.Dispatch(r.Context(), req.Options.DataSourceType, req.Query, req.Options)
	if err != nil {
		if errors.Is(err, nlquery.ErrStrategyNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":           err.Error(),
				"supported_types": h.registry.Types(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryCacheKey(dataSourceID, query string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", dataSourceID, query, topK)))
	return "query:" + hex.EncodeToString(sum[:16])
}
