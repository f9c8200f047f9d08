package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agentstation/taxamap/internal/server/response"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// HandleSpecies handles GET /api/v1/species/{query}.
// @Summary Resolve a species
// @Description Returns the profile for a name, canonical id or source:id
// @Description reference, researching and storing it on a miss.
// @Tags species
// @Produce json
// @Param query path string true "Scientific name, canonical id or source:id"
// @Param refresh query boolean false "Bypass the in-memory profile cache"
// @Success 200 {object} response.Response{data=taxa.Profile}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 404 {object} response.Response{error=response.Error}
// @Failure 503 {object} response.Response{error=response.Error}
// @Failure 504 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /species/{query} [get].
func (h *Handlers) HandleSpecies(w http.ResponseWriter, r *http.Request, rawQuery string) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, r.Method)
		return
	}
	start := time.Now()

	query, err := url.PathUnescape(rawQuery)
	if err != nil {
		response.BadRequest(w, "invalid query", err.Error())
		return
	}
	if taxa.NormalizeName(query) == "" {
		response.ErrorFromType(w, errors.NewValidationError("query", query, "cannot be empty"))
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if !refresh {
		if p, ok := h.cache.Get(query); ok {
			h.metrics.ObserveResolve(ResultCache, time.Since(start))
			response.OK(w, p)
			return
		}
	}

	ctx := r.Context()
	if h.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.resolveTimeout)
		defer cancel()
	}

	profile, err := h.client.Resolve(ctx, query)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil {
			err = errors.NewTimeoutError("resolve", h.resolveTimeout)
		}
		result := ResultError
		if errors.IsNotFound(err) {
			result = ResultNotFound
		}
		h.metrics.ObserveResolve(result, time.Since(start))

		logger := logging.FromContext(r.Context())
		if result == ResultError {
			logger.Error().Err(err).Str("query", query).Msg("resolve failed")
		} else {
			logger.Info().Err(err).Str("query", query).Msg("species not found")
		}
		response.ErrorFromType(w, err)
		return
	}

	result := ResultResearched
	if profile.FromStore {
		result = ResultStore
	}
	h.metrics.ObserveResolve(result, time.Since(start))

	h.cache.Set(query, profile)
	h.cache.Set(profile.Entity.ID, profile)
	response.OK(w, profile)
}
