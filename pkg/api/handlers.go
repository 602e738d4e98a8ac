package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brandvis/mentionoor/pkg/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// defaultModels is used when a run request does not name any models.
var defaultModels = []string{"mock-model"}

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// --- Request / response payloads ---

type createRunRequest struct {
	Brands  []string `json:"brands"`
	Prompts []string `json:"prompts"`
	Models  []string `json:"models"`
	Notes   string   `json:"notes"`
}

type runResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Brands    []string  `json:"brands"`
	Prompts   []string  `json:"prompts"`
}

type mentionResponse struct {
	BrandName     string `json:"brand_name"`
	Mentioned     bool   `json:"mentioned"`
	Count         int    `json:"count"`
	PositionIndex *int   `json:"position_index"`
}

type unitResponse struct {
	ID        uint              `json:"id"`
	Prompt    string            `json:"prompt"`
	Model     string            `json:"model"`
	RawText   string            `json:"raw_text,omitempty"`
	LatencyMs float64           `json:"latency_ms"`
	Error     *string           `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Mentions  []mentionResponse `json:"mentions"`
}

type runDetailResponse struct {
	runResponse
	Responses []unitResponse `json:"responses"`
}

func toRunResponse(run *store.Run) runResponse {
	brands := make([]string, 0, len(run.Brands))
	for _, b := range run.Brands {
		brands = append(brands, b.Name)
	}

	prompts := make([]string, 0, len(run.Prompts))
	for _, p := range run.Prompts {
		prompts = append(prompts, p.Text)
	}

	return runResponse{
		ID:        run.ID,
		Status:    run.Status,
		Notes:     run.Notes,
		CreatedAt: run.CreatedAt,
		Brands:    brands,
		Prompts:   prompts,
	}
}

func toRunDetailResponse(run *store.Run) runDetailResponse {
	detail := runDetailResponse{
		runResponse: toRunResponse(run),
		Responses:   make([]unitResponse, 0, len(run.Responses)),
	}

	for i := range run.Responses {
		resp := &run.Responses[i]

		unit := unitResponse{
			ID:        resp.ID,
			Prompt:    resp.Prompt.Text,
			Model:     resp.Model,
			RawText:   resp.RawText,
			LatencyMs: resp.LatencyMs,
			Error:     resp.Error,
			CreatedAt: resp.CreatedAt,
			Mentions:  make([]mentionResponse, 0, len(resp.Mentions)),
		}

		for _, m := range resp.Mentions {
			unit.Mentions = append(unit.Mentions, mentionResponse{
				BrandName:     m.Brand.Name,
				Mentioned:     m.Mentioned,
				Count:         m.Count,
				PositionIndex: m.PositionIndex,
			})
		}

		detail.Responses = append(detail.Responses, unit)
	}

	return detail
}

// --- Handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateRun validates a run request, deduplicates it against
// previous submissions, and schedules processing. A resubmission of an
// identical non-failed run returns the existing run instead of
// creating a new one.
func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	brands := trimNonEmpty(req.Brands)
	prompts := trimNonEmpty(req.Prompts)
	models := trimNonEmpty(req.Models)

	if len(brands) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"at least one brand is required"})

		return
	}

	if len(prompts) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"at least one prompt is required"})

		return
	}

	if len(models) == 0 {
		models = defaultModels
	}

	hash := store.InputHash(brands, prompts, models)

	existing, err := s.store.FindDuplicateRun(r.Context(), hash)
	if err != nil {
		s.log.WithError(err).Error("Duplicate lookup failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to create run"})

		return
	}

	// A matching non-failed run satisfies the request as-is; no new
	// run and no re-scheduling.
	if existing != nil {
		writeJSON(w, http.StatusCreated, toRunResponse(existing))

		return
	}

	run, err := s.store.CreateRun(
		r.Context(), brands, prompts, req.Notes, hash,
	)
	if err != nil {
		s.log.WithError(err).Error("Run creation failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to create run"})

		return
	}

	s.orchestrator.Schedule(run.ID, models)

	writeJSON(w, http.StatusCreated, toRunResponse(run))
}

// handleListRuns returns runs ordered newest first, paginated with
// skip and limit query parameters.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	if skip < 0 {
		skip = 0
	}

	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}

	runs, err := s.store.ListRuns(r.Context(), skip, limit)
	if err != nil {
		s.log.WithError(err).Error("Run listing failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to list runs"})

		return
	}

	resp := make([]runResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, toRunResponse(&runs[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetRun returns a run with its responses and mention analysis.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Run lookup failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to get run"})

		return
	}

	writeJSON(w, http.StatusOK, toRunDetailResponse(run))
}

// handleRunSummary returns per-brand visibility aggregates for a run.
func (s *server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summary(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

		return
	}

	if err != nil {
		s.log.WithError(err).Error("Summary computation failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to compute summary"})

		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleListModels returns backend name -> available models for every
// configured backend.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.router.ListModels(r.Context()))
}

type upsertKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// handleUpsertKeys stores one provider API key encrypted at rest. Keys
// take effect for runs created after the next server restart; config
// keys always win over stored ones.
func (s *server) handleUpsertKeys(w http.ResponseWriter, r *http.Request) {
	var req upsertKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if name == "" || req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"provider and api_key are required"})

		return
	}

	sealed, err := s.box.Seal(req.APIKey)
	if err != nil {
		s.log.WithError(err).Error("Sealing provider key failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to encrypt api key"})

		return
	}

	// A sealed value identical to its input means encryption did not
	// happen. Refuse to persist plaintext.
	if sealed == req.APIKey {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to encrypt api key"})

		return
	}

	if err := s.store.UpsertProviderKey(r.Context(), name, sealed); err != nil {
		s.log.WithError(err).Error("Storing provider key failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to store api key"})

		return
	}

	s.handleListKeys(w, r)
}

// handleListKeys returns the names of providers with a stored key.
// Key material is never returned.
func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListProviderKeyNames(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Provider key listing failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to list api keys"})

		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"providers": names})
}

// --- Helpers ---

// trimNonEmpty trims whitespace and drops empty entries.
func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}

	return out
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
