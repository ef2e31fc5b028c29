package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/domain"
	"github.com/kessanview/kessanview/internal/modules/analysis"
	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
)

// Handlers serves the disclosure read API and sync control endpoints.
type Handlers struct {
	companies *universe.CompanyRepository
	snapshots domain.SnapshotStore
	scores    domain.ScoreStore
	deltas    *analysis.DeltaComputer
	signals   *analysis.Signals
	recompute *scoring.RecomputeService
	scheduler *disclosures.SyncScheduler
	log       zerolog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(
	companies *universe.CompanyRepository,
	snapshots domain.SnapshotStore,
	scores domain.ScoreStore,
	deltas *analysis.DeltaComputer,
	signals *analysis.Signals,
	recompute *scoring.RecomputeService,
	scheduler *disclosures.SyncScheduler,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		companies: companies,
		snapshots: snapshots,
		scores:    scores,
		deltas:    deltas,
		signals:   signals,
		recompute: recompute,
		scheduler: scheduler,
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

// rankedEntry is one row of the ranked listing.
type rankedEntry struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name,omitempty"`
	Period      string `json:"period"`
	Score       int    `json:"score"`
	Category    string `json:"category"`
}

// HandleRanked serves GET /api/ranked?date=&min_score=&limit=&offset=.
func (h *Handlers) HandleRanked(w http.ResponseWriter, r *http.Request) {
	targetDate := r.URL.Query().Get("date")
	if targetDate == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}
	if _, err := time.Parse("2006-01-02", targetDate); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	minScore := queryInt(r, "min_score", 0)
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	index, err := h.recompute.Index(targetDate)
	if err != nil {
		h.log.Error().Err(err).Str("date", targetDate).Msg("Failed to load rank index")
		writeError(w, http.StatusInternalServerError, "failed to load rankings")
		return
	}

	records := index.Query(minScore, offset, limit)
	entries := make([]rankedEntry, 0, len(records))
	for _, record := range records {
		entry := rankedEntry{
			CompanyID: record.CompanyID,
			Period:    record.Period.String(),
			Score:     record.Score,
			Category:  record.Category,
		}
		if company, err := h.companies.Get(record.CompanyID); err == nil && company != nil {
			entry.CompanyName = company.Name
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":         targetDate,
		"count":        len(entries),
		"total":        index.Len(),
		"results":      entries,
		"distribution": index.Distribution(),
	})
}

// HandleDetail serves GET /api/disclosures/{code}/{period}.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	period, err := domain.ParsePeriodKey(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must look like 2025Q3")
		return
	}

	snapshot, err := h.snapshots.Get(code, period)
	if err != nil {
		h.log.Error().Err(err).Str("code", code).Msg("Failed to load snapshot")
		writeError(w, http.StatusInternalServerError, "failed to load disclosure")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "disclosure not found")
		return
	}

	delta, err := h.deltas.Compute(snapshot)
	if err != nil {
		h.log.Error().Err(err).Str("code", code).Msg("Failed to compute delta")
		writeError(w, http.StatusInternalServerError, "failed to compute deltas")
		return
	}

	score, err := h.scores.Get(code, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load score")
		return
	}

	annotations, err := h.signals.Detect(snapshot, delta)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to detect signals")
		return
	}

	response := map[string]interface{}{
		"snapshot": snapshot,
		"delta":    delta,
		"signals":  annotations,
	}
	if score != nil {
		response["score"] = score
	}
	if company, err := h.companies.Get(code); err == nil && company != nil {
		response["company"] = company
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleSyncDate serves POST /api/sync/{date}: runs one date's sync in the
// background and returns immediately.
func (h *Handlers) HandleSyncDate(w http.ResponseWriter, r *http.Request) {
	targetDate := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", targetDate); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if err := h.scheduler.SyncDate(ctx, targetDate); err != nil {
			h.log.Error().Err(err).Str("target_date", targetDate).Msg("Triggered sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "started",
		"target_date": targetDate,
	})
}

// syncRangeRequest is the body of POST /api/sync/range.
type syncRangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HandleSyncRange serves POST /api/sync/range.
func (h *Handlers) HandleSyncRange(w http.ResponseWriter, r *http.Request) {
	var req syncRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to precedes from")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 12*time.Hour)
		defer cancel()
		if err := h.scheduler.SyncRange(ctx, req.From, req.To); err != nil {
			h.log.Error().Err(err).Str("from", req.From).Str("to", req.To).Msg("Triggered range sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"from":   req.From,
		"to":     req.To,
	})
}

// HandleSyncStatus serves GET /api/sync/{date}/status.
func (h *Handlers) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	targetDate := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", targetDate); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	cursor, err := h.scheduler.Status(targetDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sync status")
		return
	}
	if cursor == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"target_date": targetDate,
			"state":       string(domain.CursorNotStarted),
		})
		return
	}
	writeJSON(w, http.StatusOK, cursor)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
