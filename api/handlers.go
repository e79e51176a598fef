/*
handlers.go - HTTP handler implementations

PURPOSE:
  Connects the refresh engine and the store to HTTP. Read endpoints for
  at-risk accounts and segments serve the cached snapshot when fresh and
  fall back to an on-demand refresh when it is missing or expired, so a
  cold start still answers.

ERROR MAPPING:
  crm.IsNotFound  -> 404
  bad input       -> 400
  everything else -> 500

SEE ALSO:
  - server.go: route wiring
  - scheduler.go: the background refresh loop
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/crm"
	"github.com/warp/revenue-engine/engine"
	"github.com/warp/revenue-engine/store/sqlite"
)

// Handler holds the API dependencies.
type Handler struct {
	Store  *sqlite.Store
	Engine *engine.Engine

	// DefaultYear is the target year used when a request doesn't specify
	// one. Zero means "the current year at request time".
	DefaultYear int

	mu          sync.Mutex
	lastRefresh *engine.Result
}

// NewHandler creates the API handler.
func NewHandler(store *sqlite.Store, eng *engine.Engine) *Handler {
	return &Handler{Store: store, Engine: eng}
}

func (h *Handler) targetYear(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("year"); raw != "" {
		var year int
		if _, err := fmt.Sscanf(raw, "%d", &year); err != nil || year < 1900 || year > 9999 {
			return 0, fmt.Errorf("invalid year %q", raw)
		}
		return year, nil
	}
	if h.DefaultYear != 0 {
		return h.DefaultYear, nil
	}
	return time.Now().Year(), nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// ListAccounts returns every account with its last computed segment.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, accountToDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns one account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := crm.AccountID(chi.URLParam(r, "id"))
	account, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToDTO(*account))
}

// =============================================================================
// AT-RISK + DUPLICATES
// =============================================================================

// ListAtRisk serves the cached at-risk snapshot, refreshing on demand when
// the cache is cold or expired.
func (h *Handler) ListAtRisk(w http.ResponseWriter, r *http.Request) {
	h.serveSnapshot(w, r, cache.KeyAtRisk)
}

// ListSegments serves the cached per-year segment map.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	year, err := h.targetYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.serveSnapshot(w, r, cache.SegmentsKey(year))
}

func (h *Handler) serveSnapshot(w http.ResponseWriter, r *http.Request, key string) {
	snapshot, err := h.Engine.Cache.Read(r.Context(), key)
	if err != nil {
		if !errors.Is(err, cache.ErrSnapshotNotFound) && !errors.Is(err, cache.ErrSnapshotExpired) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		year, yerr := h.targetYear(r)
		if yerr != nil {
			writeError(w, http.StatusBadRequest, yerr)
			return
		}
		if _, err := h.refresh(r, year); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if snapshot, err = h.Engine.Cache.Read(r.Context(), key); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(snapshot.Data)
}

// ListDuplicates returns duplicate groups, optionally filtered by
// ?status=detected|resolved.
func (h *Handler) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListDuplicateGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := groups[:0]
		for _, g := range groups {
			if string(g.Status) == status {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}
	writeJSON(w, http.StatusOK, groups)
}

// ResolveDuplicate marks a duplicate group resolved.
func (h *Handler) ResolveDuplicate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.ResolveDuplicateGroup(r.Context(), id, time.Now()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SNOOZES
// =============================================================================

// CreateSnooze suppresses at-risk reporting for an account.
func (h *Handler) CreateSnooze(w http.ResponseWriter, r *http.Request) {
	var req CreateSnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, errors.New("account_id is required"))
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid expires_at: %w", err))
		return
	}

	snooze := crm.Snooze{
		ID:        crm.SnoozeID(uuid.NewString()),
		AccountID: crm.AccountID(req.AccountID),
		ExpiresAt: expiresAt,
	}
	if err := h.Store.SaveSnooze(r.Context(), snooze); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, SnoozeDTO{
		ID:        string(snooze.ID),
		AccountID: string(snooze.AccountID),
		ExpiresAt: snooze.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// DeleteSnooze removes a snooze.
func (h *Handler) DeleteSnooze(w http.ResponseWriter, r *http.Request) {
	id := crm.SnoozeID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteSnooze(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerRefresh runs an explicit refresh, bypassing the TTL.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	year, err := h.targetYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.refresh(r, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshToDTO(result))
}

// LastRefresh returns the most recent refresh summary, if any.
func (h *Handler) LastRefresh(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	last := h.lastRefresh
	h.mu.Unlock()

	if last == nil {
		writeError(w, http.StatusNotFound, errors.New("no refresh has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, refreshToDTO(last))
}

func (h *Handler) refresh(r *http.Request, year int) (*engine.Result, error) {
	result, err := h.Engine.Refresh(r.Context(), year)
	if err != nil {
		log.Printf("[API] refresh failed: %v", err)
		return nil, err
	}
	h.mu.Lock()
	h.lastRefresh = result
	h.mu.Unlock()
	return result, nil
}

func refreshToDTO(result *engine.Result) RefreshResponse {
	return RefreshResponse{
		RunID:           result.RunID,
		TargetYear:      result.TargetYear,
		StartedAt:       result.StartedAt.UTC().Format(time.RFC3339),
		AccountsAtRisk:  len(result.AtRisk),
		NewGroups:       len(result.NewGroups),
		SegmentsChanged: result.SegmentsChanged,
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if crm.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
