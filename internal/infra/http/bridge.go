package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fitgate/fitgate/internal/devicesync"
	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/tenant"
)

type Reconciler interface {
	ReconcileBatch(ctx context.Context, scope tenant.Scope, events []devicesync.Event) (*devicesync.Result, error)
	PendingEnrollments(ctx context.Context, brandID int64) ([]members.Member, error)
	ConfirmEnrollment(ctx context.Context, scope tenant.Scope, memberID, fingerprintID int64) error
}

type SiteSource interface {
	GetSite(ctx context.Context, id int64) (*tenant.Site, error)
}

type SyncLogSource interface {
	Last(ctx context.Context, brandID int64) (*devicesync.SyncLog, error)
}

type BridgeStatusStore interface {
	Heartbeat(ctx context.Context, b *devicesync.BridgeStatus, syncCount int64) error
}

// BridgeHandler is the HTTP face the device bridge talks to. Everything is
// JSON and authenticated by a shared API key.
type BridgeHandler struct {
	apiKey     string
	reconciler Reconciler
	sites      SiteSource
	syncLogs   SyncLogSource
	bridges    BridgeStatusStore
	log        *slog.Logger
}

func NewBridgeHandler(apiKey string, reconciler Reconciler, sites SiteSource, syncLogs SyncLogSource, bridges BridgeStatusStore, log *slog.Logger) *BridgeHandler {
	return &BridgeHandler{
		apiKey:     apiKey,
		reconciler: reconciler,
		sites:      sites,
		syncLogs:   syncLogs,
		bridges:    bridges,
		log:        log,
	}
}

func (h *BridgeHandler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *BridgeHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type syncAttendanceRequest struct {
	SiteID  int64              `json:"site_id"`
	Records []devicesync.Event `json:"records"`
}

func (h *BridgeHandler) SyncAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req syncAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SiteID == 0 {
		writeError(w, http.StatusBadRequest, "site_id is required")
		return
	}
	site, err := h.sites.GetSite(ctx, req.SiteID)
	if err != nil {
		h.serverError(w, "site lookup failed", err)
		return
	}
	if site == nil || !site.IsActive {
		writeError(w, http.StatusBadRequest, "unknown or inactive site")
		return
	}

	scope := tenant.Scope{BrandID: site.BrandID, SiteID: site.ID}
	res, err := h.reconciler.ReconcileBatch(ctx, scope, req.Records)
	switch {
	case errors.Is(err, devicesync.ErrReconciliationBusy):
		writeError(w, http.StatusConflict, "reconciliation already running for site")
		return
	case errors.Is(err, devicesync.ErrCheckpointRegression):
		// Surfaced, never absorbed: the bridge must stop and page an operator.
		writeJSON(w, http.StatusConflict, res)
		return
	case err != nil:
		h.serverError(w, "reconcile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BridgeHandler) PendingEnrollments(w http.ResponseWriter, r *http.Request) {
	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil || brandID <= 0 {
		writeError(w, http.StatusBadRequest, "brand_id is required")
		return
	}
	pending, err := h.reconciler.PendingEnrollments(r.Context(), brandID)
	if err != nil {
		h.serverError(w, "pending enrollments failed", err)
		return
	}

	type pendingMember struct {
		ID            int64  `json:"id"`
		FingerprintID *int64 `json:"fingerprint_id"`
		Name          string `json:"name"`
		Phone         string `json:"phone"`
	}
	out := make([]pendingMember, 0, len(pending))
	for _, m := range pending {
		out = append(out, pendingMember{ID: m.ID, FingerprintID: m.FingerprintID, Name: m.Name, Phone: m.Phone})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type markEnrolledRequest struct {
	BrandID       int64 `json:"brand_id"`
	MemberID      int64 `json:"member_id"`
	FingerprintID int64 `json:"fingerprint_id"`
}

func (h *BridgeHandler) MarkEnrolled(w http.ResponseWriter, r *http.Request) {
	var req markEnrolledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MemberID == 0 || req.FingerprintID == 0 {
		writeError(w, http.StatusBadRequest, "member_id and fingerprint_id are required")
		return
	}

	scope := tenant.Scope{BrandID: req.BrandID}
	err := h.reconciler.ConfirmEnrollment(r.Context(), scope, req.MemberID, req.FingerprintID)
	switch {
	case errors.Is(err, members.ErrEnrollmentConflict):
		writeError(w, http.StatusConflict, "fingerprint id already bound to another member")
		return
	case err != nil:
		h.serverError(w, "confirm enrollment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"member_id":      req.MemberID,
		"fingerprint_id": req.FingerprintID,
	})
}

type heartbeatRequest struct {
	SiteID        int64  `json:"site_id"`
	ComputerName  string `json:"computer_name"`
	IPAddress     string `json:"ip_address"`
	OSInfo        string `json:"os_info"`
	DatabasePath  string `json:"database_path"`
	DatabaseFound bool   `json:"database_found"`
	SyncCount     int64  `json:"sync_count"`
	Error         string `json:"error"`
}

func (h *BridgeHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SiteID == 0 {
		writeError(w, http.StatusBadRequest, "site_id is required")
		return
	}
	site, err := h.sites.GetSite(r.Context(), req.SiteID)
	if err != nil {
		h.serverError(w, "site lookup failed", err)
		return
	}
	if site == nil {
		writeError(w, http.StatusBadRequest, "unknown site")
		return
	}

	name := req.ComputerName
	if name == "" {
		name = "unknown"
	}
	status := &devicesync.BridgeStatus{
		BrandID:       site.BrandID,
		SiteID:        site.ID,
		ComputerName:  name,
		IPAddress:     req.IPAddress,
		OSInfo:        req.OSInfo,
		DatabasePath:  req.DatabasePath,
		DatabaseFound: req.DatabaseFound,
		LastError:     req.Error,
	}
	if err := h.bridges.Heartbeat(r.Context(), status, req.SyncCount); err != nil {
		h.serverError(w, "heartbeat upsert failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"server_time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *BridgeHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil || brandID <= 0 {
		writeError(w, http.StatusBadRequest, "brand_id is required")
		return
	}
	last, err := h.syncLogs.Last(r.Context(), brandID)
	if err != nil {
		h.serverError(w, "sync status lookup failed", err)
		return
	}
	if last == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "never"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            string(last.Status),
		"last_sync":         last.SyncedAt.UTC().Format(time.RFC3339),
		"last_sync_records": last.RecordsSynced,
	})
}

func (h *BridgeHandler) serverError(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
