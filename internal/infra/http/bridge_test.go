package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitgate/fitgate/internal/devicesync"
	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/tenant"
)

type fakeReconciler struct {
	result *devicesync.Result
	err    error

	gotScope  tenant.Scope
	gotEvents []devicesync.Event

	confirmErr error
}

func (f *fakeReconciler) ReconcileBatch(_ context.Context, scope tenant.Scope, events []devicesync.Event) (*devicesync.Result, error) {
	f.gotScope = scope
	f.gotEvents = events
	return f.result, f.err
}

func (f *fakeReconciler) PendingEnrollments(_ context.Context, _ int64) ([]members.Member, error) {
	fp := int64(7)
	return []members.Member{{ID: 3, Name: "Anna", Phone: "+700", FingerprintID: &fp}}, nil
}

func (f *fakeReconciler) ConfirmEnrollment(_ context.Context, _ tenant.Scope, _, _ int64) error {
	return f.confirmErr
}

type fakeSites struct{ sites map[int64]*tenant.Site }

func (f *fakeSites) GetSite(_ context.Context, id int64) (*tenant.Site, error) {
	return f.sites[id], nil
}

type fakeSyncLogs struct{ last *devicesync.SyncLog }

func (f *fakeSyncLogs) Last(_ context.Context, _ int64) (*devicesync.SyncLog, error) {
	return f.last, nil
}

type fakeBridges struct{ got *devicesync.BridgeStatus }

func (f *fakeBridges) Heartbeat(_ context.Context, b *devicesync.BridgeStatus, _ int64) error {
	f.got = b
	return nil
}

func newTestServer(t *testing.T, rec *fakeReconciler, sites *fakeSites, logs *fakeSyncLogs, bridges *fakeBridges) *httptest.Server {
	t.Helper()
	h := NewBridgeHandler("secret", rec, sites, logs, bridges, slog.New(slog.DiscardHandler))
	srv := New(":0", false, h, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestBridgeRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t, &fakeReconciler{}, &fakeSites{}, &fakeSyncLogs{}, &fakeBridges{})

	for _, key := range []string{"", "wrong"} {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/bridge/health", key, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("key %q: status = %d, want 401", key, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/bridge/health", "secret", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", resp.StatusCode)
	}
}

func TestSyncAttendance(t *testing.T) {
	rec := &fakeReconciler{result: &devicesync.Result{SiteID: 5, Synced: 2, Status: devicesync.StatusSuccess, Checkpoint: 12}}
	sites := &fakeSites{sites: map[int64]*tenant.Site{
		5: {ID: 5, BrandID: 2, IsActive: true},
	}}
	ts := newTestServer(t, rec, sites, &fakeSyncLogs{}, &fakeBridges{})

	body := map[string]any{
		"site_id": 5,
		"records": []map[string]any{
			{"log_id": 11, "fingerprint_id": 100, "timestamp": time.Now().UTC().Format(time.RFC3339)},
			{"log_id": 12, "fingerprint_id": 101, "timestamp": time.Now().UTC().Format(time.RFC3339)},
		},
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bridge/attendance", "secret", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if rec.gotScope.BrandID != 2 || rec.gotScope.SiteID != 5 {
		t.Fatalf("scope = %+v, want brand 2 site 5", rec.gotScope)
	}
	if len(rec.gotEvents) != 2 || rec.gotEvents[0].DeviceLogID != 11 {
		t.Fatalf("events = %+v", rec.gotEvents)
	}

	var out devicesync.Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.Synced != 2 || out.Checkpoint != 12 {
		t.Fatalf("result = %+v", out)
	}
}

func TestSyncAttendanceUnknownSite(t *testing.T) {
	ts := newTestServer(t, &fakeReconciler{}, &fakeSites{sites: map[int64]*tenant.Site{}}, &fakeSyncLogs{}, &fakeBridges{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bridge/attendance", "secret", map[string]any{"site_id": 9})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSyncAttendanceBusyIsConflict(t *testing.T) {
	rec := &fakeReconciler{err: devicesync.ErrReconciliationBusy}
	sites := &fakeSites{sites: map[int64]*tenant.Site{5: {ID: 5, BrandID: 2, IsActive: true}}}
	ts := newTestServer(t, rec, sites, &fakeSyncLogs{}, &fakeBridges{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bridge/attendance", "secret", map[string]any{"site_id": 5})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestMarkEnrolledConflict(t *testing.T) {
	rec := &fakeReconciler{confirmErr: members.ErrEnrollmentConflict}
	ts := newTestServer(t, rec, &fakeSites{}, &fakeSyncLogs{}, &fakeBridges{})

	body := map[string]any{"brand_id": 2, "member_id": 3, "fingerprint_id": 7}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bridge/members/enrolled", "secret", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHeartbeat(t *testing.T) {
	bridges := &fakeBridges{}
	sites := &fakeSites{sites: map[int64]*tenant.Site{5: {ID: 5, BrandID: 2, IsActive: true}}}
	ts := newTestServer(t, &fakeReconciler{}, sites, &fakeSyncLogs{}, bridges)

	body := map[string]any{"site_id": 5, "computer_name": "front-desk", "sync_count": 3}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bridge/heartbeat", "secret", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if bridges.got == nil || bridges.got.SiteID != 5 || bridges.got.ComputerName != "front-desk" {
		t.Fatalf("heartbeat = %+v", bridges.got)
	}
}

func TestSyncStatusNever(t *testing.T) {
	ts := newTestServer(t, &fakeReconciler{}, &fakeSites{}, &fakeSyncLogs{}, &fakeBridges{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/bridge/sync-status?brand_id=2", "secret", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "never" {
		t.Fatalf("status = %v, want never", out["status"])
	}
}
