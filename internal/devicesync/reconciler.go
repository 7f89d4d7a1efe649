package devicesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitgate/fitgate/internal/domain/attendance"
	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/tenant"
	"github.com/fitgate/fitgate/internal/infra/metrics"
)

var (
	// ErrReconciliationBusy means another batch for the same site is in
	// flight. The bridge retries on the next cycle.
	ErrReconciliationBusy = errors.New("devicesync: reconciliation already running for site")
	// ErrCheckpointRegression means a batch carried log ids below the
	// checkpoint's tolerance window. That signals checkpoint corruption,
	// not ordinary redelivery, and needs an operator.
	ErrCheckpointRegression = errors.New("devicesync: device log id regressed past checkpoint tolerance")
)

const maxLoggedErrors = 10

type BrandSource interface {
	GetBrand(ctx context.Context, id int64) (*tenant.Brand, error)
}

type MemberSource interface {
	GetByFingerprint(ctx context.Context, brandID, fingerprintID int64) (*members.Member, error)
	PendingEnrollment(ctx context.Context, brandID int64) ([]members.Member, error)
	ConfirmEnrollment(ctx context.Context, memberID, fingerprintID int64) error
}

type Admitter interface {
	CanAdmit(ctx context.Context, m *members.Member, asOf time.Time) (attendance.Decision, error)
}

type RecordStore interface {
	Insert(ctx context.Context, rec *attendance.Record) (bool, error)
}

type CheckpointStore interface {
	Get(ctx context.Context, siteID int64) (int64, error)
	Advance(ctx context.Context, siteID, logID int64) error
}

type LogStore interface {
	Insert(ctx context.Context, entry *SyncLog) error
}

type Alerter interface {
	Alert(ctx context.Context, text string)
}

// Reconciler merges device-origin attendance batches into the cloud ledger
// exactly once per (site, device log id). Batches for different sites run in
// parallel; at most one batch per site is in flight.
type Reconciler struct {
	brands      BrandSource
	members     MemberSource
	admitter    Admitter
	records     RecordStore
	checkpoints CheckpointStore
	logs        LogStore
	alerter     Alerter
	log         *slog.Logger

	tolerance int64
	locks     siteLocks
}

func NewReconciler(
	brands BrandSource,
	members MemberSource,
	admitter Admitter,
	records RecordStore,
	checkpoints CheckpointStore,
	logs LogStore,
	alerter Alerter,
	log *slog.Logger,
	tolerance int64,
) *Reconciler {
	return &Reconciler{
		brands:      brands,
		members:     members,
		admitter:    admitter,
		records:     records,
		checkpoints: checkpoints,
		logs:        logs,
		alerter:     alerter,
		log:         log,
		tolerance:   tolerance,
	}
}

// ReconcileBatch processes one batch for one site. Every event gets a
// terminal disposition (record inserted, flagged denial, or per-event error)
// before the checkpoint advances; the checkpoint advance is the last write.
func (r *Reconciler) ReconcileBatch(ctx context.Context, scope tenant.Scope, events []Event) (*Result, error) {
	mu := r.locks.get(scope.SiteID)
	if !mu.TryLock() {
		return nil, ErrReconciliationBusy
	}
	defer mu.Unlock()

	res := &Result{BatchID: uuid.New(), SiteID: scope.SiteID, Status: StatusSuccess}

	checkpoint, err := r.checkpoints.Get(ctx, scope.SiteID)
	if err != nil {
		return nil, err
	}
	res.Checkpoint = checkpoint

	if len(events) == 0 {
		r.writeLog(ctx, scope, res, SyncTypeAttendance, nil)
		return res, nil
	}

	evs := make([]Event, len(events))
	copy(evs, events)
	sort.Slice(evs, func(i, j int) bool { return evs[i].DeviceLogID < evs[j].DeviceLogID })

	if evs[0].DeviceLogID <= checkpoint-r.tolerance {
		res.Status = StatusFailed
		msg := fmt.Sprintf("log id %d is %d behind checkpoint %d (tolerance %d)",
			evs[0].DeviceLogID, checkpoint-evs[0].DeviceLogID, checkpoint, r.tolerance)
		res.Errors = append(res.Errors, EventError{DeviceLogID: evs[0].DeviceLogID, Message: msg})
		r.writeLog(ctx, scope, res, SyncTypeAttendance, nil)
		metrics.SyncBatches.WithLabelValues(string(StatusFailed)).Inc()
		if r.alerter != nil {
			r.alerter.Alert(ctx, fmt.Sprintf("sync batch rejected for site %d: %s", scope.SiteID, msg))
		}
		r.log.Error("sync batch rejected",
			"site_id", scope.SiteID,
			"batch_id", res.BatchID,
			"checkpoint", checkpoint,
			"min_log_id", evs[0].DeviceLogID,
		)
		return res, ErrCheckpointRegression
	}

	brand, err := r.brands.GetBrand(ctx, scope.BrandID)
	if err != nil {
		return nil, err
	}
	strict := brand != nil && brand.StrictAdmission

	var recorded, flagged int
	for i := range evs {
		if err := ctx.Err(); err != nil {
			// Cancelled mid-batch: already-inserted records stay (the
			// idempotency key absorbs redelivery), checkpoint untouched.
			return nil, err
		}
		ev := evs[i]
		outcome, eventErr := r.applyEvent(ctx, scope, ev, strict)
		switch outcome {
		case outcomeRecorded:
			recorded++
			res.Synced++
		case outcomeFlagged:
			flagged++
			res.Synced++
		case outcomeSkipped:
			res.Skipped++
		case outcomeError:
			res.Errored++
			res.Errors = append(res.Errors, EventError{DeviceLogID: ev.DeviceLogID, Message: eventErr})
		}
	}

	maxID := evs[len(evs)-1].DeviceLogID
	if maxID > checkpoint {
		if err := r.checkpoints.Advance(ctx, scope.SiteID, maxID); err != nil {
			return nil, err
		}
		res.Checkpoint = maxID
	}

	if res.Errored > 0 {
		res.Status = StatusPartial
	}
	last := maxID
	r.writeLog(ctx, scope, res, SyncTypeAttendance, &last)

	metrics.SyncBatches.WithLabelValues(string(res.Status)).Inc()
	metrics.SyncEvents.WithLabelValues("recorded").Add(float64(recorded))
	metrics.SyncEvents.WithLabelValues("flagged").Add(float64(flagged))
	metrics.SyncEvents.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.SyncEvents.WithLabelValues("error").Add(float64(res.Errored))

	r.log.Info("sync batch reconciled",
		"site_id", scope.SiteID,
		"batch_id", res.BatchID,
		"synced", res.Synced,
		"skipped", res.Skipped,
		"errored", res.Errored,
		"checkpoint", res.Checkpoint,
		"status", res.Status,
	)
	return res, nil
}

type eventOutcome int

const (
	outcomeRecorded eventOutcome = iota
	outcomeFlagged
	outcomeSkipped
	outcomeError
)

func (r *Reconciler) applyEvent(ctx context.Context, scope tenant.Scope, ev Event, strict bool) (eventOutcome, string) {
	m, err := r.members.GetByFingerprint(ctx, scope.BrandID, ev.FingerprintID)
	if err != nil {
		return outcomeError, err.Error()
	}
	if m == nil {
		return outcomeError, fmt.Sprintf("unknown fingerprint %d", ev.FingerprintID)
	}

	d, err := r.admitter.CanAdmit(ctx, m, ev.Timestamp)
	if err != nil {
		return outcomeError, err.Error()
	}
	// Strict brands drop denied check-ins silently: terminal for the
	// event, no record, no error.
	if !d.Admitted && strict {
		return outcomeSkipped, ""
	}

	siteID := scope.SiteID
	logID := ev.DeviceLogID
	rec := &attendance.Record{
		MemberID:    m.ID,
		BrandID:     scope.BrandID,
		SiteID:      &siteID,
		CheckIn:     ev.Timestamp,
		Source:      attendance.SourceFingerprint,
		DeviceLogID: &logID,
	}
	if d.Subscription != nil {
		rec.SubscriptionID = &d.Subscription.ID
	}
	if !d.Admitted {
		rec.HasWarning = true
		rec.WarningMessage = d.Reason.Message()
	}

	// A duplicate insert means the record already landed on an earlier
	// delivery. That is success, not an error.
	if _, err := r.records.Insert(ctx, rec); err != nil {
		return outcomeError, err.Error()
	}
	if !d.Admitted {
		return outcomeFlagged, ""
	}
	return outcomeRecorded, ""
}

// PendingEnrollments lists members the device side still needs to enroll.
func (r *Reconciler) PendingEnrollments(ctx context.Context, brandID int64) ([]members.Member, error) {
	return r.members.PendingEnrollment(ctx, brandID)
}

// ConfirmEnrollment marks a member enrolled after the device confirmed the
// fingerprint. Idempotent for the same id; a conflicting id surfaces
// members.ErrEnrollmentConflict.
func (r *Reconciler) ConfirmEnrollment(ctx context.Context, scope tenant.Scope, memberID, fingerprintID int64) error {
	if err := r.members.ConfirmEnrollment(ctx, memberID, fingerprintID); err != nil {
		return err
	}
	entry := &SyncLog{
		BatchID:       uuid.New(),
		BrandID:       scope.BrandID,
		SyncType:      SyncTypeEnrollment,
		RecordsSynced: 1,
		Status:        StatusSuccess,
	}
	if err := r.logs.Insert(ctx, entry); err != nil {
		r.log.Error("enrollment sync log write failed", "member_id", memberID, "err", err)
	}
	return nil
}

func (r *Reconciler) writeLog(ctx context.Context, scope tenant.Scope, res *Result, syncType string, lastID *int64) {
	var msgs []string
	for i, e := range res.Errors {
		if i == maxLoggedErrors {
			break
		}
		msgs = append(msgs, fmt.Sprintf("log %d: %s", e.DeviceLogID, e.Message))
	}
	siteID := scope.SiteID
	entry := &SyncLog{
		BatchID:       res.BatchID,
		BrandID:       scope.BrandID,
		SiteID:        &siteID,
		SyncType:      syncType,
		RecordsSynced: res.Synced,
		LastSyncID:    lastID,
		Status:        res.Status,
		ErrorMessage:  strings.Join(msgs, "\n"),
	}
	if err := r.logs.Insert(ctx, entry); err != nil {
		r.log.Error("sync log write failed", "site_id", scope.SiteID, "batch_id", res.BatchID, "err", err)
	}
}

type siteLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (l *siteLocks) get(siteID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[int64]*sync.Mutex)
	}
	mu, ok := l.m[siteID]
	if !ok {
		mu = &sync.Mutex{}
		l.m[siteID] = mu
	}
	return mu
}
