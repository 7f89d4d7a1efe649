package devicesync

import (
	"time"

	"github.com/google/uuid"
)

// Event is one check-in produced by the attendance device. DeviceLogID is
// monotonically increasing per site and serves as the checkpoint key.
type Event struct {
	DeviceLogID   int64     `json:"log_id"`
	FingerprintID int64     `json:"fingerprint_id"`
	Timestamp     time.Time `json:"timestamp"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

type EventError struct {
	DeviceLogID int64  `json:"log_id"`
	Message     string `json:"message"`
}

// Result summarizes one reconciled batch.
type Result struct {
	BatchID    uuid.UUID    `json:"batch_id"`
	SiteID     int64        `json:"site_id"`
	Synced     int          `json:"synced"`
	Skipped    int          `json:"skipped"`
	Errored    int          `json:"errored"`
	Checkpoint int64        `json:"checkpoint"`
	Status     Status       `json:"status"`
	Errors     []EventError `json:"errors,omitempty"`
}

const (
	SyncTypeAttendance = "attendance"
	SyncTypeEnrollment = "enrollment"
)

type SyncLog struct {
	ID            int64
	BatchID       uuid.UUID
	BrandID       int64
	SiteID        *int64
	SyncType      string
	RecordsSynced int
	LastSyncID    *int64
	Status        Status
	ErrorMessage  string
	SyncedAt      time.Time
}

// BridgeStatus tracks the bridge process that pulls events off a device and
// pushes them to us. Keyed by site and computer name.
type BridgeStatus struct {
	ID            int64
	BrandID       int64
	SiteID        int64
	ComputerName  string
	IPAddress     string
	OSInfo        string
	DatabasePath  string
	DatabaseFound bool
	IsOnline      bool
	LastHeartbeat time.Time
	FirstSeen     time.Time
	TotalSyncs    int64
	LastError     string
}
