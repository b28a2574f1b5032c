// Package ingest holds the value types describing snapshot ingestion runs.
package ingest

import (
	"time"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsFinal reports whether the run has ended.
func (s Status) IsFinal() bool { return s == StatusSucceeded || s == StatusFailed }

// Counts tallies what a run did to the store.
type Counts struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	History   int `json:"history"` // rows appended to the daily history collections
}

// Processed returns the number of records read from the snapshot.
func (c Counts) Processed() int { return c.Inserted + c.Updated + c.Unchanged + c.Failed }

// Run is one ingestion attempt as recorded in the ledger.
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       Status     `json:"status"`
	SnapshotDate string     `json:"snapshot_date,omitempty"`
	Counts       Counts     `json:"counts"`
	Error        string     `json:"error,omitempty"`
}

// Duration is the run's wall time, zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Snapshot is one downloaded bulk export. Date is the export's day
// (YYYY-MM-DD) and keys the daily history rows.
type Snapshot struct {
	Date    string
	Records []*document.Document
}
