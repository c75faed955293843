// Package models holds the rows of the update history database.
package models

import "time"

// UpdateCheck is one per-package update check.
type UpdateCheck struct {
	ID            string    `db:"id" json:"id"`
	DID           string    `db:"did" json:"did"`
	Kind          string    `db:"kind" json:"kind"`
	RelativePath  string    `db:"relative_path" json:"relative_path"`
	LocalVersion  string    `db:"local_version" json:"local_version"`
	RemoteVersion string    `db:"remote_version" json:"remote_version,omitempty"`
	Outcome       string    `db:"outcome" json:"outcome"` // "update", "no_update", "error", "backoff"
	ErrorKind     string    `db:"error_kind" json:"error_kind,omitempty"`
	Error         string    `db:"error" json:"error,omitempty"`
	DurationMS    int64     `db:"duration_ms" json:"duration_ms"`
	CheckedAt     time.Time `db:"checked_at" json:"checked_at"`
}

// OutcomeCount is the number of checks with one outcome.
type OutcomeCount struct {
	Outcome string `db:"outcome" json:"outcome"`
	Count   int64  `db:"count" json:"count"`
}
