package models

import "time"

// Install is the result of one install run.
type Install struct {
	ID          string    `db:"id" json:"id"`
	DID         string    `db:"did" json:"did"`
	Kind        string    `db:"kind" json:"kind,omitempty"`
	Version     string    `db:"version" json:"version,omitempty"`
	Destination string    `db:"destination" json:"destination,omitempty"`
	FinalState  string    `db:"final_state" json:"final_state"`
	ErrorKind   string    `db:"error_kind" json:"error_kind,omitempty"`
	Error       string    `db:"error" json:"error,omitempty"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	FinishedAt  time.Time `db:"finished_at" json:"finished_at"`
}

// Succeeded reports whether the run reached the installed state.
func (i *Install) Succeeded() bool { return i.FinalState == "installed" }
