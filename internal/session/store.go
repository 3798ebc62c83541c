package session

import (
	"context"
	"time"
)

// Session row statuses. Open and submitted rows block a second session for
// the same (class, date); abandoned and superseded rows do not.
const (
	StatusOpen       = "open"
	StatusSubmitted  = "submitted"
	StatusAbandoned  = "abandoned"
	StatusSuperseded = "superseded"
)

// Row is the persisted shape of one attendance session.
type Row struct {
	Ref       string    `json:"ref"`
	SubjectID string    `json:"subject_id"`
	ClassID   string    `json:"class_id"`
	RoomID    string    `json:"room_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Method    string    `json:"method,omitempty"`
	Status    string    `json:"status"`
	OpenedBy  string    `json:"opened_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence boundary for the manager. Implemented by Repo;
// tests swap in an in-memory fake.
type Store interface {
	// Active returns the ref and status of the open or submitted session for
	// (classID, date), or "" when none exists.
	Active(ctx context.Context, classID, date string) (ref, status string, err error)
	// Insert writes a new session row.
	Insert(ctx context.Context, row Row) error
	// SetMethod records the one-shot method choice.
	SetMethod(ctx context.Context, ref string, method Method) error
	// SetStatus moves a row to a new lifecycle status.
	SetStatus(ctx context.Context, ref, status string) error
	// Status reads a row's lifecycle status.
	Status(ctx context.Context, ref string) (string, error)
	// Submit writes the finalized roster and marks the row submitted, as one
	// transaction. Safe to retry.
	Submit(ctx context.Context, ref string, roster []Record, submittedAt time.Time) error
	// ClassRoster returns the full class roster for manual capture, in roll
	// number order.
	ClassRoster(ctx context.Context, classID string) ([]Record, error)
	// Find returns a session row and any submitted roster.
	Find(ctx context.Context, ref string) (Row, []Record, error)
}
