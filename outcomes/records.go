// Package outcomes is the scope-gated write surface behind the runtime
// token: progress, completed attempts, audit events, checkpoints, and signed
// asset URLs.
package outcomes

import (
	"context"
	"encoding/json"
	"time"
)

// ProgressRecord is the last-write-wins progress state for a subject in a
// course, optionally split by topic.
type ProgressRecord struct {
	CourseID  string
	SubjectID string
	Topic     string
	Pct       float64
	UpdatedAt time.Time
}

// AttemptRecord is one completed, graded attempt. When RuntimeAttemptID is
// set it is the idempotency key: a duplicate submission updates the same
// logical record instead of creating a second one.
type AttemptRecord struct {
	ID               string
	CourseID         string
	SubjectID        string
	RuntimeAttemptID string
	Score            float64
	MaxScore         float64
	Passed           bool
	SubmittedAt      time.Time
}

// EventRecord is an audit/analytics event from embedded content. Types are
// open-ended; unknown types are stored, never rejected.
type EventRecord struct {
	ID         string
	CourseID   string
	SubjectID  string
	Type       string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// CheckpointRecord is the latest saved content state for a subject in a
// course.
type CheckpointRecord struct {
	CourseID  string
	SubjectID string
	State     json.RawMessage
	SavedAt   time.Time
}

// Store is the durable persistence collaborator. Implementations must make
// each call a single independent write; there is no cross-call transaction.
type Store interface {
	// UpsertProgress stores progress keyed by (course, subject, topic),
	// last write wins.
	UpsertProgress(ctx context.Context, rec *ProgressRecord) error

	// SaveAttempt inserts the attempt, or updates the existing record with
	// the same (course, subject, runtime attempt id) when that id is set.
	SaveAttempt(ctx context.Context, rec *AttemptRecord) error

	// InsertEvent appends an event.
	InsertEvent(ctx context.Context, rec *EventRecord) error

	// UpsertCheckpoint stores the checkpoint keyed by (course, subject).
	UpsertCheckpoint(ctx context.Context, rec *CheckpointRecord) error

	// LoadCheckpoint returns the stored checkpoint, or nil when there is
	// none.
	LoadCheckpoint(ctx context.Context, courseID, subjectID string) (*CheckpointRecord, error)
}
