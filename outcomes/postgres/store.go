package postgres

import (
	"context"

	"github.com/coursebridge/launchgate/outcomes"
	"github.com/pkg/errors"
)

// Store implements outcomes.Store using PostgreSQL. Each call is a single
// statement; upserts rely on the tables' unique constraints.
type Store struct{ db *DB }

var _ outcomes.Store = (*Store)(nil)

// NewStore constructs the outcome store.
func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) UpsertProgress(ctx context.Context, rec *outcomes.ProgressRecord) error {
	const q = `
INSERT INTO progress (course_id, subject_id, topic, pct, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (course_id, subject_id, topic)
DO UPDATE SET pct=EXCLUDED.pct, updated_at=EXCLUDED.updated_at`
	if _, err := s.db.Pool.Exec(ctx, q, rec.CourseID, rec.SubjectID, rec.Topic, rec.Pct, rec.UpdatedAt); err != nil {
		return errors.Wrap(err, "[Store.UpsertProgress]")
	}
	return nil
}

func (s *Store) SaveAttempt(ctx context.Context, rec *outcomes.AttemptRecord) error {
	if rec.RuntimeAttemptID == "" {
		const ins = `
INSERT INTO attempts (id, course_id, subject_id, runtime_attempt_id, score, max_score, passed, submitted_at)
VALUES ($1,$2,$3,'',$4,$5,$6,$7)`
		if _, err := s.db.Pool.Exec(ctx, ins, rec.ID, rec.CourseID, rec.SubjectID, rec.Score, rec.MaxScore, rec.Passed, rec.SubmittedAt); err != nil {
			return errors.Wrap(err, "[Store.SaveAttempt]")
		}
		return nil
	}

	// The conflict target matches the partial unique index on rows that
	// carry a runtime attempt id.
	const upsert = `
INSERT INTO attempts (id, course_id, subject_id, runtime_attempt_id, score, max_score, passed, submitted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (course_id, subject_id, runtime_attempt_id) WHERE runtime_attempt_id <> ''
DO UPDATE SET score=EXCLUDED.score, max_score=EXCLUDED.max_score, passed=EXCLUDED.passed, submitted_at=EXCLUDED.submitted_at`
	if _, err := s.db.Pool.Exec(ctx, upsert, rec.ID, rec.CourseID, rec.SubjectID, rec.RuntimeAttemptID, rec.Score, rec.MaxScore, rec.Passed, rec.SubmittedAt); err != nil {
		return errors.Wrap(err, "[Store.SaveAttempt]")
	}
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, rec *outcomes.EventRecord) error {
	const q = `
INSERT INTO events (id, course_id, subject_id, event_type, payload, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.db.Pool.Exec(ctx, q, rec.ID, rec.CourseID, rec.SubjectID, rec.Type, []byte(rec.Payload), rec.RecordedAt); err != nil {
		return errors.Wrap(err, "[Store.InsertEvent]")
	}
	return nil
}

func (s *Store) UpsertCheckpoint(ctx context.Context, rec *outcomes.CheckpointRecord) error {
	const q = `
INSERT INTO checkpoints (course_id, subject_id, state, saved_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (course_id, subject_id)
DO UPDATE SET state=EXCLUDED.state, saved_at=EXCLUDED.saved_at`
	if _, err := s.db.Pool.Exec(ctx, q, rec.CourseID, rec.SubjectID, []byte(rec.State), rec.SavedAt); err != nil {
		return errors.Wrap(err, "[Store.UpsertCheckpoint]")
	}
	return nil
}

// LoadCheckpoint returns the stored checkpoint, or nil when none exists.
func (s *Store) LoadCheckpoint(ctx context.Context, courseID, subjectID string) (*outcomes.CheckpointRecord, error) {
	const q = `
SELECT state, saved_at FROM checkpoints WHERE course_id=$1 AND subject_id=$2`
	rec := &outcomes.CheckpointRecord{CourseID: courseID, SubjectID: subjectID}
	var state []byte
	err := s.db.Pool.QueryRow(ctx, q, courseID, subjectID).Scan(&state, &rec.SavedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Store.LoadCheckpoint]")
	}
	rec.State = state
	return rec, nil
}
