package repofakes

import (
	"context"
	"sync"

	"github.com/coursebridge/launchgate/outcomes"
	"github.com/pkg/errors"
)

var _ outcomes.Store = (*FakeStore)(nil)

// FakeStore is an in-memory Store for tests.
type FakeStore struct {
	mu          sync.Mutex
	progress    map[string]*outcomes.ProgressRecord
	attempts    []*outcomes.AttemptRecord
	events      []*outcomes.EventRecord
	checkpoints map[string]*outcomes.CheckpointRecord

	// FailNext makes the next write return an error, for partial-failure
	// tests.
	FailNext bool
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		progress:    make(map[string]*outcomes.ProgressRecord),
		checkpoints: make(map[string]*outcomes.CheckpointRecord),
	}
}

func (f *FakeStore) failIfArmed() error {
	if f.FailNext {
		f.FailNext = false
		return errors.New("store unavailable")
	}
	return nil
}

func (f *FakeStore) UpsertProgress(_ context.Context, rec *outcomes.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIfArmed(); err != nil {
		return err
	}
	f.progress[rec.CourseID+"|"+rec.SubjectID+"|"+rec.Topic] = rec
	return nil
}

func (f *FakeStore) SaveAttempt(_ context.Context, rec *outcomes.AttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIfArmed(); err != nil {
		return err
	}
	if rec.RuntimeAttemptID != "" {
		for i, existing := range f.attempts {
			if existing.CourseID == rec.CourseID &&
				existing.SubjectID == rec.SubjectID &&
				existing.RuntimeAttemptID == rec.RuntimeAttemptID {
				updated := *rec
				updated.ID = existing.ID
				f.attempts[i] = &updated
				return nil
			}
		}
	}
	f.attempts = append(f.attempts, rec)
	return nil
}

func (f *FakeStore) InsertEvent(_ context.Context, rec *outcomes.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIfArmed(); err != nil {
		return err
	}
	f.events = append(f.events, rec)
	return nil
}

func (f *FakeStore) UpsertCheckpoint(_ context.Context, rec *outcomes.CheckpointRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIfArmed(); err != nil {
		return err
	}
	f.checkpoints[rec.CourseID+"|"+rec.SubjectID] = rec
	return nil
}

func (f *FakeStore) LoadCheckpoint(_ context.Context, courseID, subjectID string) (*outcomes.CheckpointRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIfArmed(); err != nil {
		return nil, err
	}
	rec, ok := f.checkpoints[courseID+"|"+subjectID]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// Progress returns the stored progress record, if any.
func (f *FakeStore) Progress(courseID, subjectID, topic string) (*outcomes.ProgressRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.progress[courseID+"|"+subjectID+"|"+topic]
	return rec, ok
}

// Attempts returns all stored attempt records.
func (f *FakeStore) Attempts() []*outcomes.AttemptRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*outcomes.AttemptRecord, len(f.attempts))
	copy(out, f.attempts)
	return out
}

// Events returns all stored event records.
func (f *FakeStore) Events() []*outcomes.EventRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*outcomes.EventRecord, len(f.events))
	copy(out, f.events)
	return out
}

// Checkpoint returns the stored checkpoint record, if any.
func (f *FakeStore) Checkpoint(courseID, subjectID string) (*outcomes.CheckpointRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.checkpoints[courseID+"|"+subjectID]
	return rec, ok
}
