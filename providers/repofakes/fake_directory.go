package repofakes

import (
	"context"
	"sync"

	"github.com/coursebridge/launchgate/providers"
)

var _ providers.Directory = (*FakeDirectory)(nil)

// FakeDirectory is an in-memory Directory for tests.
type FakeDirectory struct {
	mu        sync.RWMutex
	providers map[string]*providers.Provider
	courses   map[string]string
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		providers: make(map[string]*providers.Provider),
		courses:   make(map[string]string),
	}
}

// Register stores a provider and binds the given courses to it.
func (f *FakeDirectory) Register(p *providers.Provider, courseIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.ID] = p
	for _, id := range courseIDs {
		f.courses[id] = p.ID
	}
}

func (f *FakeDirectory) ForCourse(_ context.Context, courseID string) (*providers.Provider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.courses[courseID]
	if !ok {
		return nil, providers.ErrNotFound
	}
	return f.providers[id], nil
}

func (f *FakeDirectory) Get(_ context.Context, providerID string) (*providers.Provider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.providers[providerID]
	if !ok {
		return nil, providers.ErrNotFound
	}
	return p, nil
}
