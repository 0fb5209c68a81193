package store

import (
	"context"
	"sync"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/language"
)

// Memory is a map-backed Store. It is the degraded-mode fallback and the
// default for tests and single-process runs without NATS.
type Memory struct {
	mu         sync.RWMutex
	analyses   map[string]endpoint.Analysis
	priorities map[string]language.PriorityList
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		analyses:   make(map[string]endpoint.Analysis),
		priorities: make(map[string]language.PriorityList),
	}
}

// Analysis returns the stored snapshot for an endpoint.
func (m *Memory) Analysis(_ context.Context, endpointID string) (*endpoint.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.analyses[endpointID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// SaveAnalysis stores a copy of the snapshot.
func (m *Memory) SaveAnalysis(_ context.Context, endpointID string, a *endpoint.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[endpointID] = *a
	return nil
}

// Priorities returns the stored priority list for an endpoint.
func (m *Memory) Priorities(_ context.Context, endpointID string) (*language.PriorityList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.priorities[endpointID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := p.Clone()
	return &clone, nil
}

// SavePriorities stores a copy of the priority list.
func (m *Memory) SavePriorities(_ context.Context, endpointID string, p *language.PriorityList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priorities[endpointID] = p.Clone()
	return nil
}
