// Package graph keeps scenario-to-case lineage: which historical cases each
// scenario matched and how strongly.
package graph

import (
	"context"
	"sort"
	"sync"
)

// Link is one MATCHED edge from a scenario to a case.
type Link struct {
	CaseID     string
	CaseName   string
	Similarity int
	Rank       int
}

// ScenarioNode is the scenario side of the lineage.
type ScenarioNode struct {
	ID       string
	Name     string
	RiskType string
}

// Repository persists lineage.
type Repository interface {
	// RecordMatches replaces the MATCHED edges of a scenario.
	RecordMatches(ctx context.Context, scenario ScenarioNode, links []Link) error
	// ScenariosForCase returns the IDs of scenarios that matched caseID,
	// strongest first.
	ScenariosForCase(ctx context.Context, caseID string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// Memory is an in-process Repository.
type Memory struct {
	mu    sync.RWMutex
	links map[string][]Link
}

func NewMemory() *Memory {
	return &Memory{links: make(map[string][]Link)}
}

func (m *Memory) RecordMatches(_ context.Context, s ScenarioNode, links []Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[s.ID] = append([]Link(nil), links...)
	return nil
}

func (m *Memory) ScenariosForCase(_ context.Context, caseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type hit struct {
		id  string
		sim int
	}
	var hits []hit
	for id, links := range m.links {
		for _, l := range links {
			if l.CaseID == caseID {
				hits = append(hits, hit{id, l.Similarity})
				break
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].sim != hits[j].sim {
			return hits[i].sim > hits[j].sim
		}
		return hits[i].id < hits[j].id
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }

var _ Repository = (*Memory)(nil)
