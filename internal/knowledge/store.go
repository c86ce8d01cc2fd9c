// Package knowledge holds the agent's accumulated facts, inferences,
// and predictions. The store is in-memory; retention is enforced by the
// engine's periodic cleanup.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
)

// Item is one piece of knowledge.
type Item struct {
	ID         core.KnowledgeID `json:"id"`
	Kind       core.KnowledgeKind `json:"kind"`
	Content    string           `json:"content"`
	Confidence float64          `json:"confidence"`
	Source     string           `json:"source"`
	Timestamp  time.Time        `json:"timestamp"`
	Metadata   core.Params      `json:"metadata,omitempty"`
}

// Store is a concurrency-safe knowledge base.
type Store struct {
	mu    sync.RWMutex
	items map[core.KnowledgeID]*Item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		items: make(map[core.KnowledgeID]*Item),
	}
}

// Add validates and stores an item, assigning an ID and timestamp when
// missing. The stored copy is returned.
func (s *Store) Add(item Item) (*Item, error) {
	if item.Content == "" {
		return nil, fmt.Errorf("%w: content", core.ErrMissingRequired)
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidConfidence, item.Confidence)
	}

	if item.ID == "" {
		item.ID = core.KnowledgeID(uuid.NewString())
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.items[item.ID] = &item
	s.mu.Unlock()

	stored := item
	return &stored, nil
}

// Get returns one item by ID.
func (s *Store) Get(id core.KnowledgeID) (*Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	cp := *item
	return &cp, true
}

// Query searches item content. An empty query returns the newest items.
// Otherwise matching is case-insensitive substring, ranked by how often
// the query occurs, with recency breaking ties.
func (s *Store) Query(query string, limit int) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	query = strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		item  *Item
		count int
	}
	var matches []scored
	for _, item := range s.items {
		if query == "" {
			matches = append(matches, scored{item: item})
			continue
		}
		count := strings.Count(strings.ToLower(item.Content), query)
		if count > 0 {
			matches = append(matches, scored{item: item, count: count})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].count != matches[j].count {
			return matches[i].count > matches[j].count
		}
		return matches[i].item.Timestamp.After(matches[j].item.Timestamp)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]*Item, len(matches))
	for i, m := range matches {
		cp := *m.item
		result[i] = &cp
	}
	return result
}

// Recent returns the newest items, most recent first.
func (s *Store) Recent(limit int) []*Item {
	return s.Query("", limit)
}

// Count returns the number of stored items.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Cleanup removes items older than the cutoff and returns how many
// were removed.
func (s *Store) Cleanup(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, item := range s.items {
		if item.Timestamp.Before(olderThan) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
