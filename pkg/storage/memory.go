package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// MemoryStore keeps rows in process memory. It backs --dry-run and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []models.Recommendation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (s *MemoryStore) LatestRunDate(_ context.Context, namespace string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest time.Time
		found  bool
	)
	for _, r := range s.rows {
		if namespace != "" && r.Namespace != namespace {
			continue
		}
		if !found || r.RunDate.After(latest) {
			latest, found = r.RunDate, true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) AppendRecommendations(_ context.Context, recs []models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		r.RunDate = models.RunDate(r.RunDate)
		s.rows = append(s.rows, r)
	}
	return nil
}

func (s *MemoryStore) ListRecommendations(_ context.Context, filter Filter) ([]models.Recommendation, error) {
	s.mu.RLock()
	var out []models.Recommendation
	for _, r := range s.rows {
		if filter.Namespace != "" && r.Namespace != filter.Namespace {
			continue
		}
		if !filter.RunDate.IsZero() && !models.SameDay(r.RunDate, filter.RunDate) {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.RunDate.Equal(b.RunDate) {
			return a.RunDate.After(b.RunDate)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.ControllerName != b.ControllerName {
			return a.ControllerName < b.ControllerName
		}
		return a.ContainerName < b.ContainerName
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
