package storage

import (
	"context"
	"time"

	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// Guard skips scopes that already have rows stamped with today's run date.
type Guard struct {
	store Store
	now   func() time.Time
}

func NewGuard(store Store, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, now: now}
}

// AlreadyProcessed reports whether max(run_date) for namespace is today.
// An empty namespace checks the whole table.
func (g *Guard) AlreadyProcessed(ctx context.Context, namespace string) (bool, error) {
	latest, ok, err := g.store.LatestRunDate(ctx, namespace)
	if err != nil {
		return false, err
	}
	return ok && models.SameDay(latest, g.now()), nil
}
