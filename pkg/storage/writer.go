package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
	"github.com/opscart/gke-vpa-recommender/pkg/retry"
)

// Writer appends a scope's batch with the fetch retry policy. A batch is
// committed whole or not at all.
type Writer struct {
	store  Store
	policy retry.Policy
}

func NewWriter(store Store, policy retry.Policy) *Writer {
	return &Writer{store: store, policy: policy}
}

// Write appends recs for namespace. After the last failed attempt the error
// is returned as a SINK error and nothing has been committed.
func (w *Writer) Write(ctx context.Context, namespace string, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	logger := zerolog.Ctx(ctx)

	err := w.policy.Do(ctx, func(actx context.Context) error {
		if err := w.store.AppendRecommendations(actx, recs); err != nil {
			writeAttempts.WithLabelValues("retry").Inc()
			return err
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Sink write failed, retrying")
	})
	if err != nil {
		writeAttempts.WithLabelValues("error").Inc()
		if apperrors.IsCode(err, apperrors.ErrCodeSink) {
			return err
		}
		return apperrors.WrapWithContext(apperrors.ErrCodeSink, "failed to write recommendations", err,
			map[string]any{"namespace": namespace, "rows": len(recs)})
	}

	writeAttempts.WithLabelValues("success").Inc()
	rowsWritten.Add(float64(len(recs)))
	logger.Info().Int("rows", len(recs)).Msg("Recommendations written")
	return nil
}
