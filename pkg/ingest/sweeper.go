package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
)

type SweepStore interface {
	FindByStatusOldestFirst(ctx context.Context, status models.Status, limit int64) ([]*models.TransferRecord, error)
	SetBaseDenom(ctx context.Context, recordID, baseDenom string) error
}

// Sweeper periodically retries base denom resolution for the oldest
// processing records.
type Sweeper struct {
	store     SweepStore
	ingester  *Ingester
	interval  time.Duration
	batchSize int64
}

func NewSweeper(store SweepStore, ingester *Ingester, interval time.Duration, batchSize int64) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{store: store, ingester: ingester, interval: interval, batchSize: batchSize}
}

// Run sweeps once right away and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[Sweeper] [Run] sweep failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("[Sweeper] [Run] stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep patches the records it could resolve and returns how many it patched.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	recs, err := s.store.FindByStatusOldestFirst(ctx, models.StatusProcessing, s.batchSize)
	if err != nil {
		return 0, err
	}
	patched := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return patched, ctx.Err()
		}
		if rec.BaseDenom != "" {
			continue
		}
		base := s.ingester.ResolveBaseDenom(ctx, rec)
		if base == "" {
			continue
		}
		if err := s.store.SetBaseDenom(ctx, rec.RecordID, base); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue
			}
			return patched, err
		}
		patched++
	}
	metrics.SweeperRuns.Inc()
	metrics.SweeperPatchedRecords.Add(float64(patched))
	metrics.SweeperLastRunTimestamp.SetToCurrentTime()
	log.Debug().Int("scanned", len(recs)).Int("patched", patched).Msg("[Sweeper] [Sweep] done")
	return patched, nil
}
