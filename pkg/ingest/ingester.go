package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/clients/lcd"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/events"
	"github.com/scalarorg/ibc-tracker/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const resolveConcurrency = 8

type Store interface {
	Upsert(ctx context.Context, rec *models.TransferRecord) (*models.TransferRecord, error)
	InsertMany(ctx context.Context, recs []*models.TransferRecord, hook db.InsertHook) error
}

// Ingester fills in the base denom of parsed transfer facts and hands them to the store.
type Ingester struct {
	store    Store
	resolver lcd.DenomResolver
	gateways map[string]string
	eventBus *events.EventBus
}

// NewIngester takes gateways as chain id to LCD base url. A nil resolver
// disables resolution of IBC hashes.
func NewIngester(store Store, resolver lcd.DenomResolver, gateways map[string]string) *Ingester {
	if gateways == nil {
		gateways = map[string]string{}
	}
	return &Ingester{store: store, resolver: resolver, gateways: gateways}
}

// SetEventBus makes the ingester publish inserts and status transitions.
func (i *Ingester) SetEventBus(bus *events.EventBus) {
	i.eventBus = bus
}

// Ingest resolves the base denom when it is missing and upserts the record.
// Resolution failures leave the base denom empty and never block the write.
func (i *Ingester) Ingest(ctx context.Context, rec *models.TransferRecord) (*models.TransferRecord, error) {
	if err := rec.Validate(); err != nil {
		metrics.IngestedRecords.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if rec.BaseDenom == "" {
		rec.BaseDenom = i.ResolveBaseDenom(ctx, rec)
	}
	prev, err := i.store.Upsert(ctx, rec)
	if err != nil {
		metrics.IngestedRecords.WithLabelValues("error").Inc()
		return nil, err
	}
	if prev == nil {
		metrics.IngestedRecords.WithLabelValues("inserted").Inc()
		i.publish(events.EVENT_TRANSFER_INSERTED, rec.RecordID, 0, rec.Status)
	} else {
		metrics.IngestedRecords.WithLabelValues("updated").Inc()
		if prev.Status != rec.Status {
			i.publish(events.EVENT_TRANSFER_STATUS_CHANGED, rec.RecordID, prev.Status, rec.Status)
		}
	}
	return prev, nil
}

// IngestBatch resolves base denoms concurrently and bulk inserts the records.
func (i *Ingester) IngestBatch(ctx context.Context, recs []*models.TransferRecord) (db.InsertManyResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for _, rec := range recs {
		if rec == nil || rec.BaseDenom != "" {
			continue
		}
		rec := rec
		g.Go(func() error {
			rec.BaseDenom = i.ResolveBaseDenom(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	var result db.InsertManyResult
	err := i.store.InsertMany(ctx, recs, func(r db.InsertManyResult) {
		result = r
		metrics.IngestedRecords.WithLabelValues("inserted").Add(float64(r.Inserted))
		metrics.IngestedRecords.WithLabelValues("rejected").Add(float64(len(r.Failed)))
		// Any error other than per-record rejections means nothing was written.
		if r.Err != nil && !errors.Is(r.Err, db.ErrRejectedRecords) {
			return
		}
		for idx, rec := range recs {
			if _, failed := r.Failed[idx]; failed {
				continue
			}
			i.publish(events.EVENT_TRANSFER_INSERTED, rec.RecordID, 0, rec.Status)
		}
	})
	if err != nil {
		log.Warn().Err(err).
			Int("requested", result.Requested).
			Int("inserted", result.Inserted).
			Msg("[Ingester] [IngestBatch] bulk insert finished with errors")
	}
	return result, err
}

func (i *Ingester) publish(topic, recordID string, previous, current models.Status) {
	if i.eventBus == nil {
		return
	}
	i.eventBus.BroadcastEvent(&events.EventEnvelope{
		Topic:     topic,
		RecordID:  recordID,
		Previous:  previous,
		Current:   current,
		Timestamp: time.Now().Unix(),
	})
}

// ResolveBaseDenom prefers a native denom seen on either side, then asks the
// gateway of the chain that holds each IBC hash. It returns "" when nothing resolves.
func (i *Ingester) ResolveBaseDenom(ctx context.Context, rec *models.TransferRecord) string {
	sides := []struct {
		denom   string
		chainID string
	}{
		{rec.Denoms.SourceDenom, rec.SourceChainID},
		{rec.Denoms.DestDenom, rec.DestChainID},
	}
	for _, side := range sides {
		if side.denom != "" && !models.IsIbcDenom(side.denom) {
			return side.denom
		}
	}
	if i.resolver == nil {
		return ""
	}
	for _, side := range sides {
		if side.denom == "" {
			continue
		}
		gateway, ok := i.gateways[side.chainID]
		if !ok {
			metrics.DenomResolutions.WithLabelValues("no_gateway").Inc()
			log.Debug().Str("record_id", rec.RecordID).Str("chain_id", side.chainID).
				Msg("[Ingester] [ResolveBaseDenom] no gateway configured")
			continue
		}
		base, err := i.resolver.ResolveDenom(ctx, gateway, side.denom)
		if err != nil {
			metrics.DenomResolutions.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("record_id", rec.RecordID).Str("denom", side.denom).
				Msg("[Ingester] [ResolveBaseDenom] failed to resolve denom")
			continue
		}
		metrics.DenomResolutions.WithLabelValues("resolved").Inc()
		return base
	}
	return ""
}
