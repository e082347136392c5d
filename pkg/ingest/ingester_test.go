package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/events"
	"github.com/scalarorg/ibc-tracker/pkg/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	cosmosGateway = "https://lcd.cosmoshub.example"
	osmoGateway   = "https://lcd.osmosis.example"
	atomVoucher   = "ibc/27394FB092D2ECCD56123C74F36E4C1F926001CEADA9CA97EA622B25F41E5EB2"
)

type fakeResolver struct {
	mu     sync.Mutex
	denoms map[string]string
	calls  []string
}

func (f *fakeResolver) ResolveDenom(_ context.Context, gateway, ibcHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, gateway+"|"+ibcHash)
	if base, ok := f.denoms[gateway+"|"+ibcHash]; ok {
		return base, nil
	}
	return "", errors.New("not found")
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*models.TransferRecord
	upsertErr error
	insertErr error
	failIndex map[int]bool
}

func newFakeStore(recs ...*models.TransferRecord) *fakeStore {
	s := &fakeStore{records: map[string]*models.TransferRecord{}}
	for _, rec := range recs {
		s.records[rec.RecordID] = rec
	}
	return s
}

func (s *fakeStore) Upsert(_ context.Context, rec *models.TransferRecord) (*models.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	prev := s.records[rec.RecordID]
	copied := *rec
	s.records[rec.RecordID] = &copied
	return prev, nil
}

func (s *fakeStore) InsertMany(_ context.Context, recs []*models.TransferRecord, hook db.InsertHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := db.InsertManyResult{Requested: len(recs), Failed: map[int]error{}}
	if s.insertErr != nil {
		result.Err = s.insertErr
		if hook != nil {
			hook(result)
		}
		return s.insertErr
	}
	for i, rec := range recs {
		if s.failIndex[i] {
			result.Failed[i] = errors.New("duplicate key")
			continue
		}
		s.records[rec.RecordID] = rec
		result.Inserted++
	}
	var err error
	if len(result.Failed) > 0 {
		err = fmt.Errorf("%w: %d of %d", db.ErrRejectedRecords, len(result.Failed), len(recs))
	}
	result.Err = err
	if hook != nil {
		hook(result)
	}
	return err
}

func (s *fakeStore) FindByStatusOldestFirst(_ context.Context, status models.Status, limit int64) ([]*models.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TransferRecord
	for _, rec := range s.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) SetBaseDenom(_ context.Context, recordID, baseDenom string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	rec.BaseDenom = baseDenom
	return nil
}

func gateways() map[string]string {
	return map[string]string{"cosmoshub-4": cosmosGateway, "osmosis-1": osmoGateway}
}

func TestResolveBaseDenom(t *testing.T) {
	resolver := &fakeResolver{denoms: map[string]string{osmoGateway + "|" + atomVoucher: "uatom"}}
	ingester := ingest.NewIngester(newFakeStore(), resolver, gateways())
	ctx := context.Background()

	tests := []struct {
		name string
		rec  models.TransferRecord
		want string
	}{
		{
			name: "native source denom",
			rec:  models.TransferRecord{SourceChainID: "cosmoshub-4", Denoms: models.Denoms{SourceDenom: "uatom", DestDenom: atomVoucher}},
			want: "uatom",
		},
		{
			name: "native destination denom on a return trip",
			rec:  models.TransferRecord{SourceChainID: "osmosis-1", DestChainID: "cosmoshub-4", Denoms: models.Denoms{SourceDenom: atomVoucher, DestDenom: "uatom"}},
			want: "uatom",
		},
		{
			name: "voucher resolved on its own chain",
			rec:  models.TransferRecord{SourceChainID: "osmosis-1", Denoms: models.Denoms{SourceDenom: atomVoucher}},
			want: "uatom",
		},
		{
			name: "unknown gateway stays unresolved",
			rec:  models.TransferRecord{SourceChainID: "juno-1", Denoms: models.Denoms{SourceDenom: atomVoucher}},
			want: "",
		},
		{
			name: "resolution failure stays unresolved",
			rec:  models.TransferRecord{SourceChainID: "cosmoshub-4", Denoms: models.Denoms{SourceDenom: "ibc/UNKNOWN"}},
			want: "",
		},
		{
			name: "no denoms",
			rec:  models.TransferRecord{SourceChainID: "cosmoshub-4"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ingester.ResolveBaseDenom(ctx, &tt.rec))
		})
	}
}

func TestIngestFailsOpen(t *testing.T) {
	store := newFakeStore()
	ingester := ingest.NewIngester(store, &fakeResolver{}, gateways())
	rec := &models.TransferRecord{
		RecordID:      "r1",
		Status:        models.StatusProcessing,
		SourceChainID: "cosmoshub-4",
		Denoms:        models.Denoms{SourceDenom: "ibc/UNKNOWN"},
	}

	prev, err := ingester.Ingest(context.Background(), rec)
	require.NoError(t, err)
	assert.Nil(t, prev)
	require.Contains(t, store.records, "r1")
	assert.Empty(t, store.records["r1"].BaseDenom)
}

func TestIngestKeepsProvidedBaseDenom(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{}
	ingester := ingest.NewIngester(store, resolver, gateways())

	_, err := ingester.Ingest(context.Background(), &models.TransferRecord{
		RecordID:      "r1",
		Status:        models.StatusSuccess,
		SourceChainID: "osmosis-1",
		Denoms:        models.Denoms{SourceDenom: atomVoucher},
		BaseDenom:     "uatom",
	})
	require.NoError(t, err)
	assert.Empty(t, resolver.calls)
	assert.Equal(t, "uatom", store.records["r1"].BaseDenom)
}

func TestIngestErrors(t *testing.T) {
	store := newFakeStore()
	ingester := ingest.NewIngester(store, nil, nil)

	_, err := ingester.Ingest(context.Background(), &models.TransferRecord{Status: models.StatusSuccess})
	require.Error(t, err)

	store.upsertErr = errors.New("store down")
	_, err = ingester.Ingest(context.Background(), &models.TransferRecord{RecordID: "r1", Status: models.StatusSuccess})
	require.ErrorIs(t, err, store.upsertErr)
}

func TestIngestBatch(t *testing.T) {
	store := newFakeStore()
	store.failIndex = map[int]bool{1: true}
	resolver := &fakeResolver{denoms: map[string]string{osmoGateway + "|" + atomVoucher: "uatom"}}
	ingester := ingest.NewIngester(store, resolver, gateways())

	recs := []*models.TransferRecord{
		{RecordID: "r1", Status: models.StatusProcessing, SourceChainID: "osmosis-1", Denoms: models.Denoms{SourceDenom: atomVoucher}},
		{RecordID: "r2", Status: models.StatusProcessing, Denoms: models.Denoms{SourceDenom: "uosmo"}},
		{RecordID: "r3", Status: models.StatusProcessing, BaseDenom: "ujuno"},
	}
	result, err := ingester.IngestBatch(context.Background(), recs)
	require.Error(t, err)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, "uatom", recs[0].BaseDenom)
	assert.Equal(t, "uosmo", recs[1].BaseDenom)
	assert.Equal(t, "ujuno", recs[2].BaseDenom)
}

func TestIngestPublishesEvents(t *testing.T) {
	bus := events.NewEventBus(8)
	inserted := bus.Subscribe(events.EVENT_TRANSFER_INSERTED)
	changed := bus.Subscribe(events.EVENT_TRANSFER_STATUS_CHANGED)

	store := newFakeStore()
	store.failIndex = map[int]bool{0: true}
	ingester := ingest.NewIngester(store, nil, nil)
	ingester.SetEventBus(bus)
	ctx := context.Background()

	_, err := ingester.Ingest(ctx, &models.TransferRecord{RecordID: "r1", Status: models.StatusProcessing, BaseDenom: "uatom"})
	require.NoError(t, err)
	event := <-inserted
	assert.Equal(t, "r1", event.RecordID)
	assert.Equal(t, models.Status(0), event.Previous)
	assert.Equal(t, models.StatusProcessing, event.Current)

	// same status again is not a transition
	_, err = ingester.Ingest(ctx, &models.TransferRecord{RecordID: "r1", Status: models.StatusProcessing, BaseDenom: "uatom"})
	require.NoError(t, err)
	_, err = ingester.Ingest(ctx, &models.TransferRecord{RecordID: "r1", Status: models.StatusRefunded, BaseDenom: "uatom"})
	require.NoError(t, err)
	event = <-changed
	assert.Equal(t, models.StatusProcessing, event.Previous)
	assert.Equal(t, models.StatusRefunded, event.Current)
	assert.Empty(t, changed)

	_, err = ingester.IngestBatch(ctx, []*models.TransferRecord{
		{RecordID: "b1", Status: models.StatusSuccess, BaseDenom: "uatom"},
		{RecordID: "b2", Status: models.StatusFailed, BaseDenom: "uatom"},
	})
	require.Error(t, err)
	event = <-inserted
	assert.Equal(t, "b2", event.RecordID)
	assert.Empty(t, inserted)
}

func TestIngestBatchStoreFailurePublishesNothing(t *testing.T) {
	bus := events.NewEventBus(8)
	inserted := bus.Subscribe(events.EVENT_TRANSFER_INSERTED)

	store := newFakeStore()
	store.insertErr = errors.New("server selection timeout")
	ingester := ingest.NewIngester(store, nil, nil)
	ingester.SetEventBus(bus)

	result, err := ingester.IngestBatch(context.Background(), []*models.TransferRecord{
		{RecordID: "b1", Status: models.StatusSuccess, BaseDenom: "uatom"},
	})
	require.ErrorIs(t, err, store.insertErr)
	assert.NotErrorIs(t, err, db.ErrRejectedRecords)
	assert.Equal(t, 0, result.Inserted)
	assert.Empty(t, inserted)
}

func TestSweeperPatchesUnresolvedRecords(t *testing.T) {
	store := newFakeStore(
		&models.TransferRecord{RecordID: "p1", Status: models.StatusProcessing, SourceChainID: "osmosis-1", Denoms: models.Denoms{SourceDenom: atomVoucher}},
		&models.TransferRecord{RecordID: "p2", Status: models.StatusProcessing, SourceChainID: "juno-1", Denoms: models.Denoms{SourceDenom: atomVoucher}},
		&models.TransferRecord{RecordID: "p3", Status: models.StatusProcessing, BaseDenom: "uosmo"},
		&models.TransferRecord{RecordID: "s1", Status: models.StatusSuccess, SourceChainID: "osmosis-1", Denoms: models.Denoms{SourceDenom: atomVoucher}},
	)
	resolver := &fakeResolver{denoms: map[string]string{osmoGateway + "|" + atomVoucher: "uatom"}}
	sweeper := ingest.NewSweeper(store, ingest.NewIngester(store, resolver, gateways()), time.Minute, 10)

	patched, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, patched)
	assert.Equal(t, "uatom", store.records["p1"].BaseDenom)
	assert.Empty(t, store.records["p2"].BaseDenom)
	assert.Equal(t, "uosmo", store.records["p3"].BaseDenom)
	assert.Empty(t, store.records["s1"].BaseDenom)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	sweeper := ingest.NewSweeper(store, ingest.NewIngester(store, nil, nil), 10*time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
