package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const (
	MetricTotal          = "total_transfers"
	MetricActive24h      = "active_transfers_24h"
	MetricSuccess        = "success_transfers"
	MetricFailed         = "failed_transfers"
	MetricActiveChains   = "active_chains"
	MetricActiveChannels = "active_channels"
	MetricEarliestTxTime = "earliest_tx_time"
)

type Repository interface {
	CountAll(ctx context.Context) (int64, error)
	CountActive(ctx context.Context, now int64) (int64, error)
	CountSuccess(ctx context.Context) (int64, error)
	CountFailed(ctx context.Context) (int64, error)
	FindActiveChainPairs24hr(ctx context.Context, now int64) ([]models.ChainPair, error)
	FindActiveSourceChannels24hr(ctx context.Context, now int64, chainIDs []string) ([]models.ChannelChain, error)
	FindActiveDestChannels24hr(ctx context.Context, now int64, chainIDs []string) ([]models.ChannelChain, error)
	FindEarliest(ctx context.Context) (*models.TransferRecord, error)
}

// Overview is the dashboard summary. A nil metric is listed in Unavailable.
type Overview struct {
	Timestamp          int64                 `json:"timestamp"`
	TotalTransfers     *int64                `json:"total_transfers"`
	ActiveTransfers24h *int64                `json:"active_transfers_24h"`
	SuccessTransfers   *int64                `json:"success_transfers"`
	FailedTransfers    *int64                `json:"failed_transfers"`
	ActiveChainPairs   []models.ChainPair    `json:"active_chain_pairs"`
	ActiveChains       []string              `json:"active_chains"`
	ActiveChannels     []models.ChannelChain `json:"active_channels"`
	EarliestTxTime     *int64                `json:"earliest_tx_time"`
	Unavailable        []string              `json:"unavailable,omitempty"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Overview computes every metric independently; a store error degrades only
// the metric it belongs to.
func (s *Service) Overview(ctx context.Context, now int64) *Overview {
	overview := &Overview{Timestamp: now}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	unavailable := func(metric string, err error) {
		log.Warn().Err(err).Str("metric", metric).Msg("[Monitor] [Overview] metric unavailable")
		metrics.OverviewUnavailable.WithLabelValues(metric).Inc()
		mu.Lock()
		overview.Unavailable = append(overview.Unavailable, metric)
		mu.Unlock()
	}
	count := func(metric string, dst **int64, fn func() (int64, error)) {
		g.Go(func() error {
			n, err := fn()
			if err != nil {
				unavailable(metric, err)
				return nil
			}
			*dst = &n
			return nil
		})
	}

	count(MetricTotal, &overview.TotalTransfers, func() (int64, error) { return s.repo.CountAll(ctx) })
	count(MetricActive24h, &overview.ActiveTransfers24h, func() (int64, error) { return s.repo.CountActive(ctx, now) })
	count(MetricSuccess, &overview.SuccessTransfers, func() (int64, error) { return s.repo.CountSuccess(ctx) })
	count(MetricFailed, &overview.FailedTransfers, func() (int64, error) { return s.repo.CountFailed(ctx) })

	g.Go(func() error {
		rec, err := s.repo.FindEarliest(ctx)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			unavailable(MetricEarliestTxTime, err)
		default:
			overview.EarliestTxTime = &rec.TxTime
		}
		return nil
	})

	g.Go(func() error {
		pairs, err := s.repo.FindActiveChainPairs24hr(ctx, now)
		if err != nil {
			unavailable(MetricActiveChains, err)
			unavailable(MetricActiveChannels, err)
			return nil
		}
		overview.ActiveChainPairs = pairs
		overview.ActiveChains = ChainsOf(pairs)

		channels, err := s.ActiveChannels(ctx, now, overview.ActiveChains)
		if err != nil {
			unavailable(MetricActiveChannels, err)
			return nil
		}
		overview.ActiveChannels = channels
		return nil
	})

	_ = g.Wait()
	sort.Strings(overview.Unavailable)
	if overview.ActiveTransfers24h != nil {
		metrics.ActiveTransfers.Set(float64(*overview.ActiveTransfers24h))
	}
	return overview
}

// ActiveChannels unions the source and destination channel sets of chainIDs.
func (s *Service) ActiveChannels(ctx context.Context, now int64, chainIDs []string) ([]models.ChannelChain, error) {
	var sources, dests []models.ChannelChain
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sources, err = s.repo.FindActiveSourceChannels24hr(gctx, now, chainIDs)
		return err
	})
	g.Go(func() (err error) {
		dests, err = s.repo.FindActiveDestChannels24hr(gctx, now, chainIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[models.ChannelChain]struct{}, len(sources)+len(dests))
	channels := make([]models.ChannelChain, 0, len(sources)+len(dests))
	for _, list := range [][]models.ChannelChain{sources, dests} {
		for _, channel := range list {
			if _, ok := seen[channel]; ok {
				continue
			}
			seen[channel] = struct{}{}
			channels = append(channels, channel)
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].ChainID != channels[j].ChainID {
			return channels[i].ChainID < channels[j].ChainID
		}
		return channels[i].Channel < channels[j].Channel
	})
	return channels, nil
}

// ChainsOf returns the sorted distinct chain ids appearing on either side of pairs.
func ChainsOf(pairs []models.ChainPair) []string {
	seen := make(map[string]struct{}, 2*len(pairs))
	chains := make([]string, 0, 2*len(pairs))
	for _, pair := range pairs {
		for _, chainID := range []string{pair.SourceChainID, pair.DestChainID} {
			if _, ok := seen[chainID]; ok || chainID == "" {
				continue
			}
			seen[chainID] = struct{}{}
			chains = append(chains, chainID)
		}
	}
	sort.Strings(chains)
	return chains
}
