package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/config"
	"github.com/scalarorg/ibc-tracker/pkg/api"
	"github.com/scalarorg/ibc-tracker/pkg/clients/lcd"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/events"
	"github.com/scalarorg/ibc-tracker/pkg/ingest"
	"github.com/scalarorg/ibc-tracker/pkg/metrics"
	"github.com/scalarorg/ibc-tracker/pkg/monitor"
)

const shutdownTimeout = 10 * time.Second

type Service struct {
	DbAdapter *db.DatabaseAdapter
	EventBus  *events.EventBus
	Redis     *redis.Client
	Resolver  lcd.DenomResolver
	Gateways  *lcd.ChainGateways
	Ingester  *ingest.Ingester
	Sweeper   *ingest.Sweeper
	Monitor   *monitor.Service
	ApiServer *api.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewService(ctx context.Context, cfg *config.Config, dbAdapter *db.DatabaseAdapter) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if dbAdapter == nil || dbAdapter.Transfers == nil {
		return nil, fmt.Errorf("dbAdapter is required")
	}

	baseResolver := lcd.NewResolver(cfg.GatewayClient.Timeout)
	gateways := lcd.NewChainGateways(baseResolver, cfg.GatewayURLs())
	var resolver lcd.DenomResolver = baseResolver
	redisClient := newRedisClient(ctx, cfg.Redis)
	if redisClient != nil {
		resolver = lcd.NewCachedResolver(resolver, redisClient, cfg.Redis.TTL)
	}

	eventBus := events.NewEventBus(events.DefaultBufferSize)
	ingester := ingest.NewIngester(dbAdapter.Transfers, resolver, cfg.GatewayURLs())
	ingester.SetEventBus(eventBus)
	var sweeper *ingest.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = ingest.NewSweeper(dbAdapter.Transfers, ingester, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
	}
	monitorService := monitor.NewService(dbAdapter.Transfers)
	health := func(ctx context.Context) error {
		return dbAdapter.MongoClient.Ping(ctx, nil)
	}

	apiServer := api.NewServer(cfg.API, dbAdapter.Transfers, monitorService, health, ingester)
	apiServer.SetChannelDirectory(gateways)

	return &Service{
		DbAdapter: dbAdapter,
		EventBus:  eventBus,
		Redis:     redisClient,
		Resolver:  resolver,
		Gateways:  gateways,
		Ingester:  ingester,
		Sweeper:   sweeper,
		Monitor:   monitorService,
		ApiServer: apiServer,
	}, nil
}

// newRedisClient returns nil when the cache is not configured or unreachable;
// resolution then goes straight to the gateways.
func newRedisClient(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("[Tracker] redis unavailable, denom cache disabled")
		_ = client.Close()
		return nil
	}
	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return client
}

// Start runs the API server, the transfer event consumer and, when enabled, the sweeper.
func (s *Service) Start(ctx context.Context) error {
	ctx = s.withCancel(ctx)
	s.StartEventConsumer(ctx)
	s.StartSweeper(ctx)
	s.StartAPI()
	return nil
}

// StartEventConsumer records transfer inserts and status transitions published by the ingester.
func (s *Service) StartEventConsumer(ctx context.Context) {
	ctx = s.withCancel(ctx)
	inserted := s.EventBus.Subscribe(events.EVENT_TRANSFER_INSERTED)
	changed := s.EventBus.Subscribe(events.EVENT_TRANSFER_STATUS_CHANGED)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			var event *events.EventEnvelope
			var ok bool
			select {
			case <-ctx.Done():
				return
			case event, ok = <-inserted:
			case event, ok = <-changed:
			}
			if !ok {
				return
			}
			handleTransferEvent(event)
		}
	}()
}

func handleTransferEvent(event *events.EventEnvelope) {
	from := "NONE"
	if event.Previous != 0 {
		from = event.Previous.String()
	}
	metrics.StatusTransitions.WithLabelValues(from, event.Current.String()).Inc()
	log.Debug().
		Str("topic", event.Topic).
		Str("record_id", event.RecordID).
		Str("from", from).
		Str("to", event.Current.String()).
		Msg("[Tracker] [handleTransferEvent] transfer event")
}

func (s *Service) StartAPI() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ApiServer.Start(); err != nil {
			log.Error().Err(err).Msg("[Tracker] [StartAPI] api server stopped with error")
		}
	}()
}

func (s *Service) StartSweeper(ctx context.Context) {
	if s.Sweeper == nil {
		log.Warn().Msg("[Tracker] [StartSweeper] sweeper is disabled")
		return
	}
	ctx = s.withCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[Tracker] [StartSweeper] sweeper stopped with error")
		}
	}()
}

func (s *Service) withCancel(ctx context.Context) context.Context {
	if s.cancel != nil {
		return ctx
	}
	ctx, s.cancel = context.WithCancel(ctx)
	return ctx
}

// Stop is safe to call more than once.
func (s *Service) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.ApiServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("[Tracker] [Stop] failed to shutdown api server")
		}
		s.wg.Wait()
		s.EventBus.Close()
		if s.Redis != nil {
			_ = s.Redis.Close()
		}
		s.DbAdapter.Close(ctx)
		log.Info().Msg("[Tracker] [Stop] stopped")
	})
}
