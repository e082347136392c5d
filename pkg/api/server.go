package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/config"
	"github.com/scalarorg/ibc-tracker/pkg/clients/lcd"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/monitor"
)

type TransferReader interface {
	FindPage(ctx context.Context, query db.TransferQuery) ([]*models.TransferRecord, error)
	CountPage(ctx context.Context, query db.TransferQuery) (int64, error)
	FindEarliest(ctx context.Context) (*models.TransferRecord, error)
	FindByRecordID(ctx context.Context, recordID string) (*models.TransferRecord, error)
	FindActiveChainPairs24hr(ctx context.Context, now int64) ([]models.ChainPair, error)
}

type TransferWriter interface {
	Ingest(ctx context.Context, rec *models.TransferRecord) (*models.TransferRecord, error)
	IngestBatch(ctx context.Context, recs []*models.TransferRecord) (db.InsertManyResult, error)
}

// ChannelDirectory lists the open channels of a chain from its gateway.
type ChannelDirectory interface {
	OpenChannels(ctx context.Context, chainID string) ([]lcd.Channel, error)
}

type OverviewProvider interface {
	Overview(ctx context.Context, now int64) *monitor.Overview
	ActiveChannels(ctx context.Context, now int64, chainIDs []string) ([]models.ChannelChain, error)
}

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

type Server struct {
	cfg       config.APIConfig
	echo      *echo.Echo
	transfers TransferReader
	overview  OverviewProvider
	writer    TransferWriter
	channels  ChannelDirectory
	health    HealthCheck
	now       func() time.Time
}

// NewServer registers the read routes. The ingestion routes are only served when writer is non-nil.
func NewServer(cfg config.APIConfig, transfers TransferReader, overview OverviewProvider, health HealthCheck, writer TransferWriter) *Server {
	s := &Server{
		cfg:       cfg,
		echo:      echo.New(),
		transfers: transfers,
		overview:  overview,
		writer:    writer,
		health:    health,
		now:       time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Validator = &requestValidator{validate: models.NewValidator()}
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(requestLogger())

	s.echo.GET("/healthz", s.getHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/transfers", s.getTransfers)
	s.echo.GET("/transfers/earliest", s.getEarliestTransfer)
	s.echo.GET("/transfers/:record_id", s.getTransfer)
	s.echo.GET("/statistics", s.getStatistics)
	s.echo.GET("/chains/active", s.getActiveChains)
	s.echo.GET("/channels/active", s.getActiveChannels)
	if writer != nil {
		s.echo.POST("/transfers", s.postTransfer)
		s.echo.POST("/transfers/batch", s.postTransferBatch)
	}
	return s
}

// SetChannelDirectory serves GET /chains/:chain_id/channels from dir.
func (s *Server) SetChannelDirectory(dir ChannelDirectory) {
	if dir == nil || s.channels != nil {
		return
	}
	s.channels = dir
	s.echo.GET("/chains/:chain_id/channels", s.getChainChannels)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("[ApiServer] listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), s.cfg.QueryTimeout)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("[ApiServer] request")
			return nil
		},
	})
}
