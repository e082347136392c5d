package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/clients/lcd"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/monitor"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize int64 = 10
	maxPageSize     int64 = 100
)

type Meta struct {
	PageNum  int64 `json:"page_num"`
	PageSize int64 `json:"page_size"`
	Total    int64 `json:"total"`
}

type TransfersResponse struct {
	Meta Meta                     `json:"meta"`
	Data []*models.TransferRecord `json:"data"`
}

type ActiveChainsResponse struct {
	ChainPairs []models.ChainPair `json:"chain_pairs"`
	Chains     []string           `json:"chains"`
}

type ChainChannelsResponse struct {
	ChainID  string        `json:"chain_id"`
	Channels []lcd.Channel `json:"channels"`
}

type activeChannelsRequest struct {
	ChainID []string `query:"chain_id" validate:"dive,required,max=128"`
}

func (s *Server) getHealth(c echo.Context) error {
	if s.health != nil {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		if err := s.health(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getTransfers(c echo.Context) error {
	query, err := db.ParseTransferQuery(c.QueryParams())
	if err != nil {
		return err
	}
	if query.PageSize == 0 {
		query.PageSize = defaultPageSize
	}
	if query.PageSize > maxPageSize {
		return echo.NewHTTPError(http.StatusBadRequest, "page_size must not exceed 100")
	}
	if err := query.Validate(); err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	var (
		recs  []*models.TransferRecord
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		recs, err = s.transfers.FindPage(gctx, query)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.transfers.CountPage(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if recs == nil {
		recs = []*models.TransferRecord{}
	}
	return c.JSON(http.StatusOK, TransfersResponse{
		Meta: Meta{PageNum: query.PageNum, PageSize: query.PageSize, Total: total},
		Data: recs,
	})
}

func (s *Server) getEarliestTransfer(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	rec, err := s.transfers.FindEarliest(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) getTransfer(c echo.Context) error {
	recordID := strings.TrimSpace(c.Param("record_id"))
	if recordID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "record_id is required")
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	rec, err := s.transfers.FindByRecordID(ctx, recordID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) getStatistics(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	return c.JSON(http.StatusOK, s.overview.Overview(ctx, s.now().Unix()))
}

func (s *Server) getActiveChains(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	pairs, err := s.transfers.FindActiveChainPairs24hr(ctx, s.now().Unix())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ActiveChainsResponse{ChainPairs: pairs, Chains: monitor.ChainsOf(pairs)})
}

// getActiveChannels uses the chain_id parameter (repeated or comma separated)
// and falls back to every chain active in the window.
func (s *Server) getActiveChannels(c echo.Context) error {
	var req activeChannelsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.ChainID = splitList(req.ChainID)
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	now := s.now().Unix()
	chainIDs := req.ChainID
	if len(chainIDs) == 0 {
		pairs, err := s.transfers.FindActiveChainPairs24hr(ctx, now)
		if err != nil {
			return err
		}
		chainIDs = monitor.ChainsOf(pairs)
	}
	channels, err := s.overview.ActiveChannels(ctx, now, chainIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, channels)
}

func (s *Server) getChainChannels(c echo.Context) error {
	chainID := strings.TrimSpace(c.Param("chain_id"))
	ctx, cancel := s.requestContext(c)
	defer cancel()
	channels, err := s.channels.OpenChannels(ctx, chainID)
	if errors.Is(err, lcd.ErrUnknownChain) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		log.Warn().Err(err).Str("chain_id", chainID).Msg("[ApiServer] [getChainChannels] gateway request failed")
		return echo.NewHTTPError(http.StatusBadGateway, "gateway request failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, ChainChannelsResponse{ChainID: chainID, Channels: channels})
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
