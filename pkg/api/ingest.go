package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
)

const maxBatchSize = 1000

type IngestResponse struct {
	RecordID       string         `json:"record_id"`
	Created        bool           `json:"created"`
	PreviousStatus *models.Status `json:"previous_status,omitempty"`
}

type IngestBatchResponse struct {
	Requested int   `json:"requested"`
	Inserted  int   `json:"inserted"`
	Failed    []int `json:"failed,omitempty"`
}

func (s *Server) postTransfer(c echo.Context) error {
	var rec models.TransferRecord
	if err := c.Bind(&rec); err != nil {
		return err
	}
	if err := c.Validate(&rec); err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	prev, err := s.writer.Ingest(ctx, &rec)
	if err != nil {
		return err
	}
	if prev == nil {
		return c.JSON(http.StatusCreated, IngestResponse{RecordID: rec.RecordID, Created: true})
	}
	return c.JSON(http.StatusOK, IngestResponse{RecordID: rec.RecordID, PreviousStatus: &prev.Status})
}

// postTransferBatch inserts new records only. Records rejected by the store
// (usually an existing record_id) are reported by index.
func (s *Server) postTransferBatch(c echo.Context) error {
	var recs []*models.TransferRecord
	if err := c.Bind(&recs); err != nil {
		return err
	}
	if len(recs) == 0 || len(recs) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest, "batch must hold between 1 and 1000 records")
	}
	for _, rec := range recs {
		if rec == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "batch must not contain null records")
		}
		if err := c.Validate(rec); err != nil {
			return err
		}
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	result, err := s.writer.IngestBatch(ctx, recs)
	if err != nil && !errors.Is(err, db.ErrRejectedRecords) {
		return err
	}
	resp := IngestBatchResponse{Requested: result.Requested, Inserted: result.Inserted}
	for idx := range result.Failed {
		resp.Failed = append(resp.Failed, idx)
	}
	sort.Ints(resp.Failed)
	return c.JSON(http.StatusOK, resp)
}
