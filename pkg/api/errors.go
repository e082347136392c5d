package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/db"
	"go.mongodb.org/mongo-driver/mongo"
)

type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	resp := Error{
		Code:      http.StatusInternalServerError,
		Message:   "An unexpected error occurred.",
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}

	var (
		httpErr       *echo.HTTPError
		validationErr validator.ValidationErrors
	)
	switch {
	case errors.Is(err, db.ErrInvalidQuery), errors.As(err, &validationErr):
		resp.Code, resp.Message = http.StatusBadRequest, err.Error()
	case errors.Is(err, mongo.ErrNoDocuments):
		resp.Code, resp.Message = http.StatusNotFound, "transfer not found"
	case errors.As(err, &httpErr):
		resp.Code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			resp.Message = msg
		} else {
			resp.Message = http.StatusText(httpErr.Code)
		}
	default:
		log.Error().Err(err).Str("request_id", resp.RequestID).Msg("[ApiServer] internal error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(resp.Code)
	} else {
		err = c.JSON(resp.Code, resp)
	}
	if err != nil {
		log.Error().Err(err).Msg("[ApiServer] failed to write error response")
	}
}
