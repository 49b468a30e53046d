package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/query"
)

type errorResponse struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, query.ErrUnknownQuery),
		errors.Is(err, ledger.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConnection):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status from statusOf. Server errors are
// logged and their details are not returned.
func respondError(c echo.Context, err error) error {
	status := statusOf(err)
	resp := errorResponse{Message: err.Error()}

	var verr *common.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	switch status {
	case http.StatusInternalServerError:
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		resp.Message = "Internal server error"
	case http.StatusServiceUnavailable:
		logger.Warn("[Server] Store unavailable", "path", c.Path(), "err", err)
		resp.Message = "Store unavailable"
	}
	return c.JSON(status, resp)
}

func unavailable(c echo.Context, what string) error {
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: what + " not configured"})
}
