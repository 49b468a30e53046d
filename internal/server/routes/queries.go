package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/filmgraph/backend/internal/server/middleware"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/query"
)

// GetQueriesHandler lists the catalog with the JSON schema of every row
// shape.
func GetQueriesHandler(c echo.Context) error {
	type getQueriesResponse struct {
		Message string              `json:"message"`
		Queries []query.Description `json:"queries"`
	}

	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, getQueriesResponse{Message: "OK", Queries: app.Catalog.Describe()})
}

// RunQueryHandler runs the named entry. Query string values are the entry
// parameters; repeated keys use the first value. trace=1 adds the executed
// statements and their timings to the response.
func RunQueryHandler(c echo.Context) error {
	type runQueryResponse struct {
		Message string                    `json:"message"`
		Result  *query.Result             `json:"result,omitempty"`
		Trace   *query.QueryTraceSnapshot `json:"trace,omitempty"`
	}

	params := make(map[string]string)
	for k, v := range c.QueryParams() {
		if len(v) > 0 && k != "trace" {
			params[k] = v[0]
		}
	}

	ctx := c.Request().Context()
	var trace *query.QueryTrace
	if raw := c.QueryParam("trace"); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return respondError(c, common.NewValidationError("trace", "must be a boolean"))
		}
		if on {
			trace = query.NewQueryTrace()
			ctx = query.ContextWithTracer(ctx, trace)
		}
	}

	app := c.(*middleware.AppContext).App
	res, err := app.Catalog.Run(ctx, c.Param("name"), params)
	if err != nil {
		return respondError(c, err)
	}

	resp := runQueryResponse{Message: "OK", Result: res}
	if res.Empty {
		resp.Message = res.Message
	}
	if trace != nil {
		snap := trace.Snapshot()
		resp.Trace = &snap
	}
	return c.JSON(http.StatusOK, resp)
}
