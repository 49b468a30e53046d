package routes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/internal/queue"
	"github.com/filmgraph/backend/internal/server/middleware"
	"github.com/filmgraph/backend/pkg/graph"
	"github.com/filmgraph/backend/pkg/logger"
)

// MaterializeHandler enqueues a materialization run. Passes are checked
// here so that a bad request never reaches the worker.
func MaterializeHandler(c echo.Context) error {
	type materializeBody struct {
		Passes string `json:"passes"`
	}

	type materializeResponse struct {
		Message   string       `json:"message"`
		RequestID string       `json:"request_id,omitempty"`
		Passes    []graph.Pass `json:"passes,omitempty"`
	}

	data := new(materializeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, materializeResponse{Message: "Invalid request body"})
	}
	passes, err := graph.ParsePasses(data.Passes)
	if err != nil {
		return c.JSON(http.StatusBadRequest, materializeResponse{Message: err.Error()})
	}

	cc := c.(*middleware.AppContext)
	if cc.App.Queue == nil {
		return unavailable(c, "Queue")
	}

	requestID, err := gonanoid.New()
	if err != nil {
		return respondError(c, err)
	}
	msg, err := json.Marshal(queue.MaterializeMsg{
		RequestID:   requestID,
		Passes:      data.Passes,
		RequestedBy: strconv.FormatInt(cc.User.UserID, 10),
	})
	if err != nil {
		return respondError(c, err)
	}
	if err := queue.PublishFIFO(cc.App.Queue, queue.MaterializeQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue materialization", "err", err)
		return c.JSON(http.StatusServiceUnavailable, materializeResponse{Message: "Failed to enqueue materialization"})
	}

	return c.JSON(http.StatusAccepted, materializeResponse{
		Message:   "Materialization queued",
		RequestID: requestID,
		Passes:    passes,
	})
}

func GetMaterializeRunsHandler(c echo.Context) error {
	type getRunsParams struct {
		Limit int `query:"limit" validate:"gte=0,lte=200"`
	}

	type getRunsResponse struct {
		Message string       `json:"message"`
		Runs    []ledger.Run `json:"runs"`
	}

	params := new(getRunsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunsResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunsResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.Runs == nil {
		return unavailable(c, "Run ledger")
	}
	runs, err := app.Runs.Recent(c.Request().Context(), params.Limit)
	if err != nil {
		return respondError(c, err)
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	return c.JSON(http.StatusOK, getRunsResponse{Message: "OK", Runs: runs})
}

func GetMaterializeRunHandler(c echo.Context) error {
	type getRunResponse struct {
		Message string      `json:"message"`
		Run     *ledger.Run `json:"run,omitempty"`
	}

	app := c.(*middleware.AppContext).App
	if app.Runs == nil {
		return unavailable(c, "Run ledger")
	}
	run, err := app.Runs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, getRunResponse{Message: "OK", Run: run})
}
