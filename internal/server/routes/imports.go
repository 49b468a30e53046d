package routes

import (
	"encoding/json"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/filmgraph/backend/internal/queue"
	"github.com/filmgraph/backend/internal/server/middleware"
	"github.com/filmgraph/backend/pkg/loader"
	"github.com/filmgraph/backend/pkg/logger"
)

const importPrefix = "imports"

// ImportHandler enqueues a dataset import. The dataset is either uploaded
// as the multipart field "file" or named by the form value "key" of an
// object already in the bucket.
func ImportHandler(c echo.Context) error {
	type importResponse struct {
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
		Key       string `json:"key,omitempty"`
	}

	cc := c.(*middleware.AppContext)
	if cc.App.Queue == nil {
		return unavailable(c, "Queue")
	}

	requestID, err := gonanoid.New()
	if err != nil {
		return respondError(c, err)
	}

	key := c.FormValue("key")
	if fh, err := c.FormFile("file"); err == nil {
		if !loader.IsDatasetKey(fh.Filename) {
			return c.JSON(http.StatusBadRequest, importResponse{Message: "Dataset must be a .json, .jsonl or .ndjson file"})
		}
		if cc.App.Uploads == nil {
			return unavailable(c, "Object storage")
		}
		f, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, importResponse{Message: "Invalid file"})
		}
		defer f.Close()

		key, err = cc.App.Uploads.Upload(c.Request().Context(), importPrefix, requestID+path.Ext(fh.Filename), f)
		if err != nil {
			logger.Error("[Server] Failed to upload dataset", "err", err)
			return c.JSON(http.StatusServiceUnavailable, importResponse{Message: "Failed to upload dataset"})
		}
	}
	if key == "" {
		return c.JSON(http.StatusBadRequest, importResponse{Message: "Missing file or key"})
	}

	materialize, _ := strconv.ParseBool(c.FormValue("materialize"))
	msg, err := json.Marshal(queue.ImportMsg{
		RequestID:   requestID,
		Source:      queue.ImportSourceS3,
		Key:         key,
		Materialize: materialize,
		RequestedBy: strconv.FormatInt(cc.User.UserID, 10),
	})
	if err != nil {
		return respondError(c, err)
	}
	if err := queue.PublishFIFO(cc.App.Queue, queue.ImportQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue import", "err", err)
		return c.JSON(http.StatusServiceUnavailable, importResponse{Message: "Failed to enqueue import"})
	}

	return c.JSON(http.StatusAccepted, importResponse{Message: "Import queued", RequestID: requestID, Key: key})
}
