package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/filmgraph/backend/pkg/docstore"
	"github.com/filmgraph/backend/pkg/loader"
	"github.com/filmgraph/backend/pkg/logger"
)

// ImportJob imports datasets from either loader. A nil loader rejects
// messages for its source.
type ImportJob struct {
	Docs   docstore.Store
	S3     loader.FileLoader
	Local  loader.FileLoader
	Config loader.ImportOptions
}

func (j *ImportJob) loaderFor(src ImportSource) (loader.FileLoader, error) {
	var l loader.FileLoader
	switch src {
	case ImportSourceS3:
		l = j.S3
	case ImportSourceFile:
		l = j.Local
	}
	if l == nil {
		return nil, fmt.Errorf("no loader configured for source %q", src)
	}
	return l, nil
}

// Run imports the dataset named by msg.
func (j *ImportJob) Run(ctx context.Context, msg ImportMsg) (*loader.ImportReport, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	l, err := j.loaderFor(msg.Source)
	if err != nil {
		return nil, err
	}

	opts := j.Config
	if msg.BatchSize > 0 {
		opts.BatchSize = msg.BatchSize
	}
	file := loader.NewDatasetFile(msg.RequestID, msg.Key, l)
	return loader.Import(ctx, file, j.Docs, opts)
}

// ProcessImportMessage handles one import_queue delivery. Datasets are
// inserted without retry, so a failed batch is not redelivered: the error is
// logged and the message acknowledged.
func ProcessImportMessage(ctx context.Context, ch Channel, job *ImportJob, body []byte) error {
	msg, err := decode[ImportMsg](body)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Importing", "request_id", msg.RequestID, "source", msg.Source, "key", msg.Key)

	report, err := job.Run(ctx, msg)
	status := "succeeded"
	var errMsg string
	if err != nil {
		logger.Error("[Queue] Import failed", "request_id", msg.RequestID, "err", err)
		status, errMsg = "failed", err.Error()
	} else {
		logger.Info("[Queue] Import done", "request_id", msg.RequestID, "imported", report.Imported, "skipped", len(report.Skipped))
	}

	event, err := json.Marshal(FinishedEvent{RequestID: msg.RequestID, Status: status, Error: errMsg})
	if err != nil {
		return err
	}
	if err := PublishTopic(ch, TopicImported, event); err != nil {
		logger.Warn("[Queue] Failed to publish event", "topic", TopicImported, "err", err)
	}

	if errMsg == "" && msg.Materialize {
		next, err := json.Marshal(MaterializeMsg{RequestID: msg.RequestID, RequestedBy: msg.RequestedBy})
		if err != nil {
			return err
		}
		if err := PublishFIFO(ch, MaterializeQueue, next); err != nil {
			logger.Error("[Queue] Failed to enqueue materialization", "request_id", msg.RequestID, "err", err)
		}
	}
	return nil
}
