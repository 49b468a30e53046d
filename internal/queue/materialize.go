package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/filmgraph/backend/pkg/docstore"
	"github.com/filmgraph/backend/pkg/graph"
	"github.com/filmgraph/backend/pkg/leaselock"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/store"
)

// Locker serializes materializations across processes. *leaselock.Client
// satisfies it.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// RunLedger records materialization runs. *ledger.Ledger satisfies it.
type RunLedger interface {
	Start(ctx context.Context, target string, passes []graph.Pass) (string, error)
	Finish(ctx context.Context, id string, report *graph.Report, runErr error) error
}

// MaterializeJob wires a materialization run: it takes the lease for the
// target graph store, records the run and executes the passes. Locks and
// Ledger are optional.
type MaterializeJob struct {
	Docs         docstore.Store
	Storage      store.GraphStorage
	Materializer *graph.Materializer

	Locks       Locker
	LockOptions leaselock.Options
	Ledger      RunLedger

	// Target identifies the graph store, usually its URI.
	Target string
}

// MaterializeResult is the outcome of a MaterializeJob run.
type MaterializeResult struct {
	RunID  string        `json:"run_id,omitempty"`
	Report *graph.Report `json:"report,omitempty"`
}

// Run executes passes under the lease. ErrBusy from the lease is returned
// unchanged so that callers can retry later.
func (j *MaterializeJob) Run(ctx context.Context, passes []graph.Pass) (*MaterializeResult, error) {
	if j.Docs == nil || j.Storage == nil || j.Materializer == nil {
		return nil, errors.New("materialize job is not configured")
	}
	if len(passes) == 0 {
		passes = graph.DefaultPasses
	}

	res := &MaterializeResult{}
	run := func(ctx context.Context) error {
		if j.Ledger != nil {
			id, err := j.Ledger.Start(ctx, j.Target, passes)
			if err != nil {
				return err
			}
			res.RunID = id
		}

		report, runErr := j.Materializer.Run(ctx, j.Docs, j.Storage, graph.RunOptions{Passes: passes})
		res.Report = report

		if j.Ledger != nil {
			// The lease context may be gone by now; the outcome is still recorded.
			if err := j.Ledger.Finish(context.WithoutCancel(ctx), res.RunID, report, runErr); err != nil {
				logger.Error("[Materialize] Failed to record run", "run_id", res.RunID, "err", err)
			}
		}
		return runErr
	}

	var err error
	if j.Locks != nil {
		err = j.Locks.WithLease(ctx, leaselock.MaterializeKey(j.Target), j.LockOptions, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return res, fmt.Errorf("materialize %s: %w", j.Target, err)
	}
	return res, nil
}

// ProcessMaterializeMessage handles one materialize_queue delivery and
// publishes a FinishedEvent on success.
func ProcessMaterializeMessage(ctx context.Context, ch Channel, job *MaterializeJob, body []byte) error {
	msg, err := decode[MaterializeMsg](body)
	if err != nil {
		return err
	}
	passes, err := graph.ParsePasses(msg.Passes)
	if err != nil {
		return fmt.Errorf("materialize message %s: %w", msg.RequestID, err)
	}

	logger.Info("[Queue] Materializing", "request_id", msg.RequestID, "passes", fmt.Sprint(passes), "requested_by", msg.RequestedBy)

	res, err := job.Run(ctx, passes)
	if err != nil {
		return err
	}

	event, err := json.Marshal(FinishedEvent{RequestID: msg.RequestID, RunID: res.RunID, Status: "succeeded"})
	if err != nil {
		return err
	}
	if err := PublishTopic(ch, TopicMaterialized, event); err != nil {
		logger.Warn("[Queue] Failed to publish event", "topic", TopicMaterialized, "err", err)
	}
	return nil
}
