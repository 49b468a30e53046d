// Package ledger records the history of materialization runs in Postgres.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/graph"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// maxErrorLen bounds the error text stored for a failed run.
const maxErrorLen = 4096

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("materialization run not found")

// DB is the subset of pgx used by the ledger. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Ledger struct {
	db DB
}

func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{db: pool}
}

func NewWithDB(db DB) *Ledger {
	return &Ledger{db: db}
}

// Run is one row of materialization_runs.
type Run struct {
	ID         string        `json:"id"`
	Target     string        `json:"target"`
	Passes     []string      `json:"passes"`
	Status     Status        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Report     *graph.Report `json:"report,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Start records a running materialization and returns its id.
func (l *Ledger) Start(ctx context.Context, target string, passes []graph.Pass) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}

	names := make([]string, len(passes))
	for i, p := range passes {
		names[i] = string(p)
	}

	if _, err := l.db.Exec(ctx, insertRunSQL, id, target, names); err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// Finish stores the outcome of a run. A nil runErr marks it succeeded.
func (l *Ledger) Finish(ctx context.Context, id string, report *graph.Report, runErr error) error {
	status := StatusSucceeded
	var msg *string
	if runErr != nil {
		status = StatusFailed
		s := util.SanitizeErrorText(runErr.Error(), maxErrorLen)
		msg = &s
	}

	var raw []byte
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		raw = b
	}

	before, after := totals(report)
	tag, err := l.db.Exec(ctx, finishRunSQL,
		id, string(status), raw, msg,
		before.nodes, before.relationships, after.nodes, after.relationships,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type countPair struct {
	nodes, relationships *int64
}

func pair(c *common.GraphCounts) countPair {
	if c == nil {
		return countPair{}
	}
	n, r := c.TotalNodes(), c.TotalRelationships()
	return countPair{nodes: &n, relationships: &r}
}

func totals(report *graph.Report) (before, after countPair) {
	if report == nil {
		return countPair{}, countPair{}
	}
	return pair(report.Before), pair(report.After)
}

// Get returns a run by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(l.db.QueryRow(ctx, getRunSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// Recent returns the latest runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run    Run
		status string
		raw    []byte
		errMsg *string
	)
	if err := row.Scan(&run.ID, &run.Target, &run.Passes, &status, &run.StartedAt, &run.FinishedAt, &raw, &errMsg); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	if errMsg != nil {
		run.Error = *errMsg
	}
	if len(raw) > 0 {
		run.Report = &graph.Report{}
		if err := json.Unmarshal(raw, run.Report); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
	}
	return &run, nil
}

const insertRunSQL = `
INSERT INTO materialization_runs (id, target, passes, status, started_at)
VALUES ($1, $2, $3, 'running', now());
`

const finishRunSQL = `
UPDATE materialization_runs
SET status               = $2,
    report               = $3,
    error                = $4,
    nodes_before         = $5,
    relationships_before = $6,
    nodes_after          = $7,
    relationships_after  = $8,
    finished_at          = now()
WHERE id = $1;
`

const runColumns = `id, target, passes, status, started_at, finished_at, report, error`

const getRunSQL = `SELECT ` + runColumns + ` FROM materialization_runs WHERE id = $1;`

const recentRunsSQL = `SELECT ` + runColumns + ` FROM materialization_runs ORDER BY started_at DESC LIMIT $1;`
