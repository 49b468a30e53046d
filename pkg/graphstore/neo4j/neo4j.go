package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/graphstore"
	"github.com/filmgraph/backend/pkg/logger"
)

// Options configures the Bolt connection.
type Options struct {
	URI      string
	Username string
	Password string
	Database string
	// Timeout bounds every statement. Defaults to 30s.
	Timeout time.Duration
}

// OptionsFromEnv reads NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD,
// NEO4J_DATABASE and NEO4J_TIMEOUT.
func OptionsFromEnv() Options {
	return Options{
		URI:      util.GetEnvString("NEO4J_URI", "neo4j://localhost:7687"),
		Username: util.GetEnvString("NEO4J_USERNAME", "neo4j"),
		Password: util.GetEnv("NEO4J_PASSWORD"),
		Database: util.GetEnv("NEO4J_DATABASE"),
		Timeout:  util.GetEnvDuration("NEO4J_TIMEOUT", 30*time.Second),
	}
}

// Client implements graphstore.Store over a Bolt driver.
type Client struct {
	driver  neo4j.DriverWithContext
	db      string
	timeout time.Duration
}

// driverConfig disables the driver's managed transaction retries. Callers
// retry connection errors themselves.
func driverConfig(opts Options) func(*neo4j.Config) {
	return func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = 50
		cfg.SocketConnectTimeout = 5 * time.Second
		cfg.ConnectionAcquisitionTimeout = opts.Timeout
		cfg.MaxTransactionRetryTime = 0
	}
}

// Connect creates the driver and verifies connectivity.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	auth := neo4j.BasicAuth(opts.Username, opts.Password, "")
	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, driverConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(context.Background())
		return nil, wrapErr("verify connectivity", err)
	}

	logger.Debug("[Neo4j] connected", "uri", opts.URI, "database", opts.Database)
	return &Client{driver: driver, db: opts.Database, timeout: opts.Timeout}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Run(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	return c.execute(ctx, neo4j.AccessModeWrite, query, params)
}

func (c *Client) Read(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	return c.execute(ctx, neo4j.AccessModeRead, query, params)
}

func (c *Client) execute(
	ctx context.Context,
	mode neo4j.AccessMode,
	query string,
	params map[string]any,
) ([]graphstore.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.db})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]graphstore.Record, len(records))
		for i, rec := range records {
			out[i] = graphstore.Record(rec.AsMap())
		}
		return out, nil
	}

	var (
		res any
		err error
	)
	if mode == neo4j.AccessModeRead {
		res, err = session.ExecuteRead(ctx, work)
	} else {
		res, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, wrapErr("execute", err)
	}
	return res.([]graphstore.Record), nil
}

func wrapErr(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("neo4j %s: %w: %w", op, common.ErrConnection, err)
	}
	return fmt.Errorf("neo4j %s: %w", op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded)
}
