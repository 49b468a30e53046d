package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/docstore"
	mongostore "github.com/filmgraph/backend/pkg/docstore/mongo"
	"github.com/filmgraph/backend/pkg/graphstore"
	neostore "github.com/filmgraph/backend/pkg/graphstore/neo4j"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/logger/console"
)

var (
	debug    bool
	jsonLogs bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "filmgraph",
	Short: "Operate the film catalog and its knowledge graph",
	Long: `Command-line interface for the film catalog.

Materializes the document store into the graph store, runs catalog queries,
imports datasets and applies schema migrations. Connection settings are read
from the environment (MONGO_*, NEO4J_*, DATABASE_URL, AWS_*).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("debug") {
			debug = util.GetEnvBool("DEBUG", false)
		}
		if !cmd.Flags().Changed("json-logs") {
			jsonLogs = util.GetEnv("LOG_FORMAT") == "json"
		}
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  debug,
			JSON:   jsonLogs,
			Output: cmd.ErrOrStderr(),
		}))
	},
}

// Backends are the stores a command works against.
type Backends struct {
	Docs  docstore.Store
	Graph graphstore.Store
	// Target identifies the graph store for leases and the run ledger.
	Target string
}

func (b *Backends) Close() {
	if b.Docs != nil {
		_ = b.Docs.Close(context.Background())
	}
	if b.Graph != nil {
		_ = b.Graph.Close(context.Background())
	}
}

// openBackends connects the stores a command needs. Tests replace it.
var openBackends = func(ctx context.Context, needGraph bool) (*Backends, error) {
	docs, err := mongostore.Connect(ctx, mongostore.OptionsFromEnv())
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	b := &Backends{Docs: docs}
	if !needGraph {
		return b, nil
	}

	opts := neostore.OptionsFromEnv()
	neo, err := neostore.Connect(ctx, opts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect graph store: %w", err)
	}
	b.Graph = neo
	b.Target = opts.URI
	return b, nil
}

// NewRootCommand returns the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	return rootCmd
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	util.LoadEnv()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (default $DEBUG)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log one JSON object per line (default LOG_FORMAT=json)")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
