package cli

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/internal/queue"
	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/graph"
	"github.com/filmgraph/backend/pkg/leaselock"
	"github.com/filmgraph/backend/pkg/store/cypher"
)

var (
	materializePasses    string
	materializeBatchSize int
	materializeParallel  int
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Build the knowledge graph from the document store",
	Long: `Materialize the film catalog into the graph store.

When DATABASE_URL is set the run holds the materialization lease for the
graph store and is recorded in the run ledger.

Examples:
  filmgraph materialize                       Films, entities and relationships
  filmgraph materialize --passes all          Include derived director pairs
  filmgraph materialize --passes derived      Only recompute derived pairs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		passes, err := graph.ParsePasses(materializePasses)
		if err != nil {
			return err
		}
		materializer, err := graph.NewMaterializer(graph.NewMaterializerParams{
			BatchSize:     materializeBatchSize,
			ParallelKinds: materializeParallel,
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b, err := openBackends(ctx, true)
		if err != nil {
			return err
		}
		defer b.Close()

		job := &queue.MaterializeJob{
			Docs:         b.Docs,
			Storage:      cypher.NewGraphStorage(b.Graph, cypher.WithBatchSize(materializeBatchSize)),
			Materializer: materializer,
			LockOptions:  leaselock.OptionsFromEnv(),
			Target:       b.Target,
		}
		if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
			pool, err := pgxpool.New(ctx, dbURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			job.Locks = leaselock.New(pool)
			job.Ledger = ledger.New(pool)
		}

		res, err := job.Run(ctx, passes)
		if res != nil {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	materializeCmd.Flags().StringVar(&materializePasses, "passes", "", "comma-separated passes (films, entities, relationships, derived) or \"all\"")
	materializeCmd.Flags().IntVar(&materializeBatchSize, "batch-size", util.GetEnvInt("MATERIALIZE_BATCH_SIZE", 500), "rows per graph write")
	materializeCmd.Flags().IntVar(&materializeParallel, "parallel", util.GetEnvInt("MATERIALIZE_PARALLEL", 3), "entity kinds written concurrently")
	rootCmd.AddCommand(materializeCmd)
}
