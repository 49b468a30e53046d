package cli

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/filmgraph/backend/internal/queue"
	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/loader"
	ioloader "github.com/filmgraph/backend/pkg/loader/io"
	s3loader "github.com/filmgraph/backend/pkg/loader/s3"
)

var (
	importFromS3     bool
	importBatchSize  int
	importShowErrors bool
)

// newS3Loader builds the S3 loader from AWS_*. Tests replace it.
var newS3Loader = func(cmd *cobra.Command) (loader.FileLoader, error) {
	return s3loader.NewS3FileLoader(cmd.Context(), s3loader.ParamsFromEnv())
}

var importCmd = &cobra.Command{
	Use:   "import <path|key>",
	Short: "Import a JSON or NDJSON film dataset into the document store",
	Long: `Import a film dataset.

Records are validated one by one; invalid or undecodable lines are skipped
and reported. Legacy field names are mapped to the canonical schema and
malformed JSON lines are repaired when possible.

Examples:
  filmgraph import ./movies.ndjson
  filmgraph import --s3 imports/movies.jsonl --batch-size 1000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !loader.IsDatasetKey(args[0]) {
			return fmt.Errorf("%s is not a dataset file (.json, .jsonl, .ndjson)", args[0])
		}

		ctx := cmd.Context()
		b, err := openBackends(ctx, false)
		if err != nil {
			return err
		}
		defer b.Close()

		job := &queue.ImportJob{
			Docs:   b.Docs,
			Local:  ioloader.NewIOFileLoader(),
			Config: loader.ImportOptions{BatchSize: importBatchSize},
		}
		source := queue.ImportSourceFile
		if importFromS3 {
			s3, err := newS3Loader(cmd)
			if err != nil {
				return err
			}
			job.S3 = s3
			source = queue.ImportSourceS3
		}

		requestID, err := gonanoid.New()
		if err != nil {
			return err
		}
		report, err := job.Run(ctx, queue.ImportMsg{
			RequestID: requestID,
			Source:    source,
			Key:       args[0],
		})
		if report != nil {
			if !importShowErrors {
				report.Skipped = nil
			}
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	importCmd.Flags().BoolVar(&importFromS3, "s3", false, "read the dataset from the AWS_BUCKET object with this key")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", util.GetEnvInt("IMPORT_BATCH_SIZE", 500), "films per insert")
	importCmd.Flags().BoolVar(&importShowErrors, "show-skipped", true, "include skipped lines in the report")
	rootCmd.AddCommand(importCmd)
}
