package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/internal/queue"
	"github.com/filmgraph/backend/internal/util"
	mongostore "github.com/filmgraph/backend/pkg/docstore/mongo"
	"github.com/filmgraph/backend/pkg/graph"
	neostore "github.com/filmgraph/backend/pkg/graphstore/neo4j"
	"github.com/filmgraph/backend/pkg/leaselock"
	"github.com/filmgraph/backend/pkg/loader"
	ioloader "github.com/filmgraph/backend/pkg/loader/io"
	s3loader "github.com/filmgraph/backend/pkg/loader/s3"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/logger/console"
	"github.com/filmgraph/backend/pkg/store/cypher"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	// document and graph stores
	docs, err := mongostore.Connect(ctx, mongostore.OptionsFromEnv())
	if err != nil {
		logger.Fatal("[Worker] Could not connect to MongoDB", "err", err)
	}
	defer docs.Close(context.Background())

	neoOpts := neostore.OptionsFromEnv()
	neo, err := neostore.Connect(ctx, neoOpts)
	if err != nil {
		logger.Fatal("[Worker] Could not connect to Neo4j", "err", err)
	}
	defer neo.Close(context.Background())

	materializer, err := graph.NewMaterializer(graph.NewMaterializerParams{
		BatchSize:     util.GetEnvInt("MATERIALIZE_BATCH_SIZE", 500),
		ParallelKinds: util.GetEnvInt("MATERIALIZE_PARALLEL", 3),
	})
	if err != nil {
		logger.Fatal("[Worker] Could not create materializer", "err", err)
	}

	materializeJob := &queue.MaterializeJob{
		Docs:         docs,
		Storage:      cypher.NewGraphStorage(neo),
		Materializer: materializer,
		LockOptions:  leaselock.OptionsFromEnv(),
		Target:       neoOpts.URI,
	}
	// lease and run ledger live in Postgres
	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("[Worker] Unable to connect to database", "err", err)
		}
		defer pool.Close()
		materializeJob.Locks = leaselock.New(pool)
		materializeJob.Ledger = ledger.New(pool)
	}

	importJob := &queue.ImportJob{
		Docs:   docs,
		Local:  ioloader.NewIOFileLoader(),
		Config: loader.ImportOptions{BatchSize: util.GetEnvInt("IMPORT_BATCH_SIZE", 500)},
	}
	if util.GetEnv("AWS_BUCKET") != "" {
		s3, err := s3loader.NewS3FileLoader(ctx, s3loader.ParamsFromEnv())
		if err != nil {
			logger.Fatal("[Worker] Could not create S3 client", "err", err)
		}
		importJob.S3 = s3
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("[Worker] Failed to set up queues", "err", err)
	}

	// A single consumer channel with prefetch=1 delivers one message at a
	// time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("[Worker] Failed to set QoS", "err", err)
	}

	handlers := map[string]queue.Handler{
		queue.MaterializeQueue: func(ctx context.Context, body []byte) error {
			return queue.ProcessMaterializeMessage(ctx, ch, materializeJob, body)
		},
		queue.ImportQueue: func(ctx context.Context, body []byte) error {
			return queue.ProcessImportMessage(ctx, ch, importJob, body)
		},
	}

	logger.Info("[Worker] Listening for messages")
	if err := queue.Consume(ctx, consumerCh, handlers); err != nil {
		logger.Fatal("[Worker] Consumer failed", "err", err)
	}
	logger.Info("[Worker] Shutdown signal received, exiting...")
}
