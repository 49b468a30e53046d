package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/internal/queue"
	mid "github.com/filmgraph/backend/internal/server/middleware"
	"github.com/filmgraph/backend/internal/util"
	mongostore "github.com/filmgraph/backend/pkg/docstore/mongo"
	"github.com/filmgraph/backend/pkg/films"
	neostore "github.com/filmgraph/backend/pkg/graphstore/neo4j"
	s3loader "github.com/filmgraph/backend/pkg/loader/s3"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/query"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New returns an echo instance with the middleware stack and every route
// registered against app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(util.GetEnvString("BODY_LIMIT", "512M")))

	RegisterRoutes(e)
	return e
}

// Init connects every backing service from the environment and serves the
// API until SIGINT or SIGTERM.
func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := mongostore.Connect(ctx, mongostore.OptionsFromEnv())
	if err != nil {
		logger.Fatal("[Server] Failed to connect to MongoDB", "err", err)
	}
	defer docs.Close(context.Background())

	neo, err := neostore.Connect(ctx, neostore.OptionsFromEnv())
	if err != nil {
		logger.Fatal("[Server] Failed to connect to Neo4j", "err", err)
	}
	defer neo.Close(context.Background())

	masterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)
	app := &mid.App{
		Films:          films.NewService(docs),
		Catalog:        query.NewCatalog(docs, neo, query.WithTracer(query.LogTracer{})),
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   masterUserID,
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("[Server] Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}

	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("[Server] Failed to connect to database", "err", err)
		}
		defer pool.Close()
		app.Runs = ledger.New(pool)
	}

	if util.GetEnv("RABBITMQ_HOST") != "" {
		conn := queue.Init()
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("[Server] Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			logger.Fatal("[Server] Failed to set up queues", "err", err)
		}
		app.Queue = ch
	}

	if util.GetEnv("AWS_BUCKET") != "" {
		uploads, err := s3loader.NewS3FileLoader(ctx, s3loader.ParamsFromEnv())
		if err != nil {
			logger.Fatal("[Server] Failed to create S3 client", "err", err)
		}
		app.Uploads = uploads
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("[Server] Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("[Server] Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
	}
}
