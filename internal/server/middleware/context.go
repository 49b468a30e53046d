package middleware

import (
	"context"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/filmgraph/backend/internal/ledger"
	"github.com/filmgraph/backend/internal/queue"
	"github.com/filmgraph/backend/pkg/films"
	"github.com/filmgraph/backend/pkg/query"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// RunHistory reads recorded materialization runs. *ledger.Ledger satisfies it.
type RunHistory interface {
	Get(ctx context.Context, id string) (*ledger.Run, error)
	Recent(ctx context.Context, limit int) ([]ledger.Run, error)
}

// Uploader stores uploaded datasets. *s3.S3FileLoader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, prefix, key string, body io.Reader) (string, error)
}

// App holds the clients shared by every request. Queue, Runs and Uploads
// are optional; handlers that need a missing one answer 503.
type App struct {
	Films   *films.Service
	Catalog *query.Catalog
	Queue   queue.Channel
	Runs    RunHistory
	Uploads Uploader

	Keyfunc        jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
