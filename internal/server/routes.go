package server

import (
	"github.com/labstack/echo/v4"

	"github.com/filmgraph/backend/internal/server/middleware"
	"github.com/filmgraph/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Film routes
	apiRoutes.GET("/films", routes.GetFilmsHandler)
	apiRoutes.GET("/films/:id", routes.GetFilmHandler)
	apiRoutes.POST("/films", routes.CreateFilmHandler, middleware.RequirePermission(middleware.PermFilmCreate))
	apiRoutes.PATCH("/films/:id", routes.EditFilmHandler, middleware.RequirePermission(middleware.PermFilmUpdate))
	apiRoutes.DELETE("/films/:id", routes.DeleteFilmHandler, middleware.RequirePermission(middleware.PermFilmDelete))

	// Query catalog routes
	apiRoutes.GET("/queries", routes.GetQueriesHandler)
	apiRoutes.GET("/queries/:name", routes.RunQueryHandler)

	// Materialization routes
	apiRoutes.POST("/materialize", routes.MaterializeHandler, middleware.RequirePermission(middleware.PermGraphMaterialize))
	apiRoutes.GET("/materialize/runs", routes.GetMaterializeRunsHandler, middleware.RequireRunAccess())
	apiRoutes.GET("/materialize/runs/:id", routes.GetMaterializeRunHandler, middleware.RequireRunAccess())

	// Dataset import routes
	apiRoutes.POST("/imports", routes.ImportHandler, middleware.RequirePermission(middleware.PermFilmImport))
}
