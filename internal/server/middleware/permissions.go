package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// Film catalog permissions.
const (
	PermFilmCreate = "film.create"
	PermFilmUpdate = "film.update"
	PermFilmDelete = "film.delete"
	PermFilmImport = "film.import"
)

// Graph permissions. PermGraphRuns only reads the run history.
const (
	PermGraphMaterialize = "graph.materialize"
	PermGraphRuns        = "graph.view:runs"
)

var (
	filmPermissions  = []string{PermFilmCreate, PermFilmUpdate, PermFilmDelete, PermFilmImport}
	graphPermissions = []string{PermGraphMaterialize, PermGraphRuns}
	allPermissions   = slices.Concat(filmPermissions, graphPermissions)
)

// RolePermissions is the default grant for a token that carries a role but
// no permissions claim. Unknown roles get nothing.
func RolePermissions(role string) []string {
	switch role {
	case "admin":
		return slices.Clone(allPermissions)
	case "curator":
		return slices.Clone(filmPermissions)
	case "operator":
		return slices.Clone(graphPermissions)
	default:
		return nil
	}
}

func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return slices.Contains(user.Permissions, permission)
}

func HasAnyPermission(user *AppUser, permissions ...string) bool {
	return slices.ContainsFunc(permissions, func(p string) bool { return HasPermission(user, p) })
}

// CanViewRuns reports whether the user may read materialization runs.
// Anyone allowed to start a run may also inspect it.
func CanViewRuns(user *AppUser) bool {
	return HasAnyPermission(user, PermGraphRuns, PermGraphMaterialize)
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return requireUser(func(u *AppUser) bool { return HasPermission(u, permission) },
		"Forbidden: missing permission "+permission)
}

// RequireRunAccess guards the run history endpoints.
func RequireRunAccess() echo.MiddlewareFunc {
	return requireUser(CanViewRuns, "Forbidden: missing permission "+PermGraphRuns)
}

func requireUser(allowed func(*AppUser) bool, forbidden string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if !allowed(user) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": forbidden})
			}
			return next(c)
		}
	}
}
