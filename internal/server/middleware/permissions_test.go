package middleware

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role string
		want []string
	}{
		{role: "admin", want: allPermissions},
		{role: "curator", want: []string{PermFilmCreate, PermFilmUpdate, PermFilmDelete, PermFilmImport}},
		{role: "operator", want: []string{PermGraphMaterialize, PermGraphRuns}},
		{role: "user", want: nil},
		{role: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := RolePermissions(tt.role)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRolePermissions_ReturnsCopy(t *testing.T) {
	got := RolePermissions("admin")
	got[0] = "tampered"
	if allPermissions[0] != PermFilmCreate {
		t.Fatalf("role grant aliases the shared list: %v", allPermissions)
	}
}

func TestCanViewRuns(t *testing.T) {
	tests := []struct {
		name  string
		user  *AppUser
		allow bool
	}{
		{name: "anonymous", user: nil, allow: false},
		{name: "runs reader", user: &AppUser{Permissions: []string{PermGraphRuns}}, allow: true},
		{name: "materializer", user: &AppUser{Permissions: []string{PermGraphMaterialize}}, allow: true},
		{name: "curator", user: &AppUser{Permissions: RolePermissions("curator")}, allow: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanViewRuns(tt.user); got != tt.allow {
				t.Fatalf("expected %v, got %v", tt.allow, got)
			}
		})
	}
}

func TestRequireGuards(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	tests := []struct {
		name  string
		guard echo.MiddlewareFunc
		user  *AppUser
		want  int
	}{
		{name: "no user", guard: RequirePermission(PermFilmDelete), user: nil, want: http.StatusUnauthorized},
		{name: "missing film permission", guard: RequirePermission(PermFilmDelete), user: &AppUser{Permissions: []string{PermFilmCreate}}, want: http.StatusForbidden},
		{name: "film permission", guard: RequirePermission(PermFilmDelete), user: &AppUser{Permissions: []string{PermFilmDelete}}, want: http.StatusNoContent},
		{name: "runs as operator", guard: RequireRunAccess(), user: &AppUser{Permissions: RolePermissions("operator")}, want: http.StatusNoContent},
		{name: "runs as curator", guard: RequireRunAccess(), user: &AppUser{Permissions: RolePermissions("curator")}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := &AppContext{Context: e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), App: &App{}, User: tt.user}
			if err := tt.guard(ok)(c); err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
