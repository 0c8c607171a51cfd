package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRole(role string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		ctx := context.WithValue(req.Context(), UserRoleKey, role)
		req = req.WithContext(ctx)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		required []string
		allowed  bool
	}{
		{"matching role", RoleDoctor, []string{RoleDoctor}, true},
		{"one of several", RolePatient, []string{RoleDoctor, RolePatient}, true},
		{"admin bypasses", RoleAdmin, []string{RoleDoctor}, true},
		{"wrong role", RolePatient, []string{RoleDoctor}, false},
		{"no role on context", "", []string{RoleDoctor}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := requestWithRole(tc.role)
			called := false
			err := RequireRole(tc.required...)(func(c echo.Context) error {
				called = true
				return c.NoContent(http.StatusOK)
			})(c)

			if tc.allowed {
				if err != nil || !called {
					t.Errorf("expected pass, got err=%v called=%v", err, called)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %v", err)
			}
			if called {
				t.Error("handler must not run")
			}
		})
	}
}
