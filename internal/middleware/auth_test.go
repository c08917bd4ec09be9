package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/vehicle-register-system/internal/authz"
	"github.com/mmeshcher/vehicle-register-system/internal/identity"
)

type stubDirectory struct {
	user *identity.User
	err  error
}

func (s *stubDirectory) GetUser(ctx context.Context, id string) (*identity.User, error) {
	return s.user, s.err
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	dir := &stubDirectory{
		user: &identity.User{ID: "u-42", Name: "Ivan Petrov", Roles: []string{"User"}},
	}
	m := NewAuthMiddleware("test-secret", dir)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true

		actor, ok := GetActorFromContext(r.Context())
		if !ok {
			t.Fatalf("actor not in context")
		}
		if actor.ID != "u-42" || actor.Name != "Ivan Petrov" {
			t.Fatalf("actor from context = %+v", actor)
		}

		roles, ok := GetRolesFromContext(r.Context())
		if !ok || len(roles) != 1 || roles[0] != "User" {
			t.Fatalf("roles from context = %v, %v", roles, ok)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.SetAuthCookie(w, "u-42")
	res := w.Result()
	resCookies := res.Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r.AddCookie(resCookies[0])

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", &stubDirectory{})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_TamperedCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", &stubDirectory{
		user: &identity.User{ID: "u-42", Name: "Ivan Petrov"},
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, "u-42")
	cookie := w.Result().Cookies()[0]
	cookie.Value = "u-1" + cookie.Value[len("u-42"):]

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookie)

	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_UserNotInDirectory(t *testing.T) {
	m := NewAuthMiddleware("test-secret", &stubDirectory{err: identity.ErrUserNotFound})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, "ghost")

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(w.Result().Cookies()[0])

	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireOperation(t *testing.T) {
	tests := []struct {
		name       string
		roles      []string
		op         authz.Operation
		wantStatus int
	}{
		{
			name:       "validator allowed to return",
			roles:      []string{"OrderValidator"},
			op:         authz.OpReturnOrder,
			wantStatus: http.StatusOK,
		},
		{
			name:       "user forbidden to return",
			roles:      []string{"User"},
			op:         authz.OpReturnOrder,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no roles in context",
			roles:      nil,
			op:         authz.OpCreateOrder,
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest(http.MethodPost, "/op", nil)
			if tt.roles != nil {
				r = r.WithContext(context.WithValue(r.Context(), rolesKey, tt.roles))
			}

			rec := httptest.NewRecorder()
			RequireOperation(tt.op)(next).ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
