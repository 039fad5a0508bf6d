package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestService_IssueAndVerify(t *testing.T) {
	s, err := NewService("test-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	token, err := s.IssueAdminToken("ops", time.Hour)
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	sub, err := s.Verify(token)
	if err != nil || sub != "ops" {
		t.Fatalf("expected subject ops, got %q %v", sub, err)
	}

	other, _ := NewService("another-secret")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature must fail, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must fail, got %v", err)
	}
}

func TestService_RejectsNonAdminRole(t *testing.T) {
	s, _ := NewService("test-secret")
	claims := AdminClaims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if _, err := s.Verify(token); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestService_EphemeralSecret(t *testing.T) {
	s, err := NewService("  ")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if len(s.secret) == 0 {
		t.Fatal("expected a generated secret")
	}
}

func TestAdminMiddleware(t *testing.T) {
	s, _ := NewService("test-secret")
	token, _ := s.IssueAdminToken("ops", time.Hour)

	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, SubjectFromContext(c))
	}, s.AdminMiddleware)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "ops" {
				t.Fatalf("subject not propagated: %q", rec.Body.String())
			}
		})
	}
}
