package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AdminRole       = "admin"
	DefaultTokenTTL = 24 * time.Hour
	issuer          = "campsite-finder"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotAdmin     = errors.New("token lacks admin role")
)

// AdminClaims are the claims of an admin token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies HMAC-signed admin tokens.
type Service struct {
	secret []byte
	now    func() time.Time
}

// NewService uses secret, or an ephemeral random secret when it is empty.
// Tokens signed with an ephemeral secret die with the process.
func NewService(secret string) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate admin secret fallback: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("CAMPSITE_ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	return &Service{secret: []byte(secret), now: time.Now}, nil
}

// IssueAdminToken mints a token for subject valid for ttl.
func (s *Service) IssueAdminToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	claims := AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, expiry and role, returning the subject.
func (s *Service) Verify(tokenString string) (string, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Role != AdminRole {
		return "", ErrNotAdmin
	}
	return claims.Subject, nil
}
