package service

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/jwt"
)

// AuthService trades the configured api key for a bearer token. The
// key itself is never stored, only its bcrypt hash from the config.
type AuthService struct {
	apiKeyHash []byte
	secret     []byte
	ttl        time.Duration
}

func NewAuthService(apiKeyHash string, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{apiKeyHash: []byte(apiKeyHash), secret: secret, ttl: ttl}
}

func (s *AuthService) IssueToken(ctx context.Context, apiKey string) (string, error) {
	_ = ctx
	if err := bcrypt.CompareHashAndPassword(s.apiKeyHash, []byte(apiKey)); err != nil {
		return "", appErr.ErrUnauthorized
	}
	return jwt.GenerateToken("api-client", s.secret, s.ttl)
}
