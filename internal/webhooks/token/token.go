package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpiredToken = errors.New("callback token expired")
	ErrInvalidToken = errors.New("invalid callback token")
)

// Callback URIs live as long as a phone call plus generous slack.
const tokenLifetime = 4 * time.Hour

// Issuer signs and verifies the per-call tokens embedded in callback URIs,
// so only events for calls this server answered are accepted.
type Issuer struct {
	secret []byte
	logger *observability.Logger
}

func NewIssuer(secret string, logger *observability.Logger) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("callback token secret is required")
	}
	return &Issuer{secret: []byte(secret), logger: logger}, nil
}

// Issue creates a signed token scoped to one inbound call context.
func (i *Issuer) Issue(ctx context.Context, contextID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": contextID,
		"iss": "voice-agent-server",
		"aud": "voice-agent-server",
		"exp": now.Add(tokenLifetime).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		i.logger.Error(ctx, "failed to sign callback token", err)
		return "", fmt.Errorf("failed to sign callback token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the token signature and expiry and returns the call context
// ID it was issued for.
func (i *Issuer) Verify(ctx context.Context, tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		i.logger.Error(ctx, "failed to parse callback token", err)
		return "", ErrInvalidToken
	}
	if !t.Valid {
		return "", ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
