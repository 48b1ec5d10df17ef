package security

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appauth "propchat/internal/app/services/auth"
	domainauth "propchat/internal/domain/auth"
	"propchat/internal/domain/chat"
)

var ErrJWTSecretMissing = errors.New("security: jwt secret is required")

// Claims is the payload accepted by the JWT gate.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTGate authenticates HS256 bearer tokens signed by an upstream identity provider.
type JWTGate struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

func NewJWTGate(secret, issuer string, logger *slog.Logger) (*JWTGate, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrJWTSecretMissing
	}
	return &JWTGate{secret: []byte(secret), issuer: strings.TrimSpace(issuer), logger: logger}, nil
}

func (g *JWTGate) Authenticate(ctx context.Context, cred domainauth.Credential) (chat.Actor, error) {
	if cred.Empty() {
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}
	token, err := jwt.ParseWithClaims(cred.Token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domainauth.ErrInvalidToken
		}
		return g.secret, nil
	}, opts...)
	if err != nil {
		if g.logger != nil {
			g.logger.Debug("jwt rejected", "err", err)
		}
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	role, ok := chat.ParseRole(claims.Role)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	return chat.Actor{ID: claims.Subject, Role: role, DisplayName: claims.Name}, nil
}

// Issue signs a token for the given actor. Used by tooling and tests.
func (g *JWTGate) Issue(actor chat.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(actor.Role),
		Name: actor.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

var _ appauth.Gate = (*JWTGate)(nil)
