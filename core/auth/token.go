// Package auth issues and verifies the bearer tokens that carry a caller's
// user and organization identity between requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"simplicity-itsm/config"
	"simplicity-itsm/core/utils"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a verified token asserts about the caller. Everything
// else (roles, plan, org state) is loaded fresh from the database on each
// request.
type Identity struct {
	UserID string
	OrgID  string
}

type tokenClaims struct {
	UserID string `json:"userId"`
	OrgID  string `json:"orgId"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(cfg *config.AppConfig) (*TokenManager, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth: JWT secret is not configured")
	}
	return &TokenManager{
		secret: []byte(cfg.Auth.JWTSecret),
		ttl:    cfg.EffectiveTokenTTL(),
	}, nil
}

func (m *TokenManager) Issue(id Identity) (string, time.Time, error) {
	now := utils.NowUTC()
	expires := now.Add(m.ttl)
	claims := tokenClaims{
		UserID: id.UserID,
		OrgID:  id.OrgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (m *TokenManager) Parse(raw string) (Identity, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.OrgID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, OrgID: claims.OrgID}, nil
}
