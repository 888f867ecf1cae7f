// Package auth checks a credential against the identity endpoint before the
// session connects with it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrExpired      = errors.New("auth: token expired")
)

// IdentityFunc resolves the user a token belongs to.
type IdentityFunc func(ctx context.Context, token string) (protocol.User, error)

type Validator struct {
	identity IdentityFunc
	timeout  time.Duration
	log      *zap.Logger
	group    singleflight.Group

	// Now is used for the expiry pre-check.
	Now func() time.Time
}

func NewValidator(identity IdentityFunc, timeout time.Duration, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		identity: identity,
		timeout:  timeout,
		log:      log.Named("auth"),
		Now:      time.Now,
	}
}

// Validate returns the user behind token. Concurrent calls for the same
// token share a single identity request.
func (v *Validator) Validate(ctx context.Context, token string) (protocol.User, error) {
	if token == "" {
		return protocol.User{}, ErrMissingToken
	}
	if err := CheckExpiry(token, v.Now()); err != nil {
		return protocol.User{}, err
	}

	ch := v.group.DoChan(token, func() (any, error) {
		// the shared call outlives any single caller
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return v.identity(callCtx, token)
	})

	select {
	case <-ctx.Done():
		return protocol.User{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			v.log.Warn("token rejected", zap.Error(res.Err))
			return protocol.User{}, fmt.Errorf("validate token: %w", res.Err)
		}
		user := res.Val.(protocol.User)
		v.log.Debug("token valid", zap.String("user_id", user.ID), zap.Bool("shared", res.Shared))
		return user, nil
	}
}

// CheckExpiry reads the exp claim without verifying the signature. Tokens
// that are not JWTs, or carry no exp, pass.
func CheckExpiry(token string, now time.Time) error {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
