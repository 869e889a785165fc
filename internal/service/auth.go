// Package service contains application services for events, sharing, history and authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/cems/internal/crypto"
	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/limiter"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, username, email, password string) (userID int64, err error)
	// LoginWithIP applies rate-limiting and authenticates the user by email.
	LoginWithIP(ctx context.Context, email, password, ip string) (tokens model.Tokens, user model.User, err error)
	// Logout revokes the token until it would have expired anyway.
	Logout(ctx context.Context, token string) error
	// Authenticate verifies a bearer token and returns its subject.
	Authenticate(ctx context.Context, token string) (userID int64, err error)
}

// RevocationStore is an expiring set of revoked token ids.
type RevocationStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	revoked   RevocationStore
	hash      pkgcrypto.Params
	log       *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration,
	lim limiter.Limiter, revoked RevocationStore, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim, revoked: revoked,
		hash: pkgcrypto.DefaultParams(), log: log}
}

// WithPasswordParams sets the Argon2id costs used for new password hashes.
// Existing hashes keep verifying with the costs encoded in them.
func (s *AuthServiceImpl) WithPasswordParams(p pkgcrypto.Params) *AuthServiceImpl {
	s.hash = p
	return s
}

const tokenLeeway = 30 * time.Second

// Register creates a new user record with a freshly salted password hash.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (int64, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || password == "" || !strings.Contains(email, "@") {
		return 0, errs.Invalid("username, email and password are required")
	}
	pwdHash, err := pkgcrypto.HashPassword(password, s.hash)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Username: username,
		Email:    email,
		PwdHash:  pwdHash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return 0, err
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return u.ID, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	ok := false
	if err == nil {
		ok, err = pkgcrypto.VerifyPassword(password, u.PwdHash)
		if err != nil {
			s.log.Error("stored password hash", zap.Int64("user_id", u.ID), zap.Error(err))
		}
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

// issueAccessToken creates a signed HS256 JWT with a random id for revocation.
func (s *AuthServiceImpl) issueAccessToken(userID int64) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// parse verifies signature, algorithm and time claims.
func (s *AuthServiceImpl) parse(token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(tokenLeeway))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("token without id: %w", errs.ErrUnauthorized)
	}
	return &claims, nil
}

func revocationKey(jti string) string { return "revoked:" + jti }

// Authenticate rejects revoked tokens.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (int64, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, err
	}
	revoked, err := s.revoked.Has(ctx, revocationKey(claims.ID))
	if err != nil {
		return 0, err
	}
	if revoked {
		return 0, fmt.Errorf("token revoked: %w", errs.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	return id, nil
}

// Logout stores the token id for the rest of the token's lifetime.
func (s *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	ttl := tokenLeeway
	if claims.ExpiresAt != nil {
		ttl += time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Set(ctx, revocationKey(claims.ID), []byte{1}, ttl); err != nil {
		return err
	}
	s.log.Info("token revoked", zap.String("subject", claims.Subject))
	return nil
}
