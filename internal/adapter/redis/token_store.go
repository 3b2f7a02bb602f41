package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/platform/crypto"
)

// LoginStateTTL bounds how long a user may stay on the login page.
const LoginStateTTL = 10 * time.Minute

// TokenStore keeps identity-provider tokens, sealed, keyed by browser session.
type TokenStore struct {
	rdb      goredis.Cmdable
	sealer   crypto.Sealer
	tokenTTL time.Duration
}

var _ domain.TokenStore = (*TokenStore)(nil)

func NewTokenStore(rdb goredis.Cmdable, sealer crypto.Sealer, tokenTTL time.Duration) *TokenStore {
	return &TokenStore{rdb: rdb, sealer: sealer, tokenTTL: tokenTTL}
}

func (s *TokenStore) SaveToken(ctx context.Context, sessionID string, token *domain.AuthToken) error {
	plain, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	if err := s.rdb.Set(ctx, tokenKey(sessionID), sealed, s.tokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *TokenStore) LoadToken(ctx context.Context, sessionID string) (*domain.AuthToken, error) {
	sealed, err := s.rdb.Get(ctx, tokenKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open token: %w", err)
	}
	var token domain.AuthToken
	if err := json.Unmarshal(plain, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, tokenKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *TokenStore) SaveLoginState(ctx context.Context, state string, pending domain.PendingLogin) error {
	plain, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode login state: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("failed to seal login state: %w", err)
	}
	if err := s.rdb.Set(ctx, loginStateKey(state), sealed, LoginStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save login state: %w", err)
	}
	return nil
}

// ConsumeLoginState reads and deletes state atomically (GETDEL), so a
// callback can only be replayed once.
func (s *TokenStore) ConsumeLoginState(ctx context.Context, state string) (*domain.PendingLogin, error) {
	sealed, err := s.rdb.GetDel(ctx, loginStateKey(state)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrInvalidLoginState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume login state: %w", err)
	}

	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidLoginState, err)
	}
	var pending domain.PendingLogin
	if err := json.Unmarshal(plain, &pending); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidLoginState, err)
	}
	return &pending, nil
}

func tokenKey(sessionID string) string {
	return keyPrefix + "token:" + sessionID
}

func loginStateKey(state string) string {
	return keyPrefix + "login_state:" + state
}
