package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// TokenStore implements ports.TokenStore using Valkey (Redis-compatible).
type TokenStore struct {
	client valkey.Client
	ttl    time.Duration
}

// New connects to Valkey. Tokens expire after ttl unless refreshed by SetToken.
func New(addr string, ttl time.Duration) (*TokenStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &TokenStore{client: client, ttl: ttl}, nil
}

func tokenKey(sessionID string) string {
	return "poimap:session:" + sessionID + ":token"
}

// Token returns the session's bearer token, or "" when none is stored.
func (s *TokenStore) Token(ctx context.Context, sessionID string) (string, error) {
	tok, err := s.client.Do(ctx, s.client.B().Get().Key(tokenKey(sessionID)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return tok, nil
}

func (s *TokenStore) SetToken(ctx context.Context, sessionID, token string) error {
	cmd := s.client.B().Set().Key(tokenKey(sessionID)).Value(token).Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, sessionID string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(tokenKey(sessionID)).Build()).Error(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// Ping checks connectivity for the readiness probe.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (s *TokenStore) Close() {
	s.client.Close()
}
