// Package auth binds connections to durable identities and tracks how
// strictly a session must verify them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnavailable  = errors.New("verifier unavailable")
)

// Identity is a verified user as reported by the identity service.
type Identity struct {
	UserID   int64
	Username string
}

// Verifier resolves an auth token to a verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// HTTPVerifier asks an external identity service to validate tokens.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

func NewHTTPVerifier(endpoint string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build verify request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	default:
		return Identity{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("decode verify response: %w", err)
	}
	return Identity{UserID: body.UserID, Username: body.Username}, nil
}

// StaticVerifier is a fixed token table for tests and development.
type StaticVerifier map[string]Identity

func (v StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := v[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
