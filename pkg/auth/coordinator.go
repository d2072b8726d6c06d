package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/corelink-proto/corelink-go/pkg/keystore"
	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// ExpirySkew is subtracted from the token expiry when judging
// freshness, so a token is treated as expired slightly early rather
// than failing mid-request.
const ExpirySkew = 30 * time.Second

// Auth errors.
var (
	// ErrReauthenticationRequired indicates the refresh policy is
	// exhausted and the user must authenticate again.
	ErrReauthenticationRequired = errors.New("reauthentication required")

	// ErrNoToken indicates no credentials are available.
	ErrNoToken = errors.New("no auth token available")
)

// Token holds the bearer credentials.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired returns true if the access token is past (or within
// ExpirySkew of) its expiry.
func (t *Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt.Add(-ExpirySkew))
}

// Refresher exchanges a refresh token for fresh credentials.
// Implemented by the application against its identity provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// Coordinator owns the auth token and the single-flight refresh.
type Coordinator struct {
	mu        sync.RWMutex
	token     *Token
	store     keystore.Store
	refresher Refresher
	logger    log.Logger

	// Single-flight group joining concurrent refresh attempts.
	sf singleflight.Group
}

// New creates a coordinator. If the keystore holds a persisted token it
// is loaded; a corrupt stored token is discarded rather than loaded.
func New(store keystore.Store, refresher Refresher, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NoopLogger{}
	}

	c := &Coordinator{
		store:     store,
		refresher: refresher,
		logger:    logger,
	}

	if store != nil {
		if data, err := store.Get(keystore.KeyAuthToken); err == nil {
			var tok Token
			if err := json.Unmarshal(data, &tok); err == nil {
				c.token = &tok
			}
		}
	}

	return c
}

// Token returns a copy of the current token.
func (c *Coordinator) Token() (*Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil, ErrNoToken
	}
	tok := *c.token
	return &tok, nil
}

// SetToken installs fresh credentials (the login flow) and persists
// them through the keystore.
func (c *Coordinator) SetToken(tok *Token) error {
	c.mu.Lock()
	copied := *tok
	c.token = &copied
	c.mu.Unlock()

	return c.persist(&copied)
}

// Attach adds the current access token to a request.
// The token is attached even if expired; an unauthorized response then
// drives the single-flight refresh path.
func (c *Coordinator) Attach(req *wire.Request) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return ErrNoToken
	}
	req.Authorization = "Bearer " + c.token.AccessToken
	return nil
}

// HandleUnauthorized reacts to an unauthorized response: it runs one
// refresh per overlapping set of callers and reports the shared
// outcome. A nil return means fresh credentials are installed and the
// caller should retry its original request once. On failure all waiters
// receive ErrReauthenticationRequired.
func (c *Coordinator) HandleUnauthorized(ctx context.Context) error {
	_, err, _ := c.sf.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

// Logout discards credentials from memory and the keystore.
func (c *Coordinator) Logout() error {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.Delete(keystore.KeyAuthToken)
}

// refresh exchanges the refresh token for fresh credentials.
func (c *Coordinator) refresh(ctx context.Context) error {
	c.mu.RLock()
	current := c.token
	c.mu.RUnlock()

	if current == nil || current.RefreshToken == "" {
		return ErrReauthenticationRequired
	}

	fresh, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryError,
			Error:     &log.ErrorEvent{Op: "token refresh", Message: err.Error()},
		})
		return fmt.Errorf("%w: %v", ErrReauthenticationRequired, err)
	}

	c.mu.Lock()
	copied := *fresh
	c.token = &copied
	c.mu.Unlock()

	if err := c.persist(&copied); err != nil {
		// Degraded durability only; the in-memory token stays valid.
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryError,
			Error:     &log.ErrorEvent{Op: "token persist", Message: err.Error()},
		})
	}
	return nil
}

// persist writes the token through the keystore collaborator.
func (c *Coordinator) persist(tok *Token) error {
	if c.store == nil {
		return nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to serialize token: %w", err)
	}
	return c.store.Set(keystore.KeyAuthToken, data)
}
