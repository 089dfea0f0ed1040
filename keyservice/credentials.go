// SPDX-License-Identifier: Apache-2.0

package keyservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sealkv/sealkv/internal/logger"
)

// refreshSkew is how long before expiry a token is considered stale.
const refreshSkew = 30 * time.Second

// Credentials exchanges a long-lived access key for short-lived bearer
// tokens and keeps the current token fresh. The token lives in a
// read-mostly cell: readers take a short read lock and observe either the
// prior or the refreshed token, never a partial state. A background
// refresh job started with Start owns the recurring exchange; Stop
// cancels it without stranding readers, who keep getting the
// last-known-good token.
type Credentials struct {
	client    *resty.Client
	accessKey string
	logger    *logger.Logger

	mu     sync.RWMutex
	token  string
	expiry time.Time

	jobMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// CredentialsConfig carries the token exchange settings.
type CredentialsConfig struct {
	BaseURL   string
	AccessKey string
	Timeout   time.Duration
}

// NewCredentials builds a credentials manager. No token is fetched until
// the first Token call or Start.
func NewCredentials(cfg CredentialsConfig, log *logger.Logger) (*Credentials, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("credentials base url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &Credentials{client: cli, accessKey: cfg.AccessKey, logger: log}, nil
}

// Token returns the current bearer token, exchanging the access key first
// if no valid token is held. The fast path is a read lock only; the
// exchange itself runs outside any lock held by readers.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiry := c.token, c.expiry
	c.mu.RUnlock()

	if token != "" && time.Until(expiry) > refreshSkew {
		return token, nil
	}

	if err := c.refresh(ctx); err != nil {
		// A stale token beats no token; the service will reject it if
		// it is truly dead.
		if token != "" {
			return token, nil
		}
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

type authorizeRequest struct {
	AccessKey string `json:"access_key"`
}

type authorizeResponse struct {
	Token string `json:"token"`
}

// refresh exchanges the access key for a fresh token and swaps it in
// under a short write lock.
func (c *Credentials) refresh(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(authorizeRequest{AccessKey: c.accessKey}).
		Post("/api/authorize")
	if err != nil {
		return fmt.Errorf("%w: authorize: %v", ErrTransient, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	var body authorizeResponse
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if body.Token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidResponse)
	}

	expiry := tokenExpiry(body.Token)

	c.mu.Lock()
	c.token, c.expiry = body.Token, expiry
	c.mu.Unlock()

	c.logger.Debug().Time("expiry", expiry).Msg("refreshed key service token")
	return nil
}

// Start launches the background refresh job, stopping any previous one.
// The job refreshes on a ticker until ctx is cancelled or Stop is called;
// a failed refresh is logged and retried on the next tick while readers
// keep the last-known-good token.
func (c *Credentials) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	c.Stop()

	c.jobMu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	c.jobMu.Unlock()

	go func() {
		defer c.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				if err := c.refresh(jobCtx); err != nil {
					c.logger.Warn().Err(err).Msg("background token refresh failed")
				}
			}
		}
	}()
}

// Stop cancels the background refresh job and blocks until it has fully
// exited. Safe to call when the job is not running.
func (c *Credentials) Stop() {
	c.jobMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.jobMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// tokenExpiry reads the token's exp claim without verifying the
// signature; verification is the service's job. A token with no readable
// expiry is treated as immediately stale so it gets refreshed eagerly.
func tokenExpiry(tokenString string) time.Time {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
