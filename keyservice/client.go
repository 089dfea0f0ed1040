// SPDX-License-Identifier: Apache-2.0

// Package keyservice is the client for the remote key-issuance service:
// per-record key material generation and retrieval, plus the credentials
// exchange that keeps a short-lived bearer token fresh in the background.
package keyservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/sealkv/sealkv/crypto"
	"github.com/sealkv/sealkv/internal/logger"
	"github.com/sealkv/sealkv/recrypt"
)

// TokenProvider supplies the bearer token for service calls. The
// production implementation is [Credentials].
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Config carries the client's connection settings.
type Config struct {
	BaseURL     string
	ClientID    string
	WorkspaceID string
	Timeout     time.Duration
}

// Client calls the key service over HTTP. It implements
// [crypto.KeySource]. Client performs no retries: transient failures are
// marked [ErrTransient] and left to the caller.
type Client struct {
	client      *resty.Client
	clientID    string
	workspaceID string
	tokens      TokenProvider
	logger      *logger.Logger
}

// NewClient builds a key service client.
func NewClient(cfg Config, tokens TokenProvider, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("key service base url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &Client{
		client:      cli,
		clientID:    cfg.ClientID,
		workspaceID: cfg.WorkspaceID,
		tokens:      tokens,
		logger:      log,
	}, nil
}

type generateKeyRequest struct {
	ClientID    string `json:"client_id"`
	WorkspaceID string `json:"workspace_id"`
	Descriptor  string `json:"descriptor"`
	RequestID   string `json:"request_id"`
}

type generateKeyResponse struct {
	Iv       string `json:"iv"`
	Material string `json:"key_material"`
	Tag      string `json:"tag"`
}

type retrieveKeyRequest struct {
	ClientID    string `json:"client_id"`
	WorkspaceID string `json:"workspace_id"`
	Descriptor  string `json:"descriptor"`
	Iv          string `json:"iv"`
	Tag         string `json:"tag"`
	RequestID   string `json:"request_id"`
}

type retrieveKeyResponse struct {
	Material string `json:"key_material"`
}

// GenerateKey asks the service for fresh key material scoped to
// descriptor. The returned iv and tag are what retrieval needs later.
func (c *Client) GenerateKey(ctx context.Context, descriptor string) (crypto.GeneratedKey, error) {
	requestID := uuid.NewString()

	req, err := c.authedRequest(ctx)
	if err != nil {
		return crypto.GeneratedKey{}, err
	}

	resp, err := req.
		SetBody(generateKeyRequest{
			ClientID:    c.clientID,
			WorkspaceID: c.workspaceID,
			Descriptor:  descriptor,
			RequestID:   requestID,
		}).
		Post("/api/generate-data-key")
	if err != nil {
		return crypto.GeneratedKey{}, fmt.Errorf("%w: generate-data-key: %v", ErrTransient, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return crypto.GeneratedKey{}, err
	}

	var body generateKeyResponse
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		return crypto.GeneratedKey{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	iv, err := decodeIv(body.Iv)
	if err != nil {
		return crypto.GeneratedKey{}, err
	}
	material, err := decodeField(body.Material, "key_material")
	if err != nil {
		return crypto.GeneratedKey{}, err
	}
	tag, err := decodeField(body.Tag, "tag")
	if err != nil {
		return crypto.GeneratedKey{}, err
	}

	c.logger.Debug().
		Str("descriptor", descriptor).
		Str("request_id", requestID).
		Msg("generated data key material")

	return crypto.GeneratedKey{Iv: iv, Material: material, Tag: tag}, nil
}

// RetrieveKey fetches previously issued key material back from the
// service.
func (c *Client) RetrieveKey(ctx context.Context, iv recrypt.Iv, descriptor string, tag []byte) ([]byte, error) {
	requestID := uuid.NewString()

	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := req.
		SetBody(retrieveKeyRequest{
			ClientID:    c.clientID,
			WorkspaceID: c.workspaceID,
			Descriptor:  descriptor,
			Iv:          base64.StdEncoding.EncodeToString(iv[:]),
			Tag:         base64.StdEncoding.EncodeToString(tag),
			RequestID:   requestID,
		}).
		Post("/api/retrieve-data-key")
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve-data-key: %v", ErrTransient, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var body retrieveKeyResponse
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	material, err := decodeField(body.Material, "key_material")
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("descriptor", descriptor).
		Str("request_id", requestID).
		Msg("retrieved data key material")

	return material, nil
}

func (c *Client) authedRequest(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	return c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+token), nil
}

func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(code)
	}

	switch {
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, body)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, body)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d: %s", ErrTransient, code, body)
	default:
		return fmt.Errorf("http %d: %s", code, body)
	}
}

func decodeIv(value string) (recrypt.Iv, error) {
	raw, err := decodeField(value, "iv")
	if err != nil {
		return recrypt.Iv{}, err
	}
	if len(raw) != recrypt.IvSize {
		return recrypt.Iv{}, fmt.Errorf("%w: iv is %d bytes", ErrInvalidResponse, len(raw))
	}
	var iv recrypt.Iv
	copy(iv[:], raw)
	return iv, nil
}

func decodeField(value, name string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s encoding: %v", ErrInvalidResponse, name, err)
	}
	return raw, nil
}
