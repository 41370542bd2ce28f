// Package apiclient is an HTTP client for the admin API. It is the calling
// layer that drives image editing sessions from outside the browser.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/retailstore/service/internal/product"
	"github.com/retailstore/service/internal/storage"
)

// StatusError is a non-success API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api responded %d: %s", e.StatusCode, e.Message)
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CreateProduct is the body of a product creation.
type CreateProduct struct {
	ProductName string  `json:"productName"`
	Barcode     string  `json:"barcode"`
	Price       string  `json:"price"`
	Unit        string  `json:"unit"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	ImageFileID *string `json:"imageFileId,omitempty"`
}

// Client talks to the admin API with a bearer token.
type Client struct {
	baseURL         string
	client          *http.Client
	token           string
	log             logrus.FieldLogger
	credentialRetry func() retry.Backoff
}

// New creates a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
		credentialRetry: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
		},
	}
}

// SetToken sets the bearer token used for admin calls.
func (c *Client) SetToken(token string) { c.token = token }

// Login exchanges admin credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token", body, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	c.token = out.Token
	return out.Token, nil
}

// UploadCredential asks the backend to sign a direct upload. Transport errors
// and gateway failures are retried a bounded number of times; a 500 means the
// backend is not configured and is returned at once.
func (c *Client) UploadCredential(ctx context.Context) (storage.UploadCredential, error) {
	var cred storage.UploadCredential
	err := retry.Do(ctx, c.credentialRetry(), func(ctx context.Context) error {
		err := c.do(ctx, http.MethodPost, "/api/admin/imagekit/auth", nil, &cred)
		if err != nil && retryable(err) {
			c.log.WithError(err).Warn("upload credential request failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return storage.UploadCredential{}, fmt.Errorf("issue upload credential: %w", err)
	}
	return cred, nil
}

// Delete removes a stored image through the backend's store proxy. The backend
// already reports an absent file as success. Failures come back as
// *storage.UpstreamError so callers can treat them like direct store errors.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("%w: fileId is required", storage.ErrInvalidArgument)
	}

	err := c.do(ctx, http.MethodDelete, "/api/admin/imagekit/file/"+url.PathEscape(fileID), nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound {
			return storage.ErrNotFound
		}
		return &storage.UpstreamError{StatusCode: statusErr.StatusCode, Body: statusErr.Message}
	}
	return err
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	if err := c.do(ctx, http.MethodGet, productPath(id), nil, &p); err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

// CreateProduct creates a product.
func (c *Client) CreateProduct(ctx context.Context, req CreateProduct) (*product.Product, error) {
	var p product.Product
	if err := c.do(ctx, http.MethodPost, "/api/admin/products", req, &p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// UpdateProduct sends a partial update; nil fields are not serialised.
func (c *Client) UpdateProduct(ctx context.Context, id int64, u product.Update) (*product.Product, error) {
	var p product.Product
	if err := c.do(ctx, http.MethodPatch, productPath(id), u, &p); err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return &p, nil
}

func productPath(id int64) string {
	return "/api/admin/products/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}
