package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIBase is ImageKit's management API root.
const DefaultAPIBase = "https://api.imagekit.io/v1"

// maxErrorBody caps how much of a failed response is kept in an UpstreamError.
const maxErrorBody = 64 << 10

// ImageKitStorage implements Storage against the ImageKit REST API,
// authenticating with the private key as a basic-auth user name.
type ImageKitStorage struct {
	client     *http.Client
	apiBase    string
	privateKey string
	observer   Observer
}

// Option customises an ImageKitStorage.
type Option func(*ImageKitStorage)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *ImageKitStorage) { s.client = c }
}

// WithAPIBase overrides the API root, e.g. for a test server.
func WithAPIBase(base string) Option {
	return func(s *ImageKitStorage) { s.apiBase = strings.TrimRight(base, "/") }
}

// WithObserver records store call telemetry.
func WithObserver(o Observer) Option {
	return func(s *ImageKitStorage) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewImageKitStorage returns a store proxy. An empty privateKey is accepted so the
// server can start in development; every call then fails with ErrNotConfigured.
func NewImageKitStorage(privateKey string, opts ...Option) *ImageKitStorage {
	s := &ImageKitStorage{
		client:     &http.Client{Timeout: 15 * time.Second},
		apiBase:    DefaultAPIBase,
		privateKey: privateKey,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delete removes a file. A 204 (or any 2xx) is success, 404 maps to ErrNotFound,
// and anything else to *UpstreamError. The call is never retried here.
func (s *ImageKitStorage) Delete(ctx context.Context, fileID string) (err error) {
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("%w: fileId is required", ErrInvalidArgument)
	}
	if s.privateKey == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	defer func() { s.observer.RecordDelete(time.Since(start), err) }()

	endpoint := s.apiBase + "/files/" + url.PathEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete file %q: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	return upstreamError(resp, "Failed to delete ImageKit file")
}

// List returns one page of files, optionally restricted to a folder path.
func (s *ImageKitStorage) List(ctx context.Context, opts ListOptions) (files []File, err error) {
	if s.privateKey == "" {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	defer func() { s.observer.RecordList(time.Since(start), err) }()

	q := url.Values{}
	if opts.Path != "" {
		q.Set("path", opts.Path)
	}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	endpoint := s.apiBase + "/files"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp, "Failed to list ImageKit files")
	}
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	return files, nil
}

func (s *ImageKitStorage) authorize(req *http.Request) {
	token := base64.StdEncoding.EncodeToString([]byte(s.privateKey + ":"))
	req.Header.Set("Authorization", "Basic "+token)
	req.Header.Set("Accept", "application/json")
}

func upstreamError(resp *http.Response, fallback string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := string(body)
	if strings.TrimSpace(msg) == "" {
		msg = fallback
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Body: msg}
}
