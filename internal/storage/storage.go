// Package storage talks to the external image store (ImageKit).
// Image bytes never pass through the backend: clients upload directly with a
// signed credential, and the backend only deletes and lists files on its own key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when the ImageKit keys are missing.
var ErrNotConfigured = errors.New("imagekit configuration is missing")

// ErrInvalidArgument is returned for malformed caller input, before any network call.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotFound is returned when the store reports the file as absent.
var ErrNotFound = errors.New("file not found")

// UpstreamError carries a failed store response verbatim for diagnostics.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("imagekit responded %d: %s", e.StatusCode, e.Body)
}

// File is a stored object as reported by the store's listing API.
type File struct {
	FileID    string    `json:"fileId"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	FilePath  string    `json:"filePath"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListOptions narrows a file listing.
type ListOptions struct {
	Path  string
	Skip  int
	Limit int
}

// Storage is the interface for the backend-side store operations.
type Storage interface {
	// Delete removes the file identified by fileID.
	Delete(ctx context.Context, fileID string) error
	// List returns one page of files.
	List(ctx context.Context, opts ListOptions) ([]File, error)
}
