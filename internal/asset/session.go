package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/retailstore/service/internal/storage"
)

// ErrNotImage is returned when a selected file is not an image.
var ErrNotImage = errors.New("selected file is not an image")

// ErrSessionClosed is returned by any action on a cancelled or submitted session.
var ErrSessionClosed = errors.New("editing session is closed")

// ErrInvalidReference is returned for a file id without a url.
var ErrInvalidReference = errors.New("image reference has a fileId but no url")

// Mode tells whether the session edits a new or an existing record.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// LocalFile is a file the user picked but has not uploaded yet.
type LocalFile struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// Slot is the session's image state: Unchanged, Staged or Removed.
type Slot interface {
	isSlot()
}

// Unchanged keeps the record's current image.
type Unchanged struct{}

// Staged queues a new file to replace the current image on submit.
type Staged struct {
	File LocalFile
}

// Removed clears the image on submit.
type Removed struct{}

func (Unchanged) isSlot() {}
func (Staged) isSlot()    {}
func (Removed) isSlot()   {}

// Deleter removes a stored file. storage.ErrNotFound counts as success.
type Deleter interface {
	Delete(ctx context.Context, fileID string) error
}

// Uploader pushes a local file to the store and reports where it landed.
type Uploader interface {
	Upload(ctx context.Context, file LocalFile) (Reference, error)
}

// Reconciler opens editing sessions that share one store proxy.
type Reconciler struct {
	store Deleter
	log   logrus.FieldLogger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Deleter, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Session is one edit form's image state. It is not safe for concurrent use.
type Session struct {
	r        *Reconciler
	mode     Mode
	original Reference
	// originalGone is set once the original asset is confirmed deleted from the store.
	originalGone bool
	slot         Slot
	closed       bool
}

// Open starts a session seeded with the record's current image.
func (r *Reconciler) Open(mode Mode, original Reference) (*Session, error) {
	if !original.Valid() {
		return nil, ErrInvalidReference
	}
	if mode == ModeCreate && !original.IsZero() {
		return nil, fmt.Errorf("%w: a new record has no image yet", ErrInvalidReference)
	}
	return &Session{r: r, mode: mode, original: original, slot: Unchanged{}}, nil
}

// State returns the current slot.
func (s *Session) State() Slot { return s.slot }

// Select stages file. The current image is not touched until an upload succeeds.
func (s *Session) Select(file LocalFile) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !strings.HasPrefix(file.ContentType, "image/") {
		return fmt.Errorf("%w: %q has type %q", ErrNotImage, file.Name, file.ContentType)
	}
	s.slot = Staged{File: file}
	return nil
}

// Remove clears the image. With the original image still showing, its asset is
// deleted right away and the state only changes once the store confirms; on
// failure the session stays Unchanged. Removing a staged file defers the
// original's deletion to Submit. An original without a file id is only
// cleared from the record.
func (s *Session) Remove(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}

	switch s.slot.(type) {
	case Unchanged:
		if s.hasLiveOriginal() {
			if err := s.r.deleteAsset(ctx, s.original.FileID); err != nil {
				return fmt.Errorf("remove image: %w", err)
			}
			s.originalGone = true
		}
		s.slot = Removed{}
	case Staged:
		s.slot = Removed{}
	case Removed:
	}
	return nil
}

// Cancel closes the session without any store call. If the original asset was
// already deleted by Remove, its reference is returned: the record still points
// at it and the caller should warn or clear it.
func (s *Session) Cancel() Reference {
	s.closed = true
	if s.originalGone {
		return s.original
	}
	return Reference{}
}

// hasLiveOriginal reports whether the original asset still exists and can be
// deleted through the store.
func (s *Session) hasLiveOriginal() bool {
	return s.original.Deletable() && !s.originalGone
}

func (r *Reconciler) deleteAsset(ctx context.Context, fileID string) error {
	err := r.store.Delete(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		r.log.WithField("file_id", fileID).Info("image already absent from store")
		return nil
	}
	return err
}
