package asset

import (
	"context"
	"errors"
	"fmt"
)

// UploadError reports that the direct upload did not complete. Nothing was
// deleted and no record field should be written.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "upload image: " + e.Err.Error() }

func (e *UploadError) Unwrap() error { return e.Err }

// CleanupStatus describes the best-effort deletion of a replaced image.
type CleanupStatus int

const (
	// CleanupNone means there was no old image to delete.
	CleanupNone CleanupStatus = iota
	// CleanupDone means the old image was deleted (or was already gone).
	CleanupDone
	// CleanupFailed means the old image may now be orphaned in the store.
	CleanupFailed
)

// Cleanup is the outcome of deleting a replaced image. A failure here is a
// warning: the new image already took the old one's place.
type Cleanup struct {
	Status CleanupStatus
	FileID string
	Err    error
}

// Failed reports whether the cleanup left an orphan behind.
func (c Cleanup) Failed() bool { return c.Status == CleanupFailed }

// Result is what a successful submit hands to the record update.
type Result struct {
	// Image holds the fields to write; omitted means untouched.
	Image ImagePatch
	// Uploaded is the new image, zero unless a file was uploaded.
	Uploaded Reference
	Cleanup  Cleanup
}

// Submit runs the save pipeline in order: upload a staged file, delete the
// replaced or removed asset, then return the image fields for the record.
// An upload failure or a failed explicit removal aborts with an error and
// leaves the session open; a failed cleanup after a replace does not.
func (s *Session) Submit(ctx context.Context, up Uploader) (Result, error) {
	if s.closed {
		return Result{}, ErrSessionClosed
	}

	var (
		res Result
		err error
	)
	switch slot := s.slot.(type) {
	case Staged:
		res, err = s.submitStaged(ctx, up, slot.File)
	case Removed:
		res, err = s.submitRemoved(ctx)
	case Unchanged:
		res = Result{}
	default:
		err = fmt.Errorf("unknown image state %T", slot)
	}
	if err != nil {
		return Result{}, err
	}

	s.closed = true
	return res, nil
}

func (s *Session) submitStaged(ctx context.Context, up Uploader, file LocalFile) (Result, error) {
	if up == nil {
		return Result{}, &UploadError{Err: errors.New("no uploader configured")}
	}

	ref, err := up.Upload(ctx, file)
	if err != nil {
		return Result{}, &UploadError{Err: err}
	}
	if ref.URL == "" || ref.FileID == "" {
		return Result{}, &UploadError{Err: fmt.Errorf("store returned incomplete reference %+v", ref)}
	}

	res := Result{Image: setImage(ref), Uploaded: ref}
	if s.mode == ModeUpdate && s.hasLiveOriginal() {
		res.Cleanup = s.cleanupOriginal(ctx)
	}
	return res, nil
}

func (s *Session) submitRemoved(ctx context.Context) (Result, error) {
	// The user removed a staged file while the original was still live, so the
	// original was never deleted. It must go before the record forgets it.
	if s.hasLiveOriginal() {
		if err := s.r.deleteAsset(ctx, s.original.FileID); err != nil {
			return Result{}, fmt.Errorf("remove image: %w", err)
		}
		s.originalGone = true
	}

	if s.mode == ModeCreate {
		return Result{}, nil
	}
	return Result{Image: clearImage()}, nil
}

func (s *Session) cleanupOriginal(ctx context.Context) Cleanup {
	id := s.original.FileID
	if err := s.r.deleteAsset(ctx, id); err != nil {
		s.r.log.WithError(err).WithField("file_id", id).Warn("could not delete replaced image; it may be orphaned")
		return Cleanup{Status: CleanupFailed, FileID: id, Err: err}
	}
	s.originalGone = true
	return Cleanup{Status: CleanupDone, FileID: id}
}
