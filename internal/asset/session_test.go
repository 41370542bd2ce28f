package asset

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailstore/service/internal/storage"
)

type fakeStore struct {
	files   map[string]bool
	fail    map[string]error
	deletes []string
}

func newFakeStore(ids ...string) *fakeStore {
	f := &fakeStore{files: map[string]bool{}, fail: map[string]error{}}
	for _, id := range ids {
		f.files[id] = true
	}
	return f
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	if err := f.fail[id]; err != nil {
		return err
	}
	if !f.files[id] {
		return storage.ErrNotFound
	}
	delete(f.files, id)
	return nil
}

type fakeUploader struct {
	ref   Reference
	err   error
	calls int
}

func (u *fakeUploader) Upload(context.Context, LocalFile) (Reference, error) {
	u.calls++
	return u.ref, u.err
}

// record applies a patch the way the product repository does.
type record struct {
	url, fileID string
}

func (r *record) apply(p ImagePatch) {
	if p.URL != nil {
		r.url = *p.URL
	}
	if p.FileID != nil {
		r.fileID = *p.FileID
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var (
	refA  = Reference{URL: "https://ik.imagekit.io/demo/products/a.jpg", FileID: "A"}
	refB  = Reference{URL: "https://ik.imagekit.io/demo/products/b.jpg", FileID: "B"}
	photo = LocalFile{Path: "/tmp/b.jpg", Name: "b.jpg", ContentType: "image/jpeg", Size: 10}
)

func openUpdate(t *testing.T, store *fakeStore) *Session {
	t.Helper()
	s, err := NewReconciler(store, quietLogger()).Open(ModeUpdate, refA)
	require.NoError(t, err)
	return s
}

func TestOpen_RejectsMixedReference(t *testing.T) {
	r := NewReconciler(newFakeStore(), quietLogger())

	_, err := r.Open(ModeUpdate, Reference{FileID: "A"})
	require.ErrorIs(t, err, ErrInvalidReference)

	_, err = r.Open(ModeCreate, Reference{URL: legacyURL})
	require.ErrorIs(t, err, ErrInvalidReference)

	_, err = r.Open(ModeCreate, refA)
	require.ErrorIs(t, err, ErrInvalidReference)
}

func TestSelect_RejectsNonImage(t *testing.T) {
	s := openUpdate(t, newFakeStore("A"))

	err := s.Select(LocalFile{Name: "notes.txt", ContentType: "text/plain"})
	require.ErrorIs(t, err, ErrNotImage)
	assert.IsType(t, Unchanged{}, s.State())
}

func TestSelect_DoesNotDeleteOriginal(t *testing.T) {
	store := newFakeStore("A")
	s := openUpdate(t, store)

	require.NoError(t, s.Select(photo))
	assert.Equal(t, Staged{File: photo}, s.State())
	assert.Empty(t, store.deletes)
}

func TestRemove_DeletesImmediately(t *testing.T) {
	store := newFakeStore("A")
	s := openUpdate(t, store)

	require.NoError(t, s.Remove(context.Background()))
	assert.IsType(t, Removed{}, s.State())
	assert.Equal(t, []string{"A"}, store.deletes)

	res, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Image.Cleared())
	assert.Equal(t, []string{"A"}, store.deletes, "submit must not delete again")
}

func TestRemove_FailureKeepsUnchanged(t *testing.T) {
	store := newFakeStore("A")
	store.fail["A"] = &storage.UpstreamError{StatusCode: 500, Body: "boom"}
	s := openUpdate(t, store)

	err := s.Remove(context.Background())
	var upstream *storage.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.IsType(t, Unchanged{}, s.State())

	rec := record{url: refA.URL, fileID: "A"}
	res, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Image.Omitted())
	rec.apply(res.Image)
	assert.Equal(t, "A", rec.fileID)
}

func TestRemove_AlreadyAbsentCountsAsSuccess(t *testing.T) {
	store := newFakeStore()
	s := openUpdate(t, store)

	require.NoError(t, s.Remove(context.Background()))
	assert.IsType(t, Removed{}, s.State())
}

func TestRemove_StagedDefersDeleteToSubmit(t *testing.T) {
	store := newFakeStore("A")
	s := openUpdate(t, store)

	require.NoError(t, s.Select(photo))
	require.NoError(t, s.Remove(context.Background()))
	assert.IsType(t, Removed{}, s.State())
	assert.Empty(t, store.deletes)

	res, err := s.Submit(context.Background(), &fakeUploader{ref: refB})
	require.NoError(t, err)
	assert.True(t, res.Image.Cleared())
	assert.Equal(t, []string{"A"}, store.deletes)
}

func TestSubmit_RemovedDeferredDeleteFailureAborts(t *testing.T) {
	store := newFakeStore("A")
	store.fail["A"] = errors.New("connection reset")
	s := openUpdate(t, store)

	require.NoError(t, s.Select(photo))
	require.NoError(t, s.Remove(context.Background()))

	_, err := s.Submit(context.Background(), nil)
	require.Error(t, err)

	// The session stays open for a retry.
	delete(store.fail, "A")
	res, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Image.Cleared())
}

func TestCancel_NoStoreCalls(t *testing.T) {
	store := newFakeStore("A")
	s := openUpdate(t, store)
	require.NoError(t, s.Select(photo))

	assert.True(t, s.Cancel().IsZero())
	assert.Empty(t, store.deletes)

	_, err := s.Submit(context.Background(), &fakeUploader{ref: refB})
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, s.Select(photo), ErrSessionClosed)
	require.ErrorIs(t, s.Remove(context.Background()), ErrSessionClosed)
}

func TestCancel_AfterRemoveReportsDanglingReference(t *testing.T) {
	s := openUpdate(t, newFakeStore("A"))
	require.NoError(t, s.Remove(context.Background()))

	assert.Equal(t, refA, s.Cancel())
}

const legacyURL = "https://ik.imagekit.io/demo/products/legacy.jpg"

func openLegacy(t *testing.T, store *fakeStore) *Session {
	t.Helper()
	s, err := NewReconciler(store, quietLogger()).Open(ModeUpdate, Reference{URL: legacyURL})
	require.NoError(t, err)
	return s
}

func TestLegacyImage_UntouchedOmitsImageFields(t *testing.T) {
	store := newFakeStore()
	s := openLegacy(t, store)

	res, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Image.Omitted())
	assert.Empty(t, store.deletes)
}

func TestLegacyImage_RemoveClearsWithoutStoreCall(t *testing.T) {
	store := newFakeStore()
	s := openLegacy(t, store)

	require.NoError(t, s.Remove(context.Background()))
	assert.IsType(t, Removed{}, s.State())

	res, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Image.Cleared())
	assert.Empty(t, store.deletes)
}

func TestLegacyImage_ReplaceSkipsCleanup(t *testing.T) {
	store := newFakeStore()
	s := openLegacy(t, store)
	require.NoError(t, s.Select(photo))

	res, err := s.Submit(context.Background(), &fakeUploader{ref: refB})
	require.NoError(t, err)
	assert.Equal(t, CleanupNone, res.Cleanup.Status)
	assert.Empty(t, store.deletes)

	rec := record{url: legacyURL}
	rec.apply(res.Image)
	assert.Equal(t, record{url: refB.URL, fileID: "B"}, rec)
}

func TestLegacyImage_CancelAfterRemoveHasNothingDangling(t *testing.T) {
	s := openLegacy(t, newFakeStore())
	require.NoError(t, s.Remove(context.Background()))

	assert.True(t, s.Cancel().IsZero())
}
