package asset

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailstore/service/internal/storage"
)

type listingStore struct {
	*fakeStore
	listed []storage.File
	pages  []storage.ListOptions
}

func (l *listingStore) List(_ context.Context, opts storage.ListOptions) ([]storage.File, error) {
	l.pages = append(l.pages, opts)
	if opts.Skip >= len(l.listed) {
		return nil, nil
	}
	end := opts.Skip + opts.Limit
	if end > len(l.listed) {
		end = len(l.listed)
	}
	return l.listed[opts.Skip:end], nil
}

type refSet map[string]struct{}

func (r refSet) ReferencedFileIDs(context.Context) (map[string]struct{}, error) {
	return r, nil
}

func (refSet) LegacyImageURLs(context.Context) (map[string]struct{}, error) {
	return nil, nil
}

type legacyRefs struct {
	refSet
	urls map[string]struct{}
}

func (l legacyRefs) LegacyImageURLs(context.Context) (map[string]struct{}, error) {
	return l.urls, nil
}

func TestSweep_DeletesOnlyOldUnreferencedFiles(t *testing.T) {
	now := time.Date(2025, 12, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	store := &listingStore{fakeStore: newFakeStore("A", "B", "C", "D", "E")}
	for _, id := range []string{"A", "B", "C", "D"} {
		store.listed = append(store.listed, storage.File{FileID: id, FilePath: "/products/" + id, CreatedAt: old})
	}
	store.listed = append(store.listed, storage.File{FileID: "E", CreatedAt: now.Add(-time.Hour)})
	store.fail["D"] = errors.New("rate limited")

	sw := NewSweeper(store, refSet{"A": {}}, quietLogger(), "/products", 24*time.Hour)
	sw.pageSize = 2
	sw.now = func() time.Time { return now }

	report, err := sw.Sweep(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, []string{"B", "C", "D"}, report.Orphaned)
	assert.Equal(t, []string{"B", "C"}, report.Deleted)
	assert.Equal(t, []string{"D"}, report.Failed)
	assert.Len(t, store.pages, 3)
	for _, p := range store.pages {
		assert.Equal(t, "/products", p.Path)
	}
}

func TestSweep_DryRunDeletesNothing(t *testing.T) {
	store := &listingStore{fakeStore: newFakeStore("X")}
	store.listed = []storage.File{{FileID: "X", CreatedAt: time.Unix(0, 0)}}

	report, err := NewSweeper(store, refSet{}, quietLogger(), "", time.Hour).Sweep(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, report.Orphaned)
	assert.Empty(t, store.deletes)
}

type failingRefs struct{}

func (failingRefs) ReferencedFileIDs(context.Context) (map[string]struct{}, error) {
	return nil, fmt.Errorf("db down")
}

func (failingRefs) LegacyImageURLs(context.Context) (map[string]struct{}, error) {
	return nil, fmt.Errorf("db down")
}

func TestSweep_ReferenceFailureDeletesNothing(t *testing.T) {
	store := &listingStore{fakeStore: newFakeStore("X")}
	store.listed = []storage.File{{FileID: "X", CreatedAt: time.Unix(0, 0)}}

	_, err := NewSweeper(store, failingRefs{}, quietLogger(), "", time.Hour).Sweep(context.Background(), false)
	require.Error(t, err)
	assert.Empty(t, store.deletes)
}

func TestSweep_KeepsImagesOfRecordsWithoutFileID(t *testing.T) {
	store := &listingStore{fakeStore: newFakeStore("L", "X")}
	store.listed = []storage.File{
		{FileID: "L", URL: "https://ik.imagekit.io/demo/products/legacy.jpg", CreatedAt: time.Unix(0, 0)},
		{FileID: "X", URL: "https://ik.imagekit.io/demo/products/x.jpg", CreatedAt: time.Unix(0, 0)},
	}
	refs := legacyRefs{
		refSet: refSet{},
		urls:   map[string]struct{}{"https://ik.imagekit.io/demo/products/legacy.jpg": {}},
	}

	report, err := NewSweeper(store, refs, quietLogger(), "", time.Hour).Sweep(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, report.Deleted)
	assert.Equal(t, []string{"X"}, store.deletes)
}
