package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/retailstore/service/internal/asset"
	"github.com/retailstore/service/internal/storage"
)

// fileUploader sends a local file through the direct uploader.
type fileUploader struct {
	up *storage.Uploader
}

func (f *fileUploader) Upload(ctx context.Context, file asset.LocalFile) (asset.Reference, error) {
	fh, err := os.Open(file.Path)
	if err != nil {
		return asset.Reference{}, fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer fh.Close()

	res, err := f.up.Upload(ctx, file.Name, file.ContentType, fh)
	if err != nil {
		return asset.Reference{}, err
	}
	return asset.Reference{URL: res.URL, FileID: res.FileID}, nil
}

// localFile stats path and sniffs its content type from the bytes.
func localFile(path string) (asset.LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return asset.LocalFile{}, err
	}
	if info.IsDir() {
		return asset.LocalFile{}, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return asset.LocalFile{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	return asset.LocalFile{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: mt.String(),
		Size:        info.Size(),
	}, nil
}
