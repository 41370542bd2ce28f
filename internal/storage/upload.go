package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"
)

// DefaultUploadURL is ImageKit's direct upload endpoint.
const DefaultUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

// CredentialSource hands out upload credentials, normally by asking the backend.
type CredentialSource interface {
	UploadCredential(ctx context.Context) (UploadCredential, error)
}

// UploadResult is the store's view of a freshly uploaded file.
type UploadResult struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
}

// Uploader pushes bytes straight to the store using a signed credential.
// It runs on the client side; the backend never sees the bytes.
type Uploader struct {
	creds     CredentialSource
	client    *http.Client
	uploadURL string
	folder    string
	observer  Observer
}

// NewUploader creates an Uploader that stores files under folder.
func NewUploader(creds CredentialSource, folder string) *Uploader {
	return &Uploader{
		creds:     creds,
		client:    &http.Client{Timeout: 2 * time.Minute},
		uploadURL: DefaultUploadURL,
		folder:    folder,
		observer:  nopObserver{},
	}
}

// WithUploadURL overrides the upload endpoint.
func (u *Uploader) WithUploadURL(endpoint string) *Uploader {
	u.uploadURL = endpoint
	return u
}

// WithHTTPClient overrides the HTTP client.
func (u *Uploader) WithHTTPClient(c *http.Client) *Uploader {
	u.client = c
	return u
}

// WithObserver records upload telemetry.
func (u *Uploader) WithObserver(o Observer) *Uploader {
	if o != nil {
		u.observer = o
	}
	return u
}

// Upload fetches a fresh credential and sends the file in one multipart request.
func (u *Uploader) Upload(ctx context.Context, fileName, contentType string, r io.Reader) (res UploadResult, err error) {
	if fileName == "" {
		return UploadResult{}, fmt.Errorf("%w: file name is required", ErrInvalidArgument)
	}

	cred, err := u.creds.UploadCredential(ctx)
	if err != nil {
		return UploadResult{}, fmt.Errorf("get upload credential: %w", err)
	}

	start := time.Now()
	defer func() { u.observer.RecordUpload(time.Since(start), res.Size, err) }()

	body, ctype, err := u.encode(cred, fileName, contentType, r)
	if err != nil {
		return UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload %q: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, upstreamError(resp, "Failed to upload file to ImageKit")
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload response: %w", err)
	}
	return res, nil
}

func (u *Uploader) encode(cred UploadCredential, fileName, contentType string, r io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"fileName", fileName},
		{"publicKey", cred.PublicKey},
		{"signature", cred.Signature},
		{"expire", strconv.FormatInt(cred.Expire, 10)},
		{"token", cred.Token},
		{"useUniqueFileName", "true"},
	}
	if u.folder != "" {
		fields = append(fields, [2]string{"folder", u.folder})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copy file body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
