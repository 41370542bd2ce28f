package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailstore/service/internal/product"
	"github.com/retailstore/service/internal/storage"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	c := New(srv.URL, 5*time.Second, log)
	c.credentialRetry = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestLogin_StoresToken(t *testing.T) {
	var sawAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/token":
			writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]string{"token": "tok"}})
		default:
			sawAuth = r.Header.Get("Authorization")
			writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": 1}})
		}
	})

	token, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = c.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", sawAuth)
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid username or password"})
	})

	_, err := c.Login(context.Background(), "admin", "nope")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "invalid username or password", statusErr.Message)
}

func TestUploadCredential_RetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/admin/imagekit/auth", r.URL.Path)
		if calls.Add(1) < 3 {
			writeEnvelope(w, http.StatusBadGateway, map[string]any{"success": false, "error": "bad gateway"})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token": "tok", "expire": 1700003300, "signature": "sig", "publicKey": "public_abc",
			},
		})
	})

	cred, err := c.UploadCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, storage.UploadCredential{Token: "tok", Expire: 1700003300, Signature: "sig", PublicKey: "public_abc"}, cred)
}

func TestUploadCredential_NotConfiguredIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "ImageKit configuration is missing"})
	})

	_, err := c.UploadCredential(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadCredential_GivesUpAfterBoundedRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.UploadCredential(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUploadCredential_MalformedResponseIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":`))
	})

	_, err := c.UploadCredential(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadCredential_RetriesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	c := New(addr, time.Second, log)
	var attempts int
	c.credentialRetry = func() retry.Backoff {
		return retry.BackoffFunc(func() (time.Duration, bool) {
			attempts++
			return time.Millisecond, attempts > 2
		})
	}

	_, err := c.UploadCredential(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]any
		wantErr func(t *testing.T, err error)
	}{
		{
			name:    "success",
			status:  http.StatusOK,
			body:    map[string]any{"success": true, "message": "File deleted"},
			wantErr: func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   map[string]any{"success": false, "error": "not found"},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, storage.ErrNotFound)
			},
		},
		{
			name:   "upstream failure passes status and message",
			status: http.StatusForbidden,
			body:   map[string]any{"success": false, "error": "Your account cannot be authenticated."},
			wantErr: func(t *testing.T, err error) {
				var upstream *storage.UpstreamError
				require.ErrorAs(t, err, &upstream)
				assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
				assert.Equal(t, "Your account cannot be authenticated.", upstream.Body)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/api/admin/imagekit/file/abc123", r.URL.Path)
				writeEnvelope(w, tc.status, tc.body)
			})
			tc.wantErr(t, c.Delete(context.Background(), "abc123"))
		})
	}
}

func TestDelete_BlankIDMakesNoRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	err := c.Delete(context.Background(), "  ")
	assert.True(t, errors.Is(err, storage.ErrInvalidArgument))
}

func TestUpdateProduct_SendsOnlySetFields(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/admin/products/7", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": 7, "productName": "Shoe"}})
	})

	url, fileID := "", ""
	p, err := c.UpdateProduct(context.Background(), 7, product.Update{ImageURL: &url, ImageFileID: &fileID})
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, map[string]any{"imageUrl": "", "imageFileId": ""}, got)
}
