// Package media exposes the image-store endpoints used by admin clients:
// upload credential issuance and file deletion.
package media

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/retailstore/service/internal/middleware"
	"github.com/retailstore/service/internal/response"
	"github.com/retailstore/service/internal/storage"
)

const notConfiguredMessage = "ImageKit configuration is missing. Please configure IMAGEKIT_PRIVATE_KEY and IMAGEKIT_PUBLIC_KEY"

// CredentialIssuer issues signed upload credentials.
type CredentialIssuer interface {
	IssueUploadCredential() (storage.UploadCredential, error)
}

// FileDeleter deletes a stored file.
type FileDeleter interface {
	Delete(ctx context.Context, fileID string) error
}

// Handler holds HTTP handlers for image-store endpoints.
type Handler struct {
	signer CredentialIssuer
	store  FileDeleter
	log    logrus.FieldLogger
}

// NewHandler creates a new media Handler.
func NewHandler(signer CredentialIssuer, store FileDeleter, log logrus.FieldLogger) *Handler {
	return &Handler{signer: signer, store: store, log: log}
}

// IssueUploadAuth godoc
//
//	@Summary		Issue upload credential
//	@Description	Returns a token, expiry and HMAC-SHA1 signature that let the client upload one image directly to ImageKit. Valid for 55 minutes.
//	@Tags			imagekit
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=storage.UploadCredential}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/admin/imagekit/auth [post]
func (h *Handler) IssueUploadAuth(w http.ResponseWriter, r *http.Request) {
	cred, err := h.signer.IssueUploadCredential()
	if errors.Is(err, storage.ErrNotConfigured) {
		h.log.Error("upload credential requested but ImageKit keys are not configured")
		response.Error(w, http.StatusInternalServerError, notConfiguredMessage)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("issue upload credential")
		response.InternalError(w)
		return
	}

	response.OKMessage(w, cred, "ImageKit upload authentication parameters")
}

// DeleteFile godoc
//
//	@Summary		Delete stored image
//	@Description	Deletes a file from ImageKit. Deleting a file that is already gone succeeds. Other ImageKit failures are passed through with their status and body.
//	@Tags			imagekit
//	@Produce		json
//	@Security		BearerAuth
//	@Param			fileId	path		string	true	"ImageKit file id"
//	@Success		200		{object}	response.Envelope
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/admin/imagekit/file/{fileId} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	// chi matches on the raw path, so an escaped id arrives still escaped.
	fileID, err := url.PathUnescape(chi.URLParam(r, "fileId"))
	if err != nil {
		response.BadRequest(w, "invalid fileId")
		return
	}
	if strings.TrimSpace(fileID) == "" {
		response.BadRequest(w, "fileId is required")
		return
	}

	log := h.log.WithFields(logrus.Fields{"file_id": fileID, "admin": middleware.Subject(r.Context())})
	err = h.store.Delete(r.Context(), fileID)

	var upstream *storage.UpstreamError
	switch {
	case err == nil:
		log.Info("image deleted from store")
		response.OKMessage(w, struct{}{}, "File deleted")
	case errors.Is(err, storage.ErrNotFound):
		log.Info("image already absent from store")
		response.OKMessage(w, struct{}{}, "File already deleted")
	case errors.Is(err, storage.ErrInvalidArgument):
		response.BadRequest(w, "fileId is required")
	case errors.Is(err, storage.ErrNotConfigured):
		log.Error("delete requested but ImageKit private key is not configured")
		response.Error(w, http.StatusInternalServerError, notConfiguredMessage)
	case errors.As(err, &upstream):
		log.WithField("status", upstream.StatusCode).Warn("ImageKit rejected delete")
		response.Error(w, upstream.StatusCode, upstream.Body)
	default:
		log.WithError(err).Error("delete image from store")
		response.Error(w, http.StatusBadGateway, "could not reach ImageKit")
	}
}
