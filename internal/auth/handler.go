package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/retailstore/service/internal/response"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
	log logrus.FieldLogger
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: log}
}

type loginRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"s3cret"`
}

type tokenData struct {
	Token string `json:"token" example:"eyJhbGci..."`
}

// Login godoc
//
//	@Summary		Admin login
//	@Description	Exchange the admin username and password for a bearer token valid for 12 hours.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/auth/token [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		response.BadRequest(w, "username and password are required")
		return
	}

	token, err := h.svc.Login(req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		h.log.WithField("username", req.Username).Warn("failed admin login")
		response.Unauthorized(w, "invalid username or password")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("admin login")
		response.InternalError(w)
		return
	}

	response.OK(w, tokenData{Token: token})
}
