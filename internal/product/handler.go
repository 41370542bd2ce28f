package product

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/retailstore/service/internal/response"
)

// Handler holds HTTP handlers for product endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new product Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	ProductName string          `json:"productName" example:"Running shoe"`
	Barcode     string          `json:"barcode"     example:"8934567890123"`
	Price       decimal.Decimal `json:"price"       swaggertype:"string" example:"59.90"`
	Unit        string          `json:"unit"        example:"pair"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	ImageFileID *string         `json:"imageFileId,omitempty"`
}

// GetProduct godoc
//
//	@Summary		Get product
//	@Tags			products
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Product ID"
//	@Success		200	{object}	response.Envelope{data=Product}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/admin/products/{id} [get]
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, p)
}

// CreateProduct godoc
//
//	@Summary		Create product
//	@Description	Creates a product. imageUrl and imageFileId, when given, must both be set.
//	@Tags			products
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		createRequest	true	"Product"
//	@Success		201		{object}	response.Envelope{data=Product}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Router			/admin/products [post]
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	p, err := h.svc.Create(r.Context(), &Product{
		ProductName: req.ProductName,
		Barcode:     req.Barcode,
		Price:       req.Price,
		Unit:        req.Unit,
		ImageURL:    req.ImageURL,
		ImageFileID: req.ImageFileID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, p)
}

// UpdateProduct godoc
//
//	@Summary		Update product
//	@Description	Partial update. Omitted fields are untouched; imageUrl and imageFileId travel together, and empty strings clear the image.
//	@Tags			products
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int		true	"Product ID"
//	@Param			request	body		Update	true	"Fields to change"
//	@Success		200		{object}	response.Envelope{data=Product}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/admin/products/{id} [patch]
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	p, err := h.svc.Update(r.Context(), id, u)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, p)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case h.svc.IsNotFound(err):
		response.NotFound(w, "product not found")
	case errors.Is(err, ErrAlreadyExists):
		response.Conflict(w, ErrAlreadyExists.Error())
	case errors.Is(err, ErrImagePair), errors.Is(err, ErrInvalidInput):
		response.BadRequest(w, err.Error())
	default:
		h.svc.log.WithError(err).Error("product request failed")
		response.InternalError(w)
	}
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid product id")
		return 0, false
	}
	return id, true
}
