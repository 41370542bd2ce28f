package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/retailstore/service/internal/middleware"
)

// ErrImagePair is returned when imageUrl and imageFileId are not supplied together.
var ErrImagePair = errors.New("imageUrl and imageFileId must be set together or both cleared")

// ErrInvalidInput is returned for a malformed product payload.
var ErrInvalidInput = errors.New("invalid product input")

// Service contains business logic for products.
type Service struct {
	repo *Repository
	log  logrus.FieldLogger
}

// NewService creates a new product Service.
func NewService(repo *Repository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, log: log}
}

// GetByID returns a product by id.
func (s *Service) GetByID(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Create inserts a product. An empty image pair is stored as no image.
func (s *Service) Create(ctx context.Context, p *Product) (*Product, error) {
	if strings.TrimSpace(p.ProductName) == "" {
		return nil, fmt.Errorf("%w: productName is required", ErrInvalidInput)
	}
	if err := checkImagePair(p.ImageURL, p.ImageFileID); err != nil {
		return nil, err
	}
	if p.ImageURL != nil && *p.ImageURL == "" {
		p.ImageURL, p.ImageFileID = nil, nil
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"product_id": created.ID,
		"has_image":  created.ImageFileID != nil,
		"admin":      middleware.Subject(ctx),
	}).Info("product created")
	return created, nil
}

// Update applies a partial update. Absent image fields leave the stored image alone.
func (s *Service) Update(ctx context.Context, id int64, u Update) (*Product, error) {
	if err := checkImagePair(u.ImageURL, u.ImageFileID); err != nil {
		return nil, err
	}
	if u.ProductName != nil && strings.TrimSpace(*u.ProductName) == "" {
		return nil, fmt.Errorf("%w: productName cannot be blank", ErrInvalidInput)
	}

	p, err := s.repo.Update(ctx, id, u)
	if err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	log := s.log.WithFields(logrus.Fields{"product_id": id, "admin": middleware.Subject(ctx)})
	if u.ImageFileID != nil {
		log.WithField("image_file_id", *u.ImageFileID).Info("product image updated")
	} else {
		log.Debug("product updated")
	}
	return p, nil
}

// IsNotFound returns true when the error indicates a product was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func checkImagePair(url, fileID *string) error {
	if (url == nil) != (fileID == nil) {
		return ErrImagePair
	}
	if url != nil && (*url == "") != (*fileID == "") {
		return ErrImagePair
	}
	return nil
}
