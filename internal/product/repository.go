// Package product manages catalog products and the image reference they own.
package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. ImageURL and ImageFileID are set together or both nil.
type Product struct {
	ID          int64           `json:"id"          example:"42"`
	ProductName string          `json:"productName" example:"Running shoe"`
	Barcode     string          `json:"barcode"     example:"8934567890123"`
	Price       decimal.Decimal `json:"price"       swaggertype:"string" example:"59.90"`
	Unit        string          `json:"unit"        example:"pair"`
	ImageURL    *string         `json:"imageUrl"    example:"https://ik.imagekit.io/demo/products/shoe.jpg"`
	ImageFileID *string         `json:"imageFileId" example:"6940d1f25c7cd75eb8a1e2b3"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Update is a partial update; nil fields are left untouched. An empty string
// in both image fields clears the image.
type Update struct {
	ProductName *string          `json:"productName,omitempty"`
	Barcode     *string          `json:"barcode,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty" swaggertype:"string"`
	Unit        *string          `json:"unit,omitempty"`
	ImageURL    *string          `json:"imageUrl,omitempty"`
	ImageFileID *string          `json:"imageFileId,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (u Update) Empty() bool {
	return u.ProductName == nil && u.Barcode == nil && u.Price == nil &&
		u.Unit == nil && u.ImageURL == nil && u.ImageFileID == nil
}

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrAlreadyExists is returned when the barcode is already taken.
var ErrAlreadyExists = errors.New("product with this barcode already exists")

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productColumns = `id, product_name, barcode, price::text, unit, image_url, image_file_id, created_at, updated_at`

// Repository handles all product database operations.
type Repository struct {
	db DBTX
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Create inserts a new product and returns the created record.
func (r *Repository) Create(ctx context.Context, p *Product) (*Product, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO products (product_name, barcode, price, unit, image_url, image_file_id)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)
		 RETURNING `+productColumns,
		p.ProductName, p.Barcode, p.Price.String(), p.Unit, p.ImageURL, p.ImageFileID,
	)
	created, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// GetByID fetches a product by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// Update writes only the fields present in u. Cleared image fields are stored as NULL.
func (r *Repository) Update(ctx context.Context, id int64, u Update) (*Product, error) {
	if u.Empty() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if u.ProductName != nil {
		add("product_name = $%d", *u.ProductName)
	}
	if u.Barcode != nil {
		add("barcode = $%d", *u.Barcode)
	}
	if u.Price != nil {
		add("price = $%d::numeric", u.Price.String())
	}
	if u.Unit != nil {
		add("unit = $%d", *u.Unit)
	}
	if u.ImageURL != nil {
		add("image_url = NULLIF($%d, '')", *u.ImageURL)
	}
	if u.ImageFileID != nil {
		add("image_file_id = NULLIF($%d, '')", *u.ImageFileID)
	}
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE products SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), productColumns,
	)
	p, err := scanProduct(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// LegacyImageURLs returns the image url of every product saved without a file id.
func (r *Repository) LegacyImageURLs(ctx context.Context) (map[string]struct{}, error) {
	return r.collect(ctx,
		`SELECT image_url FROM products WHERE image_url IS NOT NULL AND image_file_id IS NULL`)
}

// ReferencedFileIDs returns every image file id currently held by a product.
func (r *Repository) ReferencedFileIDs(ctx context.Context) (map[string]struct{}, error) {
	return r.collect(ctx,
		`SELECT image_file_id FROM products WHERE image_file_id IS NOT NULL AND image_file_id <> ''`)
}

// collect runs a single-column text query into a set.
func (r *Repository) collect(ctx context.Context, query string) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query image references: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan image reference: %w", err)
		}
		set[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image references: %w", err)
	}
	return set, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	var price string
	err := row.Scan(&p.ID, &p.ProductName, &p.Barcode, &price, &p.Unit,
		&p.ImageURL, &p.ImageFileID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return p, nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
