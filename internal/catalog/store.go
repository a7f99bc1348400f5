package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgcatalog "github.com/rpenyav/ia-backend/pkg/catalog"
)

// Searcher is the catalog search the chat depends on.
type Searcher interface {
	Search(ctx context.Context, f pkgcatalog.Filter) ([]pkgcatalog.Product, error)
}

// Store provides catalog persistence.
type Store struct {
	db *sql.DB
}

var _ Searcher = (*Store)(nil)

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertCategory inserts or renames a category.
func (s *Store) UpsertCategory(ctx context.Context, c pkgcatalog.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_categories (slug, name) VALUES (?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name`,
		c.Slug, c.Name,
	)
	if err != nil {
		return fmt.Errorf("upsert category %q: %w", c.Slug, err)
	}
	return nil
}

// UpsertProduct inserts a product or replaces the one with the same slug.
func (s *Store) UpsertProduct(ctx context.Context, p *pkgcatalog.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_products (
			id, slug, name, brand, model, year, price, mileage, category_slug,
			fuel_type, gearbox, seats, doors, color, description,
			image_url, images, link, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name, brand = excluded.brand, model = excluded.model,
			year = excluded.year, price = excluded.price, mileage = excluded.mileage,
			category_slug = excluded.category_slug, fuel_type = excluded.fuel_type,
			gearbox = excluded.gearbox, seats = excluded.seats, doors = excluded.doors,
			color = excluded.color, description = excluded.description,
			image_url = excluded.image_url, images = excluded.images,
			link = excluded.link, active = excluded.active`,
		p.ID, p.Slug, p.Name, p.Brand, p.Model, p.Year, p.Price, p.Mileage, p.CategorySlug,
		p.FuelType, p.Gearbox, p.Seats, p.Doors, p.Color, p.Description,
		p.ImageURL, string(imagesJSON), p.Link, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Slug, err)
	}
	return nil
}

// CountProducts returns the number of stored products, active or not.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Search returns active products matching f, cheapest first. Brand is a
// case-insensitive substring match; the other fields match exactly.
func (s *Store) Search(ctx context.Context, f pkgcatalog.Filter) ([]pkgcatalog.Product, error) {
	var (
		where = []string{"p.active = 1"}
		args  []any
	)
	if f.CategorySlug != "" {
		where = append(where, "p.category_slug = ?")
		args = append(args, f.CategorySlug)
	}
	if f.Brand != "" {
		where = append(where, `LOWER(p.brand) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.Brand))+"%")
	}
	if f.FuelType != "" {
		where = append(where, "p.fuel_type = ?")
		args = append(args, f.FuelType)
	}
	if f.Gearbox != "" {
		where = append(where, "p.gearbox = ?")
		args = append(args, f.Gearbox)
	}
	if f.MaxPrice != nil && *f.MaxPrice > 0 {
		where = append(where, "p.price <= ?")
		args = append(args, *f.MaxPrice)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = pkgcatalog.DefaultSearchLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.slug, p.name, p.brand, p.model, p.year, p.price, p.mileage,
		       p.category_slug, c.name, p.fuel_type, p.gearbox, p.seats, p.doors,
		       p.color, p.description, p.image_url, p.images, p.link, p.active
		FROM catalog_products p
		JOIN catalog_categories c ON c.slug = p.category_slug
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY p.price ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	products := []pkgcatalog.Product{}
	for rows.Next() {
		var (
			p      pkgcatalog.Product
			images string
		)
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Brand, &p.Model, &p.Year, &p.Price, &p.Mileage,
			&p.CategorySlug, &p.CategoryName, &p.FuelType, &p.Gearbox, &p.Seats, &p.Doors,
			&p.Color, &p.Description, &p.ImageURL, &images, &p.Link, &p.Active); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
			return nil, fmt.Errorf("decode images of %q: %w", p.Slug, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ImportSeed upserts every category and product of a seed catalog.
func (s *Store) ImportSeed(ctx context.Context, cat *pkgcatalog.Catalog) (int, error) {
	cats, err := cat.Categories()
	if err != nil {
		return 0, err
	}
	products, err := cat.Products()
	if err != nil {
		return 0, err
	}
	for _, c := range cats {
		if err := s.UpsertCategory(ctx, c); err != nil {
			return 0, err
		}
	}
	for i := range products {
		if err := s.UpsertProduct(ctx, &products[i]); err != nil {
			return 0, err
		}
	}
	return len(products), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
