package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var bundledSeed []byte

// Seed is the on-disk catalog format.
type Seed struct {
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
}

// Catalog lazily parses a seed document once.
type Catalog struct {
	raw  []byte
	once sync.Once
	seed Seed
	err  error
}

// NewCatalog returns the bundled development catalog.
func NewCatalog() *Catalog {
	return &Catalog{raw: bundledSeed}
}

// Load reads a seed file from disk.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return &Catalog{raw: raw}, nil
}

func (c *Catalog) parse() {
	c.once.Do(func() {
		if err := yaml.Unmarshal(c.raw, &c.seed); err != nil {
			c.err = fmt.Errorf("parse catalog seed: %w", err)
			return
		}
		names := make(map[string]string, len(c.seed.Categories))
		for _, cat := range c.seed.Categories {
			names[cat.Slug] = cat.Name
		}
		for i := range c.seed.Products {
			p := &c.seed.Products[i]
			if _, ok := names[p.CategorySlug]; !ok {
				c.err = fmt.Errorf("product %q: unknown category %q", p.Slug, p.CategorySlug)
				return
			}
			p.CategoryName = names[p.CategorySlug]
		}
	})
}

// Categories returns a copy of the seed's categories.
func (c *Catalog) Categories() ([]Category, error) {
	c.parse()
	if c.err != nil {
		return nil, c.err
	}
	return append([]Category(nil), c.seed.Categories...), nil
}

// Products returns a copy of the seed's products.
func (c *Catalog) Products() ([]Product, error) {
	c.parse()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]Product, len(c.seed.Products))
	for i, p := range c.seed.Products {
		p.Images = append([]string(nil), p.Images...)
		out[i] = p
	}
	return out, nil
}
