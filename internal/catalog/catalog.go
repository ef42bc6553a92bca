// Package catalog loads and serves the static product catalog.
package catalog

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/AiryPlays/roblox-ranking-system/internal/models"
)

// Catalog holds an immutable snapshot of the product list. Reload swaps the
// snapshot atomically so readers on other goroutines never see a partial
// catalog.
type Catalog struct {
	path string
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	products []models.Product
	byID     map[int64]models.Product
}

type catalogFile struct {
	Products []models.Product `yaml:"products"`
}

// Load reads and validates the product catalog at path.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	c.snap.Store(snap)
	return c, nil
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("catalog %s contains no products", path)
	}

	byID := make(map[int64]models.Product, len(file.Products))
	for i := range file.Products {
		p := file.Products[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid product at index %d: %w", i, err)
		}
		if _, exists := byID[p.ID]; exists {
			return nil, fmt.Errorf("duplicate product ID %d", p.ID)
		}
		byID[p.ID] = p
	}

	return &snapshot{products: file.Products, byID: byID}, nil
}

// Reload re-reads the catalog file. On any error the previous snapshot
// stays live.
func (c *Catalog) Reload() error {
	snap, err := readSnapshot(c.path)
	if err != nil {
		return err
	}
	c.snap.Store(snap)
	return nil
}

// Lookup returns the product with the given ID.
func (c *Catalog) Lookup(itemID int64) (models.Product, bool) {
	p, ok := c.snap.Load().byID[itemID]
	return p, ok
}

// Products returns a copy of the product list in catalog order.
func (c *Catalog) Products() []models.Product {
	src := c.snap.Load().products
	out := make([]models.Product, len(src))
	copy(out, src)
	return out
}

// RankBearing returns the products that trigger auto-ranking, in catalog order.
func (c *Catalog) RankBearing() []models.Product {
	var out []models.Product
	for _, p := range c.snap.Load().products {
		if p.Ranked() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of catalog products.
func (c *Catalog) Len() int {
	return len(c.snap.Load().products)
}
