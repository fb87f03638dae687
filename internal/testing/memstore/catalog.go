package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
)

// Catalog is an in-memory product catalog.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]catalog.Product
	err      error
}

// NewCatalog seeds a catalog with products.
func NewCatalog(products ...catalog.Product) *Catalog {
	c := &Catalog{products: make(map[int64]catalog.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Fail makes every lookup return err, simulating an unavailable catalog.
func (c *Catalog) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Catalog) find(match func(catalog.Product) bool) (catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return catalog.Product{}, c.err
	}
	for _, p := range c.products {
		if match(p) {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrProductNotFound
}

// FindByUPC implements catalog.Catalog.
func (c *Catalog) FindByUPC(ctx context.Context, upc string) (catalog.Product, error) {
	return c.find(func(p catalog.Product) bool { return p.UPC != "" && p.UPC == upc })
}

// FindBySKU implements catalog.Catalog.
func (c *Catalog) FindBySKU(ctx context.Context, sku string) (catalog.Product, error) {
	return c.find(func(p catalog.Product) bool { return strings.EqualFold(p.SKU, sku) })
}

// Get implements catalog.Catalog.
func (c *Catalog) Get(ctx context.Context, id int64) (catalog.Product, error) {
	return c.find(func(p catalog.Product) bool { return p.ID == id })
}

