// Package catalog resolves product identity for the warehouse core. The
// product master itself is owned elsewhere; this package only reads it.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Product is the catalog identity referenced by ledger rows and workflow items.
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	UPC       string          `json:"upc,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Catalog looks products up by barcode or stock keeping unit.
type Catalog interface {
	FindByUPC(ctx context.Context, upc string) (Product, error)
	FindBySKU(ctx context.Context, sku string) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
}

// ErrProductNotFound indicates no product matched the lookup.
var ErrProductNotFound = fmt.Errorf("%w: product not found", shared.ErrNotFound)
