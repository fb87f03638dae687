// Package ledger owns the per-(product, location) on-hand quantity store. All
// quantity changes go through ApplyQuantityDelta.
package ledger

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// LocationType enumerates warehouse location roles.
type LocationType string

const (
	LocationReceiving LocationType = "receiving"
	LocationStandard  LocationType = "standard"
	LocationShipping  LocationType = "shipping"
)

// Valid reports whether the type is known.
func (t LocationType) Valid() bool {
	switch t {
	case LocationReceiving, LocationStandard, LocationShipping:
		return true
	}
	return false
}

// Location is a physical bin in the warehouse.
type Location struct {
	ID              int64        `json:"id"`
	Code            string       `json:"code"`
	Aisle           string       `json:"aisle"`
	Shelf           string       `json:"shelf"`
	Position        string       `json:"position"`
	Zone            string       `json:"zone"`
	Type            LocationType `json:"type"`
	Capacity        int          `json:"capacity"`
	CurrentCapacity int          `json:"current_capacity"`
	Active          bool         `json:"active"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// FreeCapacity returns the room left in the location, never negative.
func (l Location) FreeCapacity() int {
	free := l.Capacity - l.CurrentCapacity
	if free < 0 {
		return 0
	}
	return free
}

// Descriptor renders the walk-list form zone/aisle-shelf-position.
func (l Location) Descriptor() string {
	return fmt.Sprintf("%s/%s-%s-%s", l.Zone, l.Aisle, l.Shelf, l.Position)
}

// ProductLocation is one ledger row.
type ProductLocation struct {
	ProductID   int64     `json:"product_id"`
	LocationID  int64     `json:"location_id"`
	Quantity    int       `json:"quantity"`
	IsPrimary   bool      `json:"is_primary"`
	LastUpdated time.Time `json:"last_updated"`
}

// ProductLocationView joins a ledger row with its location.
type ProductLocationView struct {
	ProductLocation
	Location Location `json:"location"`
}

// ProductSummary aggregates on-hand stock for a product.
type ProductSummary struct {
	ProductID     int64     `json:"product_id"`
	TotalQuantity int       `json:"total_quantity"`
	LocationCount int       `json:"location_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// SummaryFilter narrows GetInventorySummary.
type SummaryFilter struct {
	Zone         string
	LocationType LocationType
	ProductID    int64
	OnlyInStock  bool
}

// LocationFilter narrows ListLocations.
type LocationFilter struct {
	Zone       string
	Type       LocationType
	ActiveOnly bool
}

// DeltaInput describes one signed change to a ledger row.
type DeltaInput struct {
	ProductID  int64
	LocationID int64
	Delta      int
	Actor      shared.Actor
	Reason     string
	RefModule  string
	RefID      string
}

// DeltaResult reports the row quantity around the change.
type DeltaResult struct {
	ProductID   int64 `json:"product_id"`
	LocationID  int64 `json:"location_id"`
	Previous    int   `json:"previous_quantity"`
	NewQuantity int   `json:"new_quantity"`
}

// CreateLocationInput carries administrative location creation.
type CreateLocationInput struct {
	Code     string       `json:"code" validate:"required,max=32"`
	Aisle    string       `json:"aisle" validate:"max=16"`
	Shelf    string       `json:"shelf" validate:"max=16"`
	Position string       `json:"position" validate:"max=16"`
	Zone     string       `json:"zone" validate:"required,max=16"`
	Type     LocationType `json:"type" validate:"required,oneof=receiving standard shipping"`
	Capacity int          `json:"capacity" validate:"gte=0"`
}

// Errors raised by the ledger.
var (
	ErrNegativeQuantity = fmt.Errorf("%w: quantity would become negative", shared.ErrInvalidState)
	ErrLocationNotFound = fmt.Errorf("%w: location not found", shared.ErrNotFound)
	ErrRowNotFound      = fmt.Errorf("%w: product not stocked at location", shared.ErrNotFound)
	ErrNoLocation       = fmt.Errorf("%w: no suitable location", shared.ErrNotFound)
	ErrInactiveLocation = fmt.Errorf("%w: location inactive", shared.ErrInvalidState)
	ErrZeroDelta        = fmt.Errorf("%w: delta must be non-zero", shared.ErrValidation)
)

// Audit actions written by the ledger.
const (
	ActionDelta          = "ledger.delta"
	ActionLocationCreate = "location.create"
	ActionLocationUpdate = "location.update"
	ActionPrimarySet     = "ledger.primary_set"
)
