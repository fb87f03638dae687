// Package receiving runs the inbound shipment workflow: manifests are opened,
// scanned against, and closed out.
package receiving

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ============================================================================
// SHIPMENT STATUS
// ============================================================================

// ShipmentStatus represents the lifecycle of an inbound shipment.
type ShipmentStatus string

const (
	ShipmentPending    ShipmentStatus = "pending"     // Opened, nothing scanned yet
	ShipmentInProgress ShipmentStatus = "in_progress" // At least one scan or exception recorded
	ShipmentCompleted  ShipmentStatus = "completed"   // Terminal
)

// IsValid checks if the status is valid.
func (s ShipmentStatus) IsValid() bool {
	switch s {
	case ShipmentPending, ShipmentInProgress, ShipmentCompleted:
		return true
	default:
		return false
	}
}

// CanReceive reports whether scans and discrepancies are still accepted.
func (s ShipmentStatus) CanReceive() bool {
	return s != ShipmentCompleted
}

// ============================================================================
// ITEM MATCH STATUS
// ============================================================================

// MatchStatus is the reconciliation outcome of one manifest line.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchMatched  MatchStatus = "matched"
	MatchExcess   MatchStatus = "excess"
	MatchDamage   MatchStatus = "damage"
	MatchMismatch MatchStatus = "mismatch"
	MatchMissing  MatchStatus = "missing"
)

// Settled reports whether the line counts as received.
func (m MatchStatus) Settled() bool {
	return m == MatchMatched || m == MatchExcess
}

// IsDiscrepancy reports whether the status was set by an exception report.
func (m MatchStatus) IsDiscrepancy() bool {
	return m == MatchDamage || m == MatchMismatch || m == MatchMissing
}

// nextMatchStatus recomputes the status after received changed. Exception
// statuses stay put; the rest only move forward.
func nextMatchStatus(current MatchStatus, received, expected int) MatchStatus {
	if current.IsDiscrepancy() {
		return current
	}
	switch {
	case received > expected:
		return MatchExcess
	case received == expected:
		return MatchMatched
	case current.Settled():
		return current
	default:
		return MatchPending
	}
}

// ============================================================================
// ENTITIES
// ============================================================================

// Shipment is an inbound delivery from a supplier.
type Shipment struct {
	ID              int64          `json:"id"`
	Number          string         `json:"shipment_number"`
	SupplierID      int64          `json:"supplier_id"`
	PONumber        string         `json:"po_number"`
	Status          ShipmentStatus `json:"status"`
	TotalItems      int            `json:"total_items"`
	ItemsReceived   int            `json:"items_received"`
	ExpectedArrival *time.Time     `json:"expected_arrival,omitempty"`
	ActualArrival   *time.Time     `json:"actual_arrival,omitempty"`
	ReceivedBy      int64          `json:"received_by,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedBy       int64          `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Items           []Item         `json:"items,omitempty"`
}

// Item is one manifest line of a shipment.
type Item struct {
	ID                  int64       `json:"id"`
	ShipmentID          int64       `json:"shipment_id"`
	ProductID           int64       `json:"product_id"`
	SKU                 string      `json:"sku"`
	UPC                 string      `json:"upc,omitempty"`
	ExpectedQuantity    int         `json:"expected_quantity"`
	ReceivedQuantity    int         `json:"received_quantity"`
	MatchStatus         MatchStatus `json:"match_status"`
	LocationID          int64       `json:"location_id,omitempty"`
	DiscrepancyNotes    string      `json:"discrepancy_notes,omitempty"`
	DiscrepancyQuantity int         `json:"discrepancy_quantity,omitempty"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// ItemSummary is a fresh aggregate of a shipment's items.
type ItemSummary struct {
	Total   int
	Settled int
}

// ============================================================================
// INPUTS
// ============================================================================

// ExpectedItem is one manifest line supplied when opening a shipment.
type ExpectedItem struct {
	ProductID        int64  `json:"product_id" validate:"required,gt=0"`
	SKU              string `json:"sku,omitempty" validate:"omitempty,max=64"`
	UPC              string `json:"upc,omitempty" validate:"omitempty,max=14"`
	ExpectedQuantity int    `json:"expected_quantity" validate:"required,gt=0"`
	LocationID       int64  `json:"location_id,omitempty" validate:"gte=0"`
}

// CreateShipmentInput opens a shipment.
type CreateShipmentInput struct {
	SupplierID      int64          `json:"supplier_id" validate:"required,gt=0"`
	PONumber        string         `json:"po_number" validate:"required,max=64"`
	ExpectedArrival *time.Time     `json:"expected_arrival,omitempty"`
	Notes           string         `json:"notes,omitempty" validate:"max=500"`
	Items           []ExpectedItem `json:"items" validate:"required,min=1,dive"`
}

// ScanInput is a receiving scan.
type ScanInput struct {
	Code       string         `json:"code"`
	Quantity   int            `json:"quantity,omitempty"`
	LocationID int64          `json:"location_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// ProductID skips the catalog lookup when the scan engine already
	// resolved the code.
	ProductID int64 `json:"-"`
}

// DiscrepancyInput reports an exception on a line.
type DiscrepancyInput struct {
	Type     MatchStatus `json:"type" validate:"required,oneof=damage mismatch missing"`
	Notes    string      `json:"notes" validate:"max=1000"`
	Quantity int         `json:"quantity" validate:"gte=0"`
}

// ListFilter narrows ListShipments.
type ListFilter struct {
	Status     ShipmentStatus
	SupplierID int64
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// ScanOutcome reports the effect of one receiving scan.
type ScanOutcome struct {
	Shipment    Shipment      `json:"shipment"`
	Item        Item          `json:"item"`
	NewQuantity int           `json:"ledger_quantity"`
	Scan        scanning.Scan `json:"scan"`
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	ErrShipmentNotFound  = fmt.Errorf("%w: shipment not found", shared.ErrNotFound)
	ErrItemNotFound      = fmt.Errorf("%w: shipment item not found", shared.ErrNotFound)
	ErrItemNotInManifest = fmt.Errorf("%w: item not in shipment manifest", shared.ErrNotFound)
	ErrShipmentCompleted = fmt.Errorf("%w: shipment already completed", shared.ErrInvalidState)
)

// Audit actions.
const (
	ActionCreate      = "receiving.create"
	ActionScan        = "receiving.scan"
	ActionDiscrepancy = "receiving.discrepancy"
	ActionComplete    = "receiving.complete"
)
