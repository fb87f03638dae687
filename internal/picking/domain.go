// Package picking runs the outbound pick-list workflow and its walk-route
// ordering.
package picking

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ============================================================================
// STATUS
// ============================================================================

// ListStatus represents the lifecycle of a pick list.
type ListStatus string

const (
	ListPending    ListStatus = "pending"     // Created, nothing scanned
	ListInProgress ListStatus = "in_progress" // First scan recorded
	ListCompleted  ListStatus = "completed"   // Terminal
)

// IsValid checks if the status is valid.
func (s ListStatus) IsValid() bool {
	switch s {
	case ListPending, ListInProgress, ListCompleted:
		return true
	default:
		return false
	}
}

// CanPick reports whether scans are still accepted.
func (s ListStatus) CanPick() bool {
	return s != ListCompleted
}

// ItemStatus is the pick state of one line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemShortPick ItemStatus = "short_pick"
	ItemPicked    ItemStatus = "picked"
)

// Open reports whether the item still accepts scans.
func (s ItemStatus) Open() bool {
	return s == ItemPending || s == ItemShortPick
}

// Priority orders pick lists for assignment.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ============================================================================
// ENTITIES
// ============================================================================

// RouteSummary describes the optimised walk.
type RouteSummary struct {
	Zones          []string `json:"zones"`
	TotalLocations int      `json:"total_locations"`
}

// PickList is an outbound picking document seeded from an order.
type PickList struct {
	ID           int64        `json:"id"`
	Number       string       `json:"pick_list_number"`
	OrderID      int64        `json:"order_id"`
	OrderNumber  string       `json:"order_number,omitempty"`
	AssigneeID   int64        `json:"assignee_id,omitempty"`
	Status       ListStatus   `json:"status"`
	Priority     Priority     `json:"priority"`
	Zone         string       `json:"zone,omitempty"`
	TotalItems   int          `json:"total_items"`
	ItemsPicked  int          `json:"items_picked"`
	RouteSummary RouteSummary `json:"route_summary"`
	CreatedBy    int64        `json:"created_by"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Items        []Item       `json:"items,omitempty"`
}

// Item is one line of a pick list. The location coordinates are captured when
// the list is created so the route does not shift if the bin is edited later.
type Item struct {
	ID                int64      `json:"id"`
	PickListID        int64      `json:"pick_list_id"`
	OrderLineID       int64      `json:"order_line_id,omitempty"`
	ProductID         int64      `json:"product_id"`
	SKU               string     `json:"sku"`
	UPC               string     `json:"upc,omitempty"`
	QuantityRequested int        `json:"quantity_requested"`
	QuantityPicked    int        `json:"quantity_picked"`
	QuantityExcess    int        `json:"quantity_excess,omitempty"`
	LocationID        int64      `json:"location_id,omitempty"`
	LocationCode      string     `json:"location_code,omitempty"`
	Zone              string     `json:"zone,omitempty"`
	Aisle             string     `json:"aisle,omitempty"`
	Shelf             string     `json:"shelf,omitempty"`
	Position          string     `json:"position,omitempty"`
	SequenceNumber    int        `json:"sequence_number"`
	Status            ItemStatus `json:"status"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasLocation reports whether a pick location was resolved.
func (i Item) HasLocation() bool {
	return i.LocationID > 0
}

// Remaining is how many units are still to be picked.
func (i Item) Remaining() int {
	if r := i.QuantityRequested - i.QuantityPicked; r > 0 {
		return r
	}
	return 0
}

// ItemSummary is a fresh aggregate of a list's items.
type ItemSummary struct {
	Total  int
	Picked int
}

// ============================================================================
// INPUTS / OUTPUTS
// ============================================================================

// OrderLine is one line of the order snapshot.
type OrderLine struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	SKU       string `json:"sku,omitempty" validate:"omitempty,max=64"`
	UPC       string `json:"upc,omitempty" validate:"omitempty,max=14"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// OrderSnapshot is the order collaborator's view of an order to pick.
type OrderSnapshot struct {
	ID     int64       `json:"id" validate:"required,gt=0"`
	Number string      `json:"number,omitempty" validate:"max=64"`
	Lines  []OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// CreatePickListInput seeds a pick list.
type CreatePickListInput struct {
	Order      OrderSnapshot `json:"order" validate:"required"`
	AssigneeID int64         `json:"assignee_id,omitempty" validate:"gte=0"`
	Priority   Priority      `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	Zone       string        `json:"zone,omitempty" validate:"max=16"`
}

// ScanInput is a picking scan.
type ScanInput struct {
	Code       string         `json:"code"`
	Quantity   int            `json:"quantity,omitempty"`
	LocationID int64          `json:"location_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// ProductID is filled by the scan engine; direct callers leave it zero.
	ProductID int64 `json:"-"`
}

// ScanOutcome reports the effect of one picking scan.
type ScanOutcome struct {
	PickList    PickList      `json:"pick_list"`
	Item        Item          `json:"item"`
	NewQuantity int           `json:"ledger_quantity"`
	Scan        scanning.Scan `json:"scan"`
}

// RouteStep is one stop of the walk list.
type RouteStep struct {
	Sequence   int        `json:"sequence"`
	ItemID     int64      `json:"item_id"`
	ProductID  int64      `json:"product_id"`
	SKU        string     `json:"sku"`
	LocationID int64      `json:"location_id,omitempty"`
	Location   string     `json:"location"`
	Quantity   int        `json:"quantity"`
	Status     ItemStatus `json:"status"`
}

// Route is the advisory walk list of the remaining picks.
type Route struct {
	PickListID       int64        `json:"pick_list_id"`
	Steps            []RouteStep  `json:"steps"`
	RemainingItems   int          `json:"remaining_items"`
	EstimatedSeconds int          `json:"estimated_seconds"`
	Summary          RouteSummary `json:"summary"`
}

// ListFilter narrows ListPickLists.
type ListFilter struct {
	Status     ListStatus
	AssigneeID int64
	Zone       string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	ErrPickListNotFound  = fmt.Errorf("%w: pick list not found", shared.ErrNotFound)
	ErrItemNotOnList     = fmt.Errorf("%w: item not on pick list", shared.ErrNotFound)
	ErrItemAlreadyPicked = fmt.Errorf("%w: item already picked", shared.ErrNotFound)
	ErrPickListCompleted = fmt.Errorf("%w: pick list already completed", shared.ErrInvalidState)
	ErrNoPickLocation    = fmt.Errorf("%w: item has no pick location", shared.ErrInvalidState)
	ErrWrongLocation     = fmt.Errorf("%w: scanned location does not hold this pick", shared.ErrValidation)
)

// Audit actions.
const (
	ActionCreate   = "picking.create"
	ActionOptimize = "picking.optimize"
	ActionScan     = "picking.scan"
	ActionComplete = "picking.complete"
)
