// Package analytics computes read-only warehouse KPIs over a date window.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultWindow is used when a filter carries no From date.
const DefaultWindow = 30 * 24 * time.Hour

// Filter scopes every metric. Zone narrows location-bound metrics; shipments
// are not zoned and ignore it.
type Filter struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Zone string    `json:"zone,omitempty"`
}

// Normalize fills the default window ending now.
func (f Filter) Normalize(now time.Time) Filter {
	if f.To.IsZero() {
		f.To = now.UTC()
	}
	if f.From.IsZero() {
		f.From = f.To.Add(-DefaultWindow)
	}
	return f
}

// WorkflowCounts counts documents of one workflow.
type WorkflowCounts struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// Throughput reports document volume per workflow.
type Throughput struct {
	Shipments WorkflowCounts `json:"shipments"`
	PickLists WorkflowCounts `json:"pick_lists"`
}

// Accuracy reports unit and scan accuracy ratios.
type Accuracy struct {
	ExpectedUnits     int     `json:"expected_units"`
	ReceivedUnits     int     `json:"received_units"`
	ReceivingAccuracy float64 `json:"receiving_accuracy"`
	RequestedUnits    int     `json:"requested_units"`
	PickedUnits       int     `json:"picked_units"`
	PickingAccuracy   float64 `json:"picking_accuracy"`
	TotalScans        int     `json:"total_scans"`
	SuccessfulScans   int     `json:"successful_scans"`
	ScanSuccessRate   float64 `json:"scan_success_rate"`
}

// LocationUsage is the fill level of one location.
type LocationUsage struct {
	LocationID  int64   `json:"location_id"`
	Code        string  `json:"code"`
	Zone        string  `json:"zone"`
	Capacity    int     `json:"capacity"`
	Current     int     `json:"current"`
	Utilization float64 `json:"utilization"`
}

// Utilization lists location fill levels and their mean.
type Utilization struct {
	Locations []LocationUsage `json:"locations"`
	Average   float64         `json:"average"`
}

// VelocityClass is the A/B/C pick-volume class of a SKU.
type VelocityClass string

const (
	ClassA VelocityClass = "A"
	ClassB VelocityClass = "B"
	ClassC VelocityClass = "C"
)

// ProductPicks is the raw picked volume of a product.
type ProductPicks struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Picked    int    `json:"picked"`
}

// VelocityEntry ranks a product by picked volume.
type VelocityEntry struct {
	ProductPicks
	Rank  int           `json:"rank"`
	Class VelocityClass `json:"class"`
}

// Aging bucket names.
const (
	BucketFresh      = "fresh"
	BucketModerate   = "moderate"
	BucketAging      = "aging"
	BucketSlowMoving = "slow_moving"
)

// RowAge is one stocked ledger row with its last movement.
type RowAge struct {
	ProductID   int64
	LocationID  int64
	Quantity    int
	UnitPrice   decimal.Decimal
	LastUpdated time.Time
}

// AgingBucket aggregates ledger rows by days since last update.
type AgingBucket struct {
	Bucket string          `json:"bucket"`
	Rows   int             `json:"rows"`
	Units  int             `json:"units"`
	Value  decimal.Decimal `json:"value"`
}

// ShipmentStats is the raw receiving aggregate of a window.
type ShipmentStats struct {
	Total         int
	Completed     int
	ExpectedUnits int
	ReceivedUnits int
}

// PickListStats is the raw picking aggregate of a window.
type PickListStats struct {
	Total          int
	Completed      int
	RequestedUnits int
	PickedUnits    int
}

// ScanStats is the raw scan-log aggregate of a window.
type ScanStats struct {
	Total      int
	Successful int
}

// Dashboard bundles every metric for one filter.
type Dashboard struct {
	Filter      Filter          `json:"filter"`
	Throughput  Throughput      `json:"throughput"`
	Accuracy    Accuracy        `json:"accuracy"`
	Utilization Utilization     `json:"utilization"`
	Velocity    []VelocityEntry `json:"velocity"`
	Aging       []AgingBucket   `json:"aging"`
}
