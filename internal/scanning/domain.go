// Package scanning is the universal intake for handheld scanner events.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ScanType enumerates the purposes a scan is taken for.
type ScanType string

const (
	TypeReceiving  ScanType = "receiving"
	TypePicking    ScanType = "picking"
	TypeShipping   ScanType = "shipping"
	TypeCycleCount ScanType = "cycle_count"
	TypeAdjustment ScanType = "adjustment"
)

// Valid reports whether the scan type is known.
func (t ScanType) Valid() bool {
	switch t {
	case TypeReceiving, TypePicking, TypeShipping, TypeCycleCount, TypeAdjustment:
		return true
	}
	return false
}

// Status is the terminal outcome of a scan row.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// CodeKind classifies a scanned code.
type CodeKind string

const (
	CodeUPCA CodeKind = "upc_a"
	CodeUPCE CodeKind = "upc_e"
	CodeSKU  CodeKind = "sku"
)

// IsUPC reports whether the code is barcode-shaped.
func (k CodeKind) IsUPC() bool {
	return k == CodeUPCA || k == CodeUPCE
}

// Reasons recorded on error rows.
const (
	ReasonProductNotFound = "Product not found"
)

// FailureReason is the error_reason stored for a rejected scan.
func FailureReason(err error) string {
	if errors.Is(err, catalog.ErrProductNotFound) {
		return ReasonProductNotFound
	}
	return shared.UserSafeMessage(err)
}

// Scan is one immutable row of the scan log.
type Scan struct {
	ID          int64          `json:"id"`
	ScanType    ScanType       `json:"scan_type"`
	ActorID     int64          `json:"actor_id"`
	ProductID   int64          `json:"product_id,omitempty"`
	UPC         string         `json:"upc,omitempty"`
	SKU         string         `json:"sku,omitempty"`
	LocationID  int64          `json:"location_id,omitempty"`
	Quantity    int            `json:"quantity"`
	Status      Status         `json:"status"`
	ErrorReason string         `json:"error_reason,omitempty"`
	SessionID   string         `json:"session_id"`
	ReferenceID int64          `json:"reference_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ScannedAt   time.Time      `json:"scanned_at"`
}

// ScanEvent is an incoming scan.
type ScanEvent struct {
	Code           string         `json:"code"`
	ScanType       ScanType       `json:"scan_type"`
	LocationID     int64          `json:"location_id,omitempty"`
	Quantity       int            `json:"quantity,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	ReferenceID    int64          `json:"reference_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	// ProductID is set by the engine from the catalog before a workflow
	// sees the event.
	ProductID int64 `json:"-"`
}

// Next action hints returned to the device.
const (
	ActionConfirmReceive   = "confirm_receive"
	ActionConfirmPick      = "confirm_pick"
	ActionConfirmShip      = "confirm_ship"
	ActionEnterCount       = "enter_count"
	ActionEnterNewQuantity = "enter_new_quantity"
)

// NextAction tells the operator what to do after a scan.
type NextAction struct {
	Action            string           `json:"action"`
	SuggestedLocation *ledger.Location `json:"suggested_location,omitempty"`
	ExpectedQuantity  *int             `json:"expected_quantity,omitempty"`
	CurrentQuantity   *int             `json:"current_quantity,omitempty"`
}

// WorkflowResult is what a receiving or picking workflow reports back for a
// dispatched scan.
type WorkflowResult struct {
	Scan        Scan   `json:"-"`
	Workflow    string `json:"workflow"`
	DocumentID  int64  `json:"document_id"`
	ItemID      int64  `json:"item_id"`
	ItemStatus  string `json:"item_status"`
	Status      string `json:"status"`
	Completed   bool   `json:"completed"`
	NewQuantity int    `json:"new_quantity"`
}

// ScanResult is returned for an accepted scan.
type ScanResult struct {
	Scan       Scan                    `json:"scan"`
	Product    catalog.Product         `json:"product"`
	Snapshot   *ledger.ProductLocation `json:"inventory_snapshot,omitempty"`
	NextAction NextAction              `json:"next_action"`
	Workflow   *WorkflowResult         `json:"workflow,omitempty"`
}

// WorkflowHandler mutates a workflow document for a dispatched scan.
type WorkflowHandler interface {
	HandleScan(ctx context.Context, event ScanEvent, actor shared.Actor) (WorkflowResult, error)
}

// HistoryFilter narrows History.
type HistoryFilter struct {
	SessionID string
	ActorID   int64
	ScanType  ScanType
	Status    Status
	From      time.Time
	To        time.Time
	Limit     int
}

// CountInput confirms a cycle count or adjustment at a location.
type CountInput struct {
	ProductID  int64    `json:"product_id" validate:"required,gt=0"`
	LocationID int64    `json:"location_id" validate:"required,gt=0"`
	Counted    int      `json:"counted" validate:"gte=0"`
	ScanType   ScanType `json:"scan_type" validate:"required,oneof=cycle_count adjustment"`
	SessionID  string   `json:"session_id,omitempty"`
}

// CountResult reports a confirmed count.
type CountResult struct {
	Previous int  `json:"previous_quantity"`
	Counted  int  `json:"counted_quantity"`
	Adjusted bool `json:"adjusted"`
	Scan     Scan `json:"scan"`
}

var (
	upcA    = regexp.MustCompile(`^[0-9]{12}$`)
	upcE    = regexp.MustCompile(`^[0-9]{8}$`)
	skuCode = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ErrInvalidCode indicates a malformed scan code.
var ErrInvalidCode = fmt.Errorf("%w: invalid scan code", shared.ErrValidation)

// ValidateCode classifies code as UPC-A, UPC-E or SKU.
func ValidateCode(code string) (CodeKind, error) {
	switch {
	case upcA.MatchString(code):
		return CodeUPCA, nil
	case upcE.MatchString(code):
		return CodeUPCE, nil
	case skuCode.MatchString(code):
		return CodeSKU, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidCode, code)
	}
}

// MatchesProduct reports whether a scanned code identifies an item carrying
// the given upc and sku. UPCs compare exactly, SKUs case-insensitively.
func MatchesProduct(code, upc, sku string) bool {
	if code == "" {
		return false
	}
	if upc != "" && code == upc {
		return true
	}
	return sku != "" && strings.EqualFold(code, sku)
}
