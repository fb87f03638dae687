package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	scanning.TxRepository
	InsertShipment(ctx context.Context, shipment Shipment) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	LockShipment(ctx context.Context, id int64) (Shipment, error)
	ListItems(ctx context.Context, shipmentID int64) ([]Item, error)
	UpdateItem(ctx context.Context, item Item) error
	UpdateShipment(ctx context.Context, shipment Shipment) error
	SummarizeItems(ctx context.Context, shipmentID int64) (ItemSummary, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShipment(ctx context.Context, id int64) (Shipment, error)
	ShipmentItems(ctx context.Context, shipmentID int64) ([]Item, error)
	ListShipments(ctx context.Context, filter ListFilter) ([]Shipment, error)
}

// Ledger is the part of the ledger service the workflow relies on.
type Ledger interface {
	ApplyQuantityDeltaTx(ctx context.Context, tx ledger.TxRepository, in ledger.DeltaInput) (ledger.DeltaResult, error)
	SuggestReceivingLocation(ctx context.Context, productID int64) (ledger.Location, error)
	Observe(in ledger.DeltaInput, res ledger.DeltaResult, err error)
}

// ScanLog is the part of the scan engine the workflow writes through.
type ScanLog interface {
	RecordTx(ctx context.Context, tx scanning.TxRepository, scan scanning.Scan) (scanning.Scan, error)
	RecordFailure(ctx context.Context, scan scanning.Scan) error
	Announce(scan scanning.Scan)
	Resolve(ctx context.Context, kind scanning.CodeKind, code string) (catalog.Product, error)
}

// Service coordinates the receiving workflow.
type Service struct {
	repo     RepositoryPort
	ledger   Ledger
	scans    ScanLog
	catalog  catalog.Catalog
	events   notify.Emitter
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, led Ledger, scans ScanLog, products catalog.Catalog, events notify.Emitter, logger *slog.Logger) *Service {
	if events == nil {
		events = notify.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   led,
		scans:    scans,
		catalog:  products,
		events:   events,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateShipment opens a shipment with one pending item per manifest line.
func (s *Service) CreateShipment(ctx context.Context, input CreateShipmentInput, actor shared.Actor) (Shipment, error) {
	if err := shared.RequireActor(actor); err != nil {
		return Shipment{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Shipment{}, shared.Validationf("%v", err)
	}
	items := make([]Item, 0, len(input.Items))
	for _, line := range input.Items {
		item := Item{
			ProductID:        line.ProductID,
			SKU:              strings.TrimSpace(line.SKU),
			UPC:              strings.TrimSpace(line.UPC),
			ExpectedQuantity: line.ExpectedQuantity,
			MatchStatus:      MatchPending,
			LocationID:       line.LocationID,
		}
		if item.SKU == "" && item.UPC == "" {
			if s.catalog == nil {
				return Shipment{}, shared.Validationf("item for product %d needs sku or upc", line.ProductID)
			}
			product, err := s.catalog.Get(ctx, line.ProductID)
			if err != nil {
				return Shipment{}, fmt.Errorf("%w: %d", catalog.ErrProductNotFound, line.ProductID)
			}
			item.SKU, item.UPC = product.SKU, product.UPC
		}
		items = append(items, item)
	}

	now := s.now()
	shipment := Shipment{
		Number:          generateNumber("RCV", now),
		SupplierID:      input.SupplierID,
		PONumber:        input.PONumber,
		Status:          ShipmentPending,
		TotalItems:      len(items),
		ExpectedArrival: input.ExpectedArrival,
		Notes:           input.Notes,
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertShipment(ctx, shipment)
		if err != nil {
			return err
		}
		created := shipment
		created.ID = id
		created.Items = make([]Item, 0, len(items))
		for _, item := range items {
			item.ShipmentID = id
			item.UpdatedAt = now
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			created.Items = append(created.Items, item)
		}
		if err := tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionCreate,
			ResourceType: "receiving_shipment",
			ResourceID:   strconv.FormatInt(id, 10),
			After:        map[string]any{"number": created.Number, "po_number": created.PONumber, "total_items": created.TotalItems},
			At:           now,
		}); err != nil {
			return err
		}
		shipment = created
		return nil
	})
	if err != nil {
		return Shipment{}, err
	}
	return shipment, nil
}

// ProcessScan receives scanned units against the shipment manifest. Item,
// ledger and shipment status change together or not at all.
func (s *Service) ProcessScan(ctx context.Context, shipmentID int64, input ScanInput, actor shared.Actor) (ScanOutcome, error) {
	if err := shared.RequireActor(actor); err != nil {
		return ScanOutcome{}, err
	}
	kind, err := scanning.ValidateCode(input.Code)
	if err != nil {
		return ScanOutcome{}, err
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if input.Quantity < 0 {
		return ScanOutcome{}, shared.Validationf("quantity must be positive")
	}
	if input.SessionID == "" {
		input.SessionID = uuid.NewString()
	}
	if input.ProductID == 0 {
		product, err := s.scans.Resolve(ctx, kind, input.Code)
		if err != nil {
			s.recordFailure(ctx, shipmentID, input, kind, actor, err)
			return ScanOutcome{}, err
		}
		input.ProductID = product.ID
	}

	// Advisory lookup outside the transaction; the match is repeated under lock.
	var suggested ledger.Location
	if input.LocationID == 0 {
		suggested = s.suggestLocation(ctx, shipmentID, input.ProductID, input.Code)
	}

	now := s.now()
	var (
		outcome  ScanOutcome
		deltaIn  *ledger.DeltaInput
		deltaRes ledger.DeltaResult
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deltaIn = nil
		shipment, err := tx.LockShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !shipment.Status.CanReceive() {
			return ErrShipmentCompleted
		}
		items, err := tx.ListItems(ctx, shipmentID)
		if err != nil {
			return err
		}
		item, ok := matchItem(items, input.ProductID, input.Code)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotInManifest, input.Code)
		}

		locationID := input.LocationID
		if locationID == 0 {
			locationID = item.LocationID
		}
		if locationID == 0 && suggested.ID > 0 {
			locationID = suggested.ID
		}
		if locationID == 0 {
			return ledger.ErrNoLocation
		}

		before := item
		item.ReceivedQuantity += input.Quantity
		item.MatchStatus = nextMatchStatus(item.MatchStatus, item.ReceivedQuantity, item.ExpectedQuantity)
		if item.LocationID == 0 {
			item.LocationID = locationID
		}
		item.UpdatedAt = now

		deltaIn = &ledger.DeltaInput{
			ProductID:  item.ProductID,
			LocationID: locationID,
			Delta:      input.Quantity,
			Actor:      actor,
			Reason:     "receiving",
			RefModule:  "receiving",
			RefID:      shipment.Number,
		}
		if deltaRes, err = s.ledger.ApplyQuantityDeltaTx(ctx, tx, *deltaIn); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		shipment, err = s.recomputeShipment(ctx, tx, shipment, actor, now)
		if err != nil {
			return err
		}
		if err := tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionScan,
			ResourceType: "receiving_item",
			ResourceID:   strconv.FormatInt(item.ID, 10),
			Before:       map[string]any{"received_quantity": before.ReceivedQuantity, "match_status": string(before.MatchStatus)},
			After:        map[string]any{"received_quantity": item.ReceivedQuantity, "match_status": string(item.MatchStatus), "location_id": locationID},
			At:           now,
		}); err != nil {
			return err
		}
		scan, err := s.scans.RecordTx(ctx, tx, scanning.Scan{
			ScanType:    scanning.TypeReceiving,
			ActorID:     actor.ID,
			ProductID:   item.ProductID,
			UPC:         item.UPC,
			SKU:         item.SKU,
			LocationID:  locationID,
			Quantity:    input.Quantity,
			Status:      scanning.StatusSuccess,
			SessionID:   input.SessionID,
			ReferenceID: shipmentID,
			Metadata:    withItem(input.Metadata, item.ID),
			ScannedAt:   now,
		})
		if err != nil {
			return err
		}
		outcome = ScanOutcome{Shipment: shipment, Item: item, NewQuantity: deltaRes.NewQuantity, Scan: scan}
		return nil
	})
	if deltaIn != nil {
		s.ledger.Observe(*deltaIn, deltaRes, err)
	}
	if err != nil {
		s.recordFailure(ctx, shipmentID, input, kind, actor, err)
		return ScanOutcome{}, err
	}

	s.scans.Announce(outcome.Scan)
	s.events.Emit(notify.Event{
		Kind:        notify.KindInventoryChanged,
		ActorID:     actor.ID,
		SubjectType: "receiving_shipment",
		SubjectID:   shipmentID,
		ProductID:   outcome.Item.ProductID,
		LocationID:  outcome.Item.LocationID,
		Quantity:    outcome.NewQuantity,
		State:       string(outcome.Item.MatchStatus),
	})
	if outcome.Shipment.Status == ShipmentCompleted {
		s.emitCompleted(outcome.Shipment, actor)
	}
	return outcome, nil
}

// ReportDiscrepancy records an exception on an item. The ledger is untouched.
func (s *Service) ReportDiscrepancy(ctx context.Context, shipmentID, itemID int64, input DiscrepancyInput, actor shared.Actor) (Item, error) {
	if err := shared.RequireActor(actor); err != nil {
		return Item{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Item{}, shared.Validationf("%v", err)
	}
	now := s.now()
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shipment, err := tx.LockShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !shipment.Status.CanReceive() {
			return ErrShipmentCompleted
		}
		items, err := tx.ListItems(ctx, shipmentID)
		if err != nil {
			return err
		}
		var (
			item  Item
			found bool
		)
		for _, candidate := range items {
			if candidate.ID == itemID {
				item, found = candidate, true
				break
			}
		}
		if !found {
			return ErrItemNotFound
		}
		before := item
		item.MatchStatus = input.Type
		item.DiscrepancyNotes = input.Notes
		item.DiscrepancyQuantity = input.Quantity
		item.UpdatedAt = now
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		if _, err := s.recomputeShipment(ctx, tx, shipment, actor, now); err != nil {
			return err
		}
		updated = item
		return tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionDiscrepancy,
			ResourceType: "receiving_item",
			ResourceID:   strconv.FormatInt(item.ID, 10),
			Before:       map[string]any{"match_status": string(before.MatchStatus)},
			After:        map[string]any{"match_status": string(item.MatchStatus), "notes": input.Notes, "quantity": input.Quantity},
			At:           now,
		})
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

// CompleteShipment force-closes the shipment regardless of item state.
func (s *Service) CompleteShipment(ctx context.Context, shipmentID int64, actor shared.Actor) (Shipment, error) {
	if err := shared.RequireActor(actor); err != nil {
		return Shipment{}, err
	}
	now := s.now()
	var completed Shipment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shipment, err := tx.LockShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !shipment.Status.CanReceive() {
			return ErrShipmentCompleted
		}
		summary, err := tx.SummarizeItems(ctx, shipmentID)
		if err != nil {
			return err
		}
		before := shipment.Status
		shipment.ItemsReceived = summary.Settled
		markCompleted(&shipment, actor, now)
		if err := tx.UpdateShipment(ctx, shipment); err != nil {
			return err
		}
		completed = shipment
		return tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionComplete,
			ResourceType: "receiving_shipment",
			ResourceID:   strconv.FormatInt(shipmentID, 10),
			Before:       map[string]any{"status": string(before)},
			After:        map[string]any{"status": string(shipment.Status), "items_received": shipment.ItemsReceived, "forced": true},
			At:           now,
		})
	})
	if err != nil {
		return Shipment{}, err
	}
	s.emitCompleted(completed, actor)
	return completed, nil
}

// GetShipment loads a shipment with its items.
func (s *Service) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	shipment, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	items, err := s.repo.ShipmentItems(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	shipment.Items = items
	return shipment, nil
}

// ListShipments lists shipments, newest first.
func (s *Service) ListShipments(ctx context.Context, filter ListFilter) ([]Shipment, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Validationf("unknown shipment status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListShipments(ctx, filter)
}

// HandleScan lets the scan engine dispatch receiving scans to the workflow.
func (s *Service) HandleScan(ctx context.Context, event scanning.ScanEvent, actor shared.Actor) (scanning.WorkflowResult, error) {
	outcome, err := s.ProcessScan(ctx, event.ReferenceID, ScanInput{
		Code:       event.Code,
		Quantity:   event.Quantity,
		LocationID: event.LocationID,
		SessionID:  event.SessionID,
		Metadata:   event.Metadata,
		ProductID:  event.ProductID,
	}, actor)
	if err != nil {
		return scanning.WorkflowResult{}, err
	}
	return scanning.WorkflowResult{
		Scan:        outcome.Scan,
		Workflow:    "receiving",
		DocumentID:  outcome.Shipment.ID,
		ItemID:      outcome.Item.ID,
		ItemStatus:  string(outcome.Item.MatchStatus),
		Status:      string(outcome.Shipment.Status),
		Completed:   outcome.Shipment.Status == ShipmentCompleted,
		NewQuantity: outcome.NewQuantity,
	}, nil
}

// recomputeShipment derives items_received and status from a fresh
// aggregate of the child rows and persists them.
func (s *Service) recomputeShipment(ctx context.Context, tx TxRepository, shipment Shipment, actor shared.Actor, now time.Time) (Shipment, error) {
	summary, err := tx.SummarizeItems(ctx, shipment.ID)
	if err != nil {
		return Shipment{}, err
	}
	shipment.ItemsReceived = summary.Settled
	if summary.Total > 0 && summary.Settled == summary.Total {
		markCompleted(&shipment, actor, now)
	} else {
		shipment.Status = ShipmentInProgress
		shipment.UpdatedAt = now
	}
	if err := tx.UpdateShipment(ctx, shipment); err != nil {
		return Shipment{}, err
	}
	return shipment, nil
}

func markCompleted(shipment *Shipment, actor shared.Actor, now time.Time) {
	shipment.Status = ShipmentCompleted
	shipment.CompletedAt = &now
	shipment.UpdatedAt = now
	if shipment.ActualArrival == nil {
		shipment.ActualArrival = &now
	}
	shipment.ReceivedBy = actor.ID
}

func (s *Service) suggestLocation(ctx context.Context, shipmentID, productID int64, code string) ledger.Location {
	items, err := s.repo.ShipmentItems(ctx, shipmentID)
	if err != nil {
		return ledger.Location{}
	}
	item, ok := matchItem(items, productID, code)
	if !ok || item.LocationID > 0 {
		return ledger.Location{}
	}
	loc, err := s.ledger.SuggestReceivingLocation(ctx, item.ProductID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("suggest receiving location", slog.Int64("product_id", item.ProductID), slog.Any("error", err))
		}
		return ledger.Location{}
	}
	return loc
}

func (s *Service) recordFailure(ctx context.Context, shipmentID int64, input ScanInput, kind scanning.CodeKind, actor shared.Actor, cause error) {
	row := scanning.NewScanRow(scanning.ScanEvent{
		Code:        input.Code,
		ScanType:    scanning.TypeReceiving,
		LocationID:  input.LocationID,
		Quantity:    input.Quantity,
		SessionID:   input.SessionID,
		ReferenceID: shipmentID,
		Metadata:    input.Metadata,
	}, actor, kind)
	row.ErrorReason = scanning.FailureReason(cause)
	if err := s.scans.RecordFailure(ctx, row); err != nil {
		s.logger.Error("record failed receiving scan", slog.Int64("shipment_id", shipmentID), slog.Any("error", err))
	}
}

func (s *Service) emitCompleted(shipment Shipment, actor shared.Actor) {
	s.events.Emit(notify.Event{
		Kind:        notify.KindWorkflowCompleted,
		ActorID:     actor.ID,
		SubjectType: "receiving_shipment",
		SubjectID:   shipment.ID,
		Quantity:    shipment.ItemsReceived,
		State:       string(shipment.Status),
	})
}

// matchItem finds the manifest line a scan refers to. Lines are matched on
// the resolved product first and on the stored codes only when no line
// carries it. Among several candidates a pending line wins.
func matchItem(items []Item, productID int64, code string) (Item, bool) {
	if productID > 0 {
		if item, ok := firstItem(items, func(item Item) bool { return item.ProductID == productID }); ok {
			return item, true
		}
	}
	return firstItem(items, func(item Item) bool { return scanning.MatchesProduct(code, item.UPC, item.SKU) })
}

func firstItem(items []Item, match func(Item) bool) (Item, bool) {
	var (
		fallback Item
		found    bool
	)
	for _, item := range items {
		if !match(item) {
			continue
		}
		if item.MatchStatus == MatchPending {
			return item, true
		}
		if !found {
			fallback, found = item, true
		}
	}
	return fallback, found
}

func withItem(metadata map[string]any, itemID int64) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["receiving_item_id"] = itemID
	return out
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
