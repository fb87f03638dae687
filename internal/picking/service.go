package picking

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
	InsertPickList(ctx context.Context, list PickList) (int64, error)
	InsertPickItem(ctx context.Context, item Item) (int64, error)
	LockPickList(ctx context.Context, id int64) (PickList, error)
	ListPickItems(ctx context.Context, pickListID int64) ([]Item, error)
	UpdatePickItem(ctx context.Context, item Item) error
	UpdateSequence(ctx context.Context, itemID int64, sequence int) error
	UpdatePickList(ctx context.Context, list PickList) error
	SummarizePickItems(ctx context.Context, pickListID int64) (ItemSummary, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPickList(ctx context.Context, id int64) (PickList, error)
	PickItems(ctx context.Context, pickListID int64) ([]Item, error)
	ListPickLists(ctx context.Context, filter ListFilter) ([]PickList, error)
}

// Ledger is the part of the ledger service the workflow relies on.
type Ledger interface {
	ApplyQuantityDeltaTx(ctx context.Context, tx ledger.TxRepository, in ledger.DeltaInput) (ledger.DeltaResult, error)
	FindPrimaryLocation(ctx context.Context, productID int64) (ledger.Location, error)
	Observe(in ledger.DeltaInput, res ledger.DeltaResult, err error)
}

// ScanLog is the part of the scan engine the workflow writes through.
type ScanLog interface {
	RecordTx(ctx context.Context, tx scanning.TxRepository, scan scanning.Scan) (scanning.Scan, error)
	RecordFailure(ctx context.Context, scan scanning.Scan) error
	Announce(scan scanning.Scan)
	Resolve(ctx context.Context, kind scanning.CodeKind, code string) (catalog.Product, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	SecondsPerPick time.Duration
}

// DefaultSecondsPerPick is the route estimate per remaining item.
const DefaultSecondsPerPick = 45 * time.Second

// Service coordinates the picking workflow.
type Service struct {
	repo     RepositoryPort
	ledger   Ledger
	scans    ScanLog
	catalog  catalog.Catalog
	events   notify.Emitter
	validate *validator.Validate
	logger   *slog.Logger
	perPick  time.Duration
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, led Ledger, scans ScanLog, products catalog.Catalog, events notify.Emitter, cfg ServiceConfig, logger *slog.Logger) *Service {
	if events == nil {
		events = notify.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	perPick := cfg.SecondsPerPick
	if perPick <= 0 {
		perPick = DefaultSecondsPerPick
	}
	return &Service{
		repo:     repo,
		ledger:   led,
		scans:    scans,
		catalog:  products,
		events:   events,
		validate: validator.New(),
		logger:   logger,
		perPick:  perPick,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreatePickList snapshots the order lines into a pick list, resolves each
// line's pick location and orders the route.
func (s *Service) CreatePickList(ctx context.Context, input CreatePickListInput, actor shared.Actor) (PickList, error) {
	if err := shared.RequireActor(actor); err != nil {
		return PickList{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return PickList{}, shared.Validationf("%v", err)
	}
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}

	now := s.now()
	items := make([]Item, 0, len(input.Order.Lines))
	for i, line := range input.Order.Lines {
		item := Item{
			OrderLineID:       line.ID,
			ProductID:         line.ProductID,
			SKU:               strings.TrimSpace(line.SKU),
			UPC:               strings.TrimSpace(line.UPC),
			QuantityRequested: line.Quantity,
			SequenceNumber:    i + 1,
			Status:            ItemPending,
			UpdatedAt:         now,
		}
		if item.SKU == "" && item.UPC == "" {
			if s.catalog == nil {
				return PickList{}, shared.Validationf("line for product %d needs sku or upc", line.ProductID)
			}
			product, err := s.catalog.Get(ctx, line.ProductID)
			if err != nil {
				return PickList{}, fmt.Errorf("%w: %d", catalog.ErrProductNotFound, line.ProductID)
			}
			item.SKU, item.UPC = product.SKU, product.UPC
		}
		loc, err := s.ledger.FindPrimaryLocation(ctx, line.ProductID)
		switch {
		case err == nil:
			item.LocationID = loc.ID
			item.LocationCode = loc.Code
			item.Zone = loc.Zone
			item.Aisle = loc.Aisle
			item.Shelf = loc.Shelf
			item.Position = loc.Position
		case errors.Is(err, shared.ErrNotFound):
			s.logger.Info("pick line without stock", slog.Int64("order_id", input.Order.ID), slog.Int64("product_id", line.ProductID))
		default:
			return PickList{}, err
		}
		items = append(items, item)
	}

	list := PickList{
		Number:      generateNumber("PL", now),
		OrderID:     input.Order.ID,
		OrderNumber: input.Order.Number,
		AssigneeID:  input.AssigneeID,
		Status:      ListPending,
		Priority:    input.Priority,
		Zone:        input.Zone,
		TotalItems:  len(items),
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created := list
		id, err := tx.InsertPickList(ctx, created)
		if err != nil {
			return err
		}
		created.ID = id
		for _, item := range items {
			item.PickListID = id
			itemID, err := tx.InsertPickItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			created.Items = append(created.Items, item)
		}
		if err := tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionCreate,
			ResourceType: "pick_list",
			ResourceID:   strconv.FormatInt(id, 10),
			After:        map[string]any{"number": created.Number, "order_id": created.OrderID, "total_items": created.TotalItems},
			At:           now,
		}); err != nil {
			return err
		}
		optimized, err := s.optimizeTx(ctx, tx, created, created.Items, actor, now)
		if err != nil {
			return err
		}
		list = optimized
		return nil
	})
	if err != nil {
		return PickList{}, err
	}
	return list, nil
}

// OptimizeRoute re-sequences the list by physical adjacency.
func (s *Service) OptimizeRoute(ctx context.Context, pickListID int64, actor shared.Actor) (PickList, error) {
	if err := shared.RequireActor(actor); err != nil {
		return PickList{}, err
	}
	var list PickList
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPickList(ctx, pickListID)
		if err != nil {
			return err
		}
		if !current.Status.CanPick() {
			return ErrPickListCompleted
		}
		items, err := tx.ListPickItems(ctx, pickListID)
		if err != nil {
			return err
		}
		list, err = s.optimizeTx(ctx, tx, current, items, actor, s.now())
		return err
	})
	if err != nil {
		return PickList{}, err
	}
	return list, nil
}

func (s *Service) optimizeTx(ctx context.Context, tx TxRepository, list PickList, items []Item, actor shared.Actor, now time.Time) (PickList, error) {
	sorted, summary := sortRoute(items)
	previous := make(map[int64]int, len(items))
	for _, item := range items {
		previous[item.ID] = item.SequenceNumber
	}
	changed := 0
	for _, item := range sorted {
		if previous[item.ID] == item.SequenceNumber {
			continue
		}
		if err := tx.UpdateSequence(ctx, item.ID, item.SequenceNumber); err != nil {
			return PickList{}, err
		}
		changed++
	}
	list.RouteSummary = summary
	list.UpdatedAt = now
	if err := tx.UpdatePickList(ctx, list); err != nil {
		return PickList{}, err
	}
	if err := tx.InsertAuditLog(ctx, shared.AuditLog{
		ActorID:      actor.ID,
		Action:       ActionOptimize,
		ResourceType: "pick_list",
		ResourceID:   strconv.FormatInt(list.ID, 10),
		After:        map[string]any{"zones": summary.Zones, "total_locations": summary.TotalLocations, "resequenced": changed},
		At:           now,
	}); err != nil {
		return PickList{}, err
	}
	list.Items = sorted
	return list, nil
}

// ProcessScan records picked units against the list. Item, ledger and list
// status change together or not at all.
func (s *Service) ProcessScan(ctx context.Context, pickListID int64, input ScanInput, actor shared.Actor) (ScanOutcome, error) {
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
			s.recordFailure(ctx, pickListID, input, kind, actor, err)
			return ScanOutcome{}, err
		}
		input.ProductID = product.ID
	}

	now := s.now()
	var (
		outcome  ScanOutcome
		deltaIn  *ledger.DeltaInput
		deltaRes ledger.DeltaResult
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deltaIn = nil
		list, err := tx.LockPickList(ctx, pickListID)
		if err != nil {
			return err
		}
		if !list.Status.CanPick() {
			return ErrPickListCompleted
		}
		items, err := tx.ListPickItems(ctx, pickListID)
		if err != nil {
			return err
		}
		item, err := matchPickItem(items, input.ProductID, input.Code)
		if err != nil {
			return err
		}
		if !item.HasLocation() {
			return ErrNoPickLocation
		}
		if input.LocationID > 0 && input.LocationID != item.LocationID {
			return fmt.Errorf("%w: expected %s", ErrWrongLocation, item.LocationCode)
		}

		before := item
		applyPick(&item, input.Quantity)
		item.UpdatedAt = now

		deltaIn = &ledger.DeltaInput{
			ProductID:  item.ProductID,
			LocationID: item.LocationID,
			Delta:      -input.Quantity,
			Actor:      actor,
			Reason:     "picking",
			RefModule:  "picking",
			RefID:      list.Number,
		}
		if deltaRes, err = s.ledger.ApplyQuantityDeltaTx(ctx, tx, *deltaIn); err != nil {
			return err
		}
		if err := tx.UpdatePickItem(ctx, item); err != nil {
			return err
		}
		if list.Status == ListPending {
			list.StartedAt = &now
		}
		list, err = s.recomputeList(ctx, tx, list, now)
		if err != nil {
			return err
		}
		if err := tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionScan,
			ResourceType: "pick_list_item",
			ResourceID:   strconv.FormatInt(item.ID, 10),
			Before:       map[string]any{"quantity_picked": before.QuantityPicked, "status": string(before.Status)},
			After:        map[string]any{"quantity_picked": item.QuantityPicked, "quantity_excess": item.QuantityExcess, "status": string(item.Status)},
			At:           now,
		}); err != nil {
			return err
		}
		scan, err := s.scans.RecordTx(ctx, tx, scanning.Scan{
			ScanType:    scanning.TypePicking,
			ActorID:     actor.ID,
			ProductID:   item.ProductID,
			UPC:         item.UPC,
			SKU:         item.SKU,
			LocationID:  item.LocationID,
			Quantity:    input.Quantity,
			Status:      scanning.StatusSuccess,
			SessionID:   input.SessionID,
			ReferenceID: pickListID,
			Metadata:    withItem(input.Metadata, item.ID),
			ScannedAt:   now,
		})
		if err != nil {
			return err
		}
		outcome = ScanOutcome{PickList: list, Item: item, NewQuantity: deltaRes.NewQuantity, Scan: scan}
		return nil
	})
	if deltaIn != nil {
		s.ledger.Observe(*deltaIn, deltaRes, err)
	}
	if err != nil {
		s.recordFailure(ctx, pickListID, input, kind, actor, err)
		return ScanOutcome{}, err
	}

	s.scans.Announce(outcome.Scan)
	s.events.Emit(notify.Event{
		Kind:        notify.KindInventoryChanged,
		ActorID:     actor.ID,
		SubjectType: "pick_list",
		SubjectID:   pickListID,
		ProductID:   outcome.Item.ProductID,
		LocationID:  outcome.Item.LocationID,
		Quantity:    outcome.NewQuantity,
		State:       string(outcome.Item.Status),
	})
	if outcome.PickList.Status == ListCompleted {
		s.emitCompleted(outcome.PickList, actor)
	}
	return outcome, nil
}

// CompletePickList closes a list whose remaining lines will not be picked.
func (s *Service) CompletePickList(ctx context.Context, pickListID int64, actor shared.Actor) (PickList, error) {
	if err := shared.RequireActor(actor); err != nil {
		return PickList{}, err
	}
	now := s.now()
	var completed PickList
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		list, err := tx.LockPickList(ctx, pickListID)
		if err != nil {
			return err
		}
		if !list.Status.CanPick() {
			return ErrPickListCompleted
		}
		summary, err := tx.SummarizePickItems(ctx, pickListID)
		if err != nil {
			return err
		}
		before := list.Status
		list.ItemsPicked = summary.Picked
		list.Status = ListCompleted
		list.CompletedAt = &now
		list.UpdatedAt = now
		if err := tx.UpdatePickList(ctx, list); err != nil {
			return err
		}
		completed = list
		return tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionComplete,
			ResourceType: "pick_list",
			ResourceID:   strconv.FormatInt(pickListID, 10),
			Before:       map[string]any{"status": string(before)},
			After:        map[string]any{"status": string(list.Status), "items_picked": list.ItemsPicked, "forced": true},
			At:           now,
		})
	})
	if err != nil {
		return PickList{}, err
	}
	s.emitCompleted(completed, actor)
	return completed, nil
}

// GetSuggestedRoute renders the remaining picks as an ordered walk list.
func (s *Service) GetSuggestedRoute(ctx context.Context, pickListID int64) (Route, error) {
	list, err := s.repo.GetPickList(ctx, pickListID)
	if err != nil {
		return Route{}, err
	}
	items, err := s.repo.PickItems(ctx, pickListID)
	if err != nil {
		return Route{}, err
	}
	route := Route{PickListID: list.ID, Steps: []RouteStep{}, Summary: list.RouteSummary}
	for _, item := range items {
		if !item.Status.Open() {
			continue
		}
		route.Steps = append(route.Steps, RouteStep{
			Sequence:   item.SequenceNumber,
			ItemID:     item.ID,
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			LocationID: item.LocationID,
			Location:   describeLocation(item),
			Quantity:   item.Remaining(),
			Status:     item.Status,
		})
	}
	route.RemainingItems = len(route.Steps)
	route.EstimatedSeconds = int((time.Duration(route.RemainingItems) * s.perPick).Seconds())
	return route, nil
}

// GetPickList loads a pick list with its items in route order.
func (s *Service) GetPickList(ctx context.Context, id int64) (PickList, error) {
	list, err := s.repo.GetPickList(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	items, err := s.repo.PickItems(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	list.Items = items
	return list, nil
}

// ListPickLists lists pick lists, newest first.
func (s *Service) ListPickLists(ctx context.Context, filter ListFilter) ([]PickList, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Validationf("unknown pick list status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListPickLists(ctx, filter)
}

// HandleScan lets the scan engine dispatch picking scans to the workflow.
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
		Workflow:    "picking",
		DocumentID:  outcome.PickList.ID,
		ItemID:      outcome.Item.ID,
		ItemStatus:  string(outcome.Item.Status),
		Status:      string(outcome.PickList.Status),
		Completed:   outcome.PickList.Status == ListCompleted,
		NewQuantity: outcome.NewQuantity,
	}, nil
}

// recomputeList derives items_picked and status from a fresh aggregate of
// the child rows and persists them. A list completes once every line is
// picked.
func (s *Service) recomputeList(ctx context.Context, tx TxRepository, list PickList, now time.Time) (PickList, error) {
	summary, err := tx.SummarizePickItems(ctx, list.ID)
	if err != nil {
		return PickList{}, err
	}
	list.ItemsPicked = summary.Picked
	list.UpdatedAt = now
	if summary.Total > 0 && summary.Picked == summary.Total {
		list.Status = ListCompleted
		list.CompletedAt = &now
	} else {
		list.Status = ListInProgress
	}
	if err := tx.UpdatePickList(ctx, list); err != nil {
		return PickList{}, err
	}
	return list, nil
}

// applyPick adds qty to the item. Units beyond the requested quantity are
// kept as excess so quantity_picked never exceeds quantity_requested.
func applyPick(item *Item, qty int) {
	picked := item.QuantityPicked + qty
	if picked > item.QuantityRequested {
		item.QuantityExcess += picked - item.QuantityRequested
		picked = item.QuantityRequested
	}
	item.QuantityPicked = picked
	switch {
	case item.QuantityPicked >= item.QuantityRequested:
		item.Status = ItemPicked
	case item.QuantityPicked > 0:
		item.Status = ItemShortPick
	default:
		item.Status = ItemPending
	}
}

// matchPickItem finds the first open line, in route order, the scan refers
// to. The resolved product is tried before the stored codes.
func matchPickItem(items []Item, productID int64, code string) (Item, error) {
	byProduct := func(item Item) bool { return productID > 0 && item.ProductID == productID }
	byCode := func(item Item) bool { return scanning.MatchesProduct(code, item.UPC, item.SKU) }
	for _, match := range []func(Item) bool{byProduct, byCode} {
		matchedPicked := false
		for _, item := range items {
			if !match(item) {
				continue
			}
			if item.Status.Open() {
				return item, nil
			}
			matchedPicked = true
		}
		if matchedPicked {
			return Item{}, fmt.Errorf("%w: %s", ErrItemAlreadyPicked, code)
		}
	}
	return Item{}, fmt.Errorf("%w: %s", ErrItemNotOnList, code)
}

func (s *Service) recordFailure(ctx context.Context, pickListID int64, input ScanInput, kind scanning.CodeKind, actor shared.Actor, cause error) {
	row := scanning.NewScanRow(scanning.ScanEvent{
		Code:        input.Code,
		ScanType:    scanning.TypePicking,
		LocationID:  input.LocationID,
		Quantity:    input.Quantity,
		SessionID:   input.SessionID,
		ReferenceID: pickListID,
		Metadata:    input.Metadata,
	}, actor, kind)
	row.ErrorReason = scanning.FailureReason(cause)
	if err := s.scans.RecordFailure(ctx, row); err != nil {
		s.logger.Error("record failed picking scan", slog.Int64("pick_list_id", pickListID), slog.Any("error", err))
	}
}

func (s *Service) emitCompleted(list PickList, actor shared.Actor) {
	s.events.Emit(notify.Event{
		Kind:        notify.KindWorkflowCompleted,
		ActorID:     actor.ID,
		SubjectType: "pick_list",
		SubjectID:   list.ID,
		Quantity:    list.ItemsPicked,
		State:       string(list.Status),
	})
}

func withItem(metadata map[string]any, itemID int64) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["pick_list_item_id"] = itemID
	return out
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
