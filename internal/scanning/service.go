package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TxRepository is the transactional surface of the scan log. It embeds the
// ledger so counts and workflow scans share one unit of work.
type TxRepository interface {
	ledger.TxRepository
	InsertScan(ctx context.Context, scan Scan) (int64, error)
}

// RepositoryPort abstracts repository usage for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	History(ctx context.Context, filter HistoryFilter) ([]Scan, error)
}

// Ledger is the part of the ledger service the engine relies on.
type Ledger interface {
	GetProductLocation(ctx context.Context, productID, locationID int64) (ledger.ProductLocation, error)
	SuggestReceivingLocation(ctx context.Context, productID int64) (ledger.Location, error)
	ApplyQuantityDeltaTx(ctx context.Context, tx ledger.TxRepository, in ledger.DeltaInput) (ledger.DeltaResult, error)
	Observe(in ledger.DeltaInput, res ledger.DeltaResult, err error)
}

// Idempotency guards dispatched scans against device retries.
type Idempotency interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// Observer is told the outcome of every scan row written.
type Observer func(scanType ScanType, status Status)

// Engine processes scans.
type Engine struct {
	repo        RepositoryPort
	catalog     catalog.Catalog
	ledger      Ledger
	events      notify.Emitter
	idempotency Idempotency
	validate    *validator.Validate
	logger      *slog.Logger
	observe     Observer
	now         func() time.Time

	mu        sync.RWMutex
	workflows map[ScanType]WorkflowHandler
}

// NewEngine builds Engine.
func NewEngine(repo RepositoryPort, products catalog.Catalog, led Ledger, events notify.Emitter, logger *slog.Logger) *Engine {
	if events == nil {
		events = notify.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:      repo,
		catalog:   products,
		ledger:    led,
		events:    events,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		workflows: make(map[ScanType]WorkflowHandler),
	}
}

// SetIdempotencyStore enables request-key deduplication of dispatched scans.
func (e *Engine) SetIdempotencyStore(store Idempotency) {
	e.idempotency = store
}

// SetObserver registers a scan outcome hook.
func (e *Engine) SetObserver(fn Observer) {
	e.observe = fn
}

// RegisterWorkflow routes scans of scanType carrying a reference id to handler.
func (e *Engine) RegisterWorkflow(scanType ScanType, handler WorkflowHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[scanType] = handler
}

func (e *Engine) workflow(scanType ScanType) (WorkflowHandler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.workflows[scanType]
	return h, ok
}

// Normalize validates event and fills defaults. It returns the code kind.
func (e *Engine) Normalize(event *ScanEvent) (CodeKind, error) {
	if !event.ScanType.Valid() {
		return "", shared.Validationf("unknown scan type %q", event.ScanType)
	}
	kind, err := ValidateCode(event.Code)
	if err != nil {
		return "", err
	}
	if event.Quantity == 0 {
		event.Quantity = 1
	}
	if event.Quantity < 0 {
		return "", shared.Validationf("quantity must be positive")
	}
	if event.SessionID == "" {
		event.SessionID = uuid.NewString()
	}
	return kind, nil
}

// ProcessScan handles one scan. Receiving and picking scans that reference a
// document are handed to the registered workflow, which owns the mutation.
func (e *Engine) ProcessScan(ctx context.Context, event ScanEvent, actor shared.Actor) (ScanResult, error) {
	if err := shared.RequireActor(actor); err != nil {
		return ScanResult{}, err
	}
	kind, err := e.Normalize(&event)
	if err != nil {
		return ScanResult{}, err
	}

	product, err := e.Resolve(ctx, kind, event.Code)
	if err != nil {
		e.recordFailure(ctx, e.failureRow(event, actor, kind, ReasonProductNotFound))
		return ScanResult{}, err
	}

	if event.ReferenceID > 0 {
		if handler, ok := e.workflow(event.ScanType); ok {
			event.ProductID = product.ID
			return e.dispatch(ctx, handler, event, actor)
		}
	}

	result := ScanResult{Product: product}
	var current int
	if event.LocationID > 0 {
		row, err := e.ledger.GetProductLocation(ctx, product.ID, event.LocationID)
		switch {
		case err == nil:
			result.Snapshot = &row
			current = row.Quantity
		case errors.Is(err, ledger.ErrRowNotFound):
		default:
			e.recordFailure(ctx, e.failureRow(event, actor, kind, "inventory snapshot unavailable"))
			return ScanResult{}, err
		}
	}
	result.NextAction = e.nextAction(ctx, event.ScanType, product.ID, current)

	scan := e.successRow(event, actor, kind, product)
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recorded, err := e.RecordTx(ctx, tx, scan)
		if err != nil {
			return err
		}
		result.Scan = recorded
		return nil
	})
	if err != nil {
		return ScanResult{}, err
	}
	e.Announce(result.Scan)
	return result, nil
}

func (e *Engine) dispatch(ctx context.Context, handler WorkflowHandler, event ScanEvent, actor shared.Actor) (ScanResult, error) {
	scope := "scan:" + string(event.ScanType) + ":" + strconv.FormatInt(event.ReferenceID, 10)
	claimed := false
	if e.idempotency != nil && event.IdempotencyKey != "" {
		if err := e.idempotency.Claim(ctx, scope, event.IdempotencyKey); err != nil {
			return ScanResult{}, err
		}
		claimed = true
	}
	res, err := handler.HandleScan(ctx, event, actor)
	if err != nil {
		if claimed {
			if relErr := e.idempotency.Release(ctx, scope, event.IdempotencyKey); relErr != nil {
				e.logger.Warn("release idempotency key", slog.String("scope", scope), slog.Any("error", relErr))
			}
		}
		return ScanResult{}, err
	}
	action := ActionConfirmReceive
	if event.ScanType == TypePicking {
		action = ActionConfirmPick
	}
	return ScanResult{
		Scan:       res.Scan,
		NextAction: NextAction{Action: action},
		Workflow:   &res,
	}, nil
}

// Resolve finds the product a code identifies: by UPC first, then by SKU.
// Catalog failures count as not found.
func (e *Engine) Resolve(ctx context.Context, kind CodeKind, code string) (catalog.Product, error) {
	if kind.IsUPC() {
		p, err := e.catalog.FindByUPC(ctx, code)
		if err == nil {
			return p, nil
		}
		e.logLookup(code, err)
	}
	p, err := e.catalog.FindBySKU(ctx, code)
	if err == nil {
		return p, nil
	}
	e.logLookup(code, err)
	return catalog.Product{}, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, code)
}

func (e *Engine) logLookup(code string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		return
	}
	e.logger.Warn("catalog lookup failed", slog.String("code", code), slog.Any("error", err))
}

func (e *Engine) nextAction(ctx context.Context, scanType ScanType, productID int64, current int) NextAction {
	switch scanType {
	case TypeReceiving:
		next := NextAction{Action: ActionConfirmReceive}
		loc, err := e.ledger.SuggestReceivingLocation(ctx, productID)
		if err == nil {
			next.SuggestedLocation = &loc
		} else if !errors.Is(err, shared.ErrNotFound) {
			e.logger.Warn("suggest receiving location", slog.Int64("product_id", productID), slog.Any("error", err))
		}
		return next
	case TypePicking:
		return NextAction{Action: ActionConfirmPick}
	case TypeShipping:
		return NextAction{Action: ActionConfirmShip}
	case TypeCycleCount:
		return NextAction{Action: ActionEnterCount, ExpectedQuantity: &current}
	default:
		return NextAction{Action: ActionEnterNewQuantity, CurrentQuantity: &current}
	}
}

// RecordTx appends a scan row inside tx. Callers Announce it after commit.
func (e *Engine) RecordTx(ctx context.Context, tx TxRepository, scan Scan) (Scan, error) {
	if scan.ScannedAt.IsZero() {
		scan.ScannedAt = e.now()
	}
	if scan.SessionID == "" {
		scan.SessionID = uuid.NewString()
	}
	if scan.Status == "" {
		scan.Status = StatusSuccess
	}
	id, err := tx.InsertScan(ctx, scan)
	if err != nil {
		return Scan{}, err
	}
	scan.ID = id
	return scan, nil
}

// RecordFailure appends an error row in its own transaction. Workflows call
// it after their unit of work rolled back so the attempt still leaves a trace.
func (e *Engine) RecordFailure(ctx context.Context, scan Scan) error {
	scan.Status = StatusError
	if scan.ErrorReason == "" {
		scan.ErrorReason = "scan rejected"
	}
	var recorded Scan
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		recorded, err = e.RecordTx(ctx, tx, scan)
		return err
	})
	if err != nil {
		return err
	}
	e.Announce(recorded)
	return nil
}

// NewScanRow prepares a scan row for event. The code lands in UPC or SKU
// depending on its shape.
func NewScanRow(event ScanEvent, actor shared.Actor, kind CodeKind) Scan {
	scan := Scan{
		ScanType:    event.ScanType,
		ActorID:     actor.ID,
		LocationID:  event.LocationID,
		Quantity:    event.Quantity,
		SessionID:   event.SessionID,
		ReferenceID: event.ReferenceID,
		Metadata:    event.Metadata,
	}
	if kind.IsUPC() {
		scan.UPC = event.Code
	} else {
		scan.SKU = event.Code
	}
	return scan
}

func (e *Engine) recordFailure(ctx context.Context, row Scan) {
	if err := e.RecordFailure(ctx, row); err != nil {
		e.logger.Error("record failed scan",
			slog.String("scan_type", string(row.ScanType)),
			slog.String("reason", row.ErrorReason),
			slog.Any("error", err))
	}
}

func (e *Engine) failureRow(event ScanEvent, actor shared.Actor, kind CodeKind, reason string) Scan {
	scan := NewScanRow(event, actor, kind)
	scan.Status = StatusError
	scan.ErrorReason = reason
	return scan
}

func (e *Engine) successRow(event ScanEvent, actor shared.Actor, kind CodeKind, product catalog.Product) Scan {
	scan := NewScanRow(event, actor, kind)
	scan.Status = StatusSuccess
	scan.ProductID = product.ID
	scan.UPC = product.UPC
	scan.SKU = product.SKU
	return scan
}

// ConfirmCount stores a counted quantity at a location, adjusting the ledger
// by the difference from the locked row.
func (e *Engine) ConfirmCount(ctx context.Context, input CountInput, actor shared.Actor) (CountResult, error) {
	if err := shared.RequireActor(actor); err != nil {
		return CountResult{}, err
	}
	if err := e.validate.Struct(input); err != nil {
		return CountResult{}, shared.Validationf("%v", err)
	}
	product, err := e.catalog.Get(ctx, input.ProductID)
	if err != nil {
		return CountResult{}, fmt.Errorf("%w: %d", catalog.ErrProductNotFound, input.ProductID)
	}

	var (
		result   CountResult
		deltaIn  *ledger.DeltaInput
		deltaRes ledger.DeltaResult
	)
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deltaIn = nil
		row, _, err := tx.LockProductLocation(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}
		result = CountResult{Previous: row.Quantity, Counted: input.Counted}
		if delta := input.Counted - row.Quantity; delta != 0 {
			deltaIn = &ledger.DeltaInput{
				ProductID:  input.ProductID,
				LocationID: input.LocationID,
				Delta:      delta,
				Actor:      actor,
				Reason:     string(input.ScanType),
				RefModule:  "scanning",
			}
			if deltaRes, err = e.ledger.ApplyQuantityDeltaTx(ctx, tx, *deltaIn); err != nil {
				return err
			}
			result.Adjusted = true
		}
		scan, err := e.RecordTx(ctx, tx, Scan{
			ScanType:   input.ScanType,
			ActorID:    actor.ID,
			ProductID:  product.ID,
			UPC:        product.UPC,
			SKU:        product.SKU,
			LocationID: input.LocationID,
			Quantity:   input.Counted,
			Status:     StatusSuccess,
			SessionID:  input.SessionID,
			Metadata:   map[string]any{"previous_quantity": row.Quantity},
		})
		if err != nil {
			return err
		}
		result.Scan = scan
		return nil
	})
	if deltaIn != nil {
		e.ledger.Observe(*deltaIn, deltaRes, err)
	}
	if err != nil {
		return CountResult{}, err
	}
	e.Announce(result.Scan)
	if result.Adjusted {
		e.events.Emit(notify.Event{
			Kind:        notify.KindInventoryChanged,
			ActorID:     actor.ID,
			SubjectType: "product_location",
			ProductID:   input.ProductID,
			LocationID:  input.LocationID,
			Quantity:    input.Counted,
			State:       string(input.ScanType),
		})
	}
	return result, nil
}

// History lists scan rows, newest first.
func (e *Engine) History(ctx context.Context, filter HistoryFilter) ([]Scan, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return e.repo.History(ctx, filter)
}

// Announce reports a committed scan row to the observer and the event sink.
func (e *Engine) Announce(scan Scan) {
	if e.observe != nil {
		e.observe(scan.ScanType, scan.Status)
	}
	e.events.Emit(notify.Event{
		Kind:        notify.KindScanOccurred,
		ActorID:     scan.ActorID,
		SubjectType: string(scan.ScanType),
		SubjectID:   scan.ReferenceID,
		ProductID:   scan.ProductID,
		LocationID:  scan.LocationID,
		Quantity:    scan.Quantity,
		State:       string(scan.Status),
		OccurredAt:  scan.ScannedAt,
	})
}
