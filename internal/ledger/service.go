package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Reader exposes committed-state projections of the ledger.
type Reader interface {
	GetLocation(ctx context.Context, id int64) (Location, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error)
	LocationsForProduct(ctx context.Context, productID int64) ([]ProductLocationView, error)
	InventoryAtLocation(ctx context.Context, locationID int64) ([]ProductLocationView, error)
	InventorySummary(ctx context.Context, filter SummaryFilter) ([]ProductSummary, error)
	GetProductLocation(ctx context.Context, productID, locationID int64) (ProductLocation, error)
	ReceivingLocations(ctx context.Context) ([]Location, error)
}

// TxRepository exposes the transactional operations of the ledger. Workflow
// repositories embed it so a delta joins their unit of work.
type TxRepository interface {
	shared.AuditWriter
	GetLocation(ctx context.Context, id int64) (Location, error)
	LockLocation(ctx context.Context, id int64) (Location, error)
	LockProductLocation(ctx context.Context, productID, locationID int64) (ProductLocation, bool, error)
	SetProductLocationQuantity(ctx context.Context, productID, locationID int64, qty int, at time.Time) error
	AdjustLocationCapacity(ctx context.Context, locationID int64, delta int) error
	InsertLocation(ctx context.Context, loc Location) (int64, error)
	UpdateLocation(ctx context.Context, loc Location) error
	SetPrimary(ctx context.Context, productID, locationID int64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// DeltaObserver is told the outcome of every delta once its transaction has
// ended. Used for metrics.
type DeltaObserver func(in DeltaInput, res DeltaResult, err error)

// Service coordinates ledger operations.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	logger   *slog.Logger
	observe  DeltaObserver
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver registers the delta outcome hook.
func (s *Service) SetObserver(fn DeltaObserver) {
	s.observe = fn
}

// Observe reports a delta applied through ApplyQuantityDeltaTx. Callers pass
// the error their unit of work ended with, so a delta rolled back by a later
// step counts as failed.
func (s *Service) Observe(in DeltaInput, res DeltaResult, err error) {
	if s.observe != nil {
		s.observe(in, res, err)
	}
	if errors.Is(err, ErrNegativeQuantity) {
		s.logger.Info("ledger delta rejected",
			slog.Int64("product_id", in.ProductID),
			slog.Int64("location_id", in.LocationID),
			slog.Int("delta", in.Delta),
			slog.String("ref_module", in.RefModule))
	}
}

// ApplyQuantityDelta adds in.Delta to the (product, location) row in its own
// transaction.
func (s *Service) ApplyQuantityDelta(ctx context.Context, in DeltaInput) (DeltaResult, error) {
	var result DeltaResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.ApplyQuantityDeltaTx(ctx, tx, in)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	s.Observe(in, result, err)
	if err != nil {
		return DeltaResult{}, err
	}
	return result, nil
}

// ApplyQuantityDeltaTx is the transactional core of ApplyQuantityDelta. The
// ledger row is locked for the rest of tx; callers holding a workflow document
// lock must take it before calling in. Callers report the outcome through
// Observe once tx has ended.
func (s *Service) ApplyQuantityDeltaTx(ctx context.Context, tx TxRepository, in DeltaInput) (DeltaResult, error) {
	if err := shared.RequireActor(in.Actor); err != nil {
		return DeltaResult{}, err
	}
	if in.ProductID <= 0 || in.LocationID <= 0 {
		return DeltaResult{}, shared.Validationf("product and location required")
	}
	if in.Delta == 0 {
		return DeltaResult{}, ErrZeroDelta
	}

	loc, err := tx.GetLocation(ctx, in.LocationID)
	if err != nil {
		return DeltaResult{}, err
	}
	if in.Delta > 0 && !loc.Active {
		return DeltaResult{}, ErrInactiveLocation
	}

	row, _, err := tx.LockProductLocation(ctx, in.ProductID, in.LocationID)
	if err != nil {
		return DeltaResult{}, err
	}
	next := row.Quantity + in.Delta
	if next < 0 {
		return DeltaResult{}, fmt.Errorf("%w: product %d at %s has %d, delta %d", ErrNegativeQuantity, in.ProductID, loc.Code, row.Quantity, in.Delta)
	}

	now := s.now()
	if err := tx.SetProductLocationQuantity(ctx, in.ProductID, in.LocationID, next, now); err != nil {
		return DeltaResult{}, err
	}
	if err := tx.AdjustLocationCapacity(ctx, in.LocationID, in.Delta); err != nil {
		return DeltaResult{}, err
	}

	after := map[string]any{"quantity": next, "delta": in.Delta}
	if in.Reason != "" {
		after["reason"] = in.Reason
	}
	if in.RefModule != "" {
		after["ref_module"] = in.RefModule
		after["ref_id"] = in.RefID
	}
	if err := tx.InsertAuditLog(ctx, shared.AuditLog{
		ActorID:      in.Actor.ID,
		Action:       ActionDelta,
		ResourceType: "product_location",
		ResourceID:   rowKey(in.ProductID, in.LocationID),
		Before:       map[string]any{"quantity": row.Quantity},
		After:        after,
		At:           now,
	}); err != nil {
		return DeltaResult{}, err
	}

	return DeltaResult{
		ProductID:   in.ProductID,
		LocationID:  in.LocationID,
		Previous:    row.Quantity,
		NewQuantity: next,
	}, nil
}

// GetLocationsForProduct lists every location holding a ledger row for the
// product, primary first.
func (s *Service) GetLocationsForProduct(ctx context.Context, productID int64) ([]ProductLocationView, error) {
	if productID <= 0 {
		return nil, shared.Validationf("product required")
	}
	return s.repo.LocationsForProduct(ctx, productID)
}

// GetInventoryAtLocation lists ledger rows stored at a location.
func (s *Service) GetInventoryAtLocation(ctx context.Context, locationID int64) ([]ProductLocationView, error) {
	if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.repo.InventoryAtLocation(ctx, locationID)
}

// GetInventorySummary aggregates on-hand totals per product.
func (s *Service) GetInventorySummary(ctx context.Context, filter SummaryFilter) ([]ProductSummary, error) {
	if filter.LocationType != "" && !filter.LocationType.Valid() {
		return nil, shared.Validationf("unknown location type %q", filter.LocationType)
	}
	return s.repo.InventorySummary(ctx, filter)
}

// GetProductLocation returns one ledger row.
func (s *Service) GetProductLocation(ctx context.Context, productID, locationID int64) (ProductLocation, error) {
	return s.repo.GetProductLocation(ctx, productID, locationID)
}

// GetLocation loads a location.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

// ListLocations lists locations ordered by code.
func (s *Service) ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error) {
	return s.repo.ListLocations(ctx, filter)
}

// SuggestReceivingLocation picks where inbound stock of the product should go.
func (s *Service) SuggestReceivingLocation(ctx context.Context, productID int64) (Location, error) {
	rows, err := s.repo.LocationsForProduct(ctx, productID)
	if err != nil {
		return Location{}, err
	}
	candidates, err := s.repo.ReceivingLocations(ctx)
	if err != nil {
		return Location{}, err
	}
	loc, ok := chooseReceivingLocation(rows, candidates)
	if !ok {
		return Location{}, ErrNoLocation
	}
	return loc, nil
}

// FindPrimaryLocation resolves where a product should be picked from.
func (s *Service) FindPrimaryLocation(ctx context.Context, productID int64) (Location, error) {
	rows, err := s.repo.LocationsForProduct(ctx, productID)
	if err != nil {
		return Location{}, err
	}
	loc, ok := choosePickLocation(rows)
	if !ok {
		return Location{}, ErrNoLocation
	}
	return loc, nil
}

// CreateLocation registers a new bin.
func (s *Service) CreateLocation(ctx context.Context, input CreateLocationInput, actor shared.Actor) (Location, error) {
	if err := shared.RequireActor(actor); err != nil {
		return Location{}, err
	}
	input.Code = strings.TrimSpace(input.Code)
	if err := s.validate.Struct(input); err != nil {
		return Location{}, shared.Validationf("%v", err)
	}
	now := s.now()
	loc := Location{
		Code:      input.Code,
		Aisle:     input.Aisle,
		Shelf:     input.Shelf,
		Position:  input.Position,
		Zone:      input.Zone,
		Type:      input.Type,
		Capacity:  input.Capacity,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLocation(ctx, loc)
		if err != nil {
			return err
		}
		loc.ID = id
		return tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionLocationCreate,
			ResourceType: "warehouse_location",
			ResourceID:   strconv.FormatInt(id, 10),
			After:        locationSnapshot(loc),
			At:           now,
		})
	})
	if err != nil {
		return Location{}, err
	}
	return loc, nil
}

// UpdateLocation applies whitelisted field changes. Keys outside aisle,
// shelf, position, zone, type, capacity and active are ignored.
func (s *Service) UpdateLocation(ctx context.Context, id int64, changes map[string]any, actor shared.Actor) (Location, error) {
	if err := shared.RequireActor(actor); err != nil {
		return Location{}, err
	}
	var updated Location
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockLocation(ctx, id)
		if err != nil {
			return err
		}
		next, changed, err := applyLocationChanges(current, changes)
		if err != nil {
			return err
		}
		updated = current
		if !changed {
			return nil
		}
		next.UpdatedAt = s.now()
		if err := tx.UpdateLocation(ctx, next); err != nil {
			return err
		}
		updated = next
		return tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionLocationUpdate,
			ResourceType: "warehouse_location",
			ResourceID:   strconv.FormatInt(id, 10),
			Before:       locationSnapshot(current),
			After:        locationSnapshot(next),
			At:           next.UpdatedAt,
		})
	})
	if err != nil {
		return Location{}, err
	}
	return updated, nil
}

// SetPrimaryLocation flags the product's row at locationID as primary and
// clears the flag on its other rows.
func (s *Service) SetPrimaryLocation(ctx context.Context, productID, locationID int64, actor shared.Actor) error {
	if err := shared.RequireActor(actor); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLocation(ctx, locationID); err != nil {
			return err
		}
		if err := tx.SetPrimary(ctx, productID, locationID); err != nil {
			return err
		}
		return tx.InsertAuditLog(ctx, shared.AuditLog{
			ActorID:      actor.ID,
			Action:       ActionPrimarySet,
			ResourceType: "product_location",
			ResourceID:   rowKey(productID, locationID),
			After:        map[string]any{"is_primary": true},
			At:           s.now(),
		})
	})
}

func chooseReceivingLocation(rows []ProductLocationView, candidates []Location) (Location, bool) {
	for _, row := range rows {
		if row.IsPrimary && row.Location.Active && row.Location.FreeCapacity() > 0 {
			return row.Location, true
		}
	}
	var (
		best  Location
		found bool
	)
	for _, loc := range candidates {
		if !loc.Active || loc.Type != LocationReceiving {
			continue
		}
		if !found || loc.FreeCapacity() > best.FreeCapacity() ||
			(loc.FreeCapacity() == best.FreeCapacity() && loc.Code < best.Code) {
			best = loc
			found = true
		}
	}
	return best, found
}

func choosePickLocation(rows []ProductLocationView) (Location, bool) {
	stocked := make([]ProductLocationView, 0, len(rows))
	for _, row := range rows {
		if row.Quantity > 0 {
			stocked = append(stocked, row)
		}
	}
	if len(stocked) == 0 {
		return Location{}, false
	}
	sort.SliceStable(stocked, func(i, j int) bool {
		if stocked[i].IsPrimary != stocked[j].IsPrimary {
			return stocked[i].IsPrimary
		}
		if stocked[i].Quantity != stocked[j].Quantity {
			return stocked[i].Quantity > stocked[j].Quantity
		}
		return stocked[i].Location.Code < stocked[j].Location.Code
	})
	return stocked[0].Location, true
}

func applyLocationChanges(loc Location, changes map[string]any) (Location, bool, error) {
	next := loc
	for key, raw := range changes {
		switch key {
		case "aisle", "shelf", "position", "zone":
			value, ok := raw.(string)
			if !ok {
				return loc, false, shared.Validationf("%s must be a string", key)
			}
			switch key {
			case "aisle":
				next.Aisle = value
			case "shelf":
				next.Shelf = value
			case "position":
				next.Position = value
			case "zone":
				next.Zone = value
			}
		case "type":
			value, ok := raw.(string)
			if !ok || !LocationType(value).Valid() {
				return loc, false, shared.Validationf("unknown location type %v", raw)
			}
			next.Type = LocationType(value)
		case "capacity":
			value, err := asInt(raw)
			if err != nil || value < 0 {
				return loc, false, shared.Validationf("capacity must be a non-negative integer")
			}
			next.Capacity = value
		case "active":
			value, ok := raw.(bool)
			if !ok {
				return loc, false, shared.Validationf("active must be a boolean")
			}
			next.Active = value
		}
	}
	return next, next != loc, nil
}

func asInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, errors.New("not an integer")
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

func locationSnapshot(l Location) map[string]any {
	return map[string]any{
		"code":     l.Code,
		"aisle":    l.Aisle,
		"shelf":    l.Shelf,
		"position": l.Position,
		"zone":     l.Zone,
		"type":     string(l.Type),
		"capacity": l.Capacity,
		"active":   l.Active,
	}
}

func rowKey(productID, locationID int64) string {
	return strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(locationID, 10)
}
