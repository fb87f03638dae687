// Package memstore is an in-memory stand-in for the PostgreSQL repositories,
// used by service tests. Transactions are serialised by one mutex and rolled
// back by restoring a snapshot, which gives the same observable behaviour as
// row locks for the single-process tests that use it.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/picking"
	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type rowKey struct {
	product  int64
	location int64
}

type state struct {
	seq       int64
	locations map[int64]ledger.Location
	rows      map[rowKey]ledger.ProductLocation
	audits    []shared.AuditLog
	scans     []scanning.Scan
	shipments map[int64]receiving.Shipment
	shipItems map[int64]receiving.Item
	pickLists map[int64]picking.PickList
	pickItems map[int64]picking.Item
}

func newState() *state {
	return &state{
		locations: make(map[int64]ledger.Location),
		rows:      make(map[rowKey]ledger.ProductLocation),
		shipments: make(map[int64]receiving.Shipment),
		shipItems: make(map[int64]receiving.Item),
		pickLists: make(map[int64]picking.PickList),
		pickItems: make(map[int64]picking.Item),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.locations {
		c.locations[k] = v
	}
	for k, v := range s.rows {
		c.rows[k] = v
	}
	c.audits = append([]shared.AuditLog(nil), s.audits...)
	c.scans = append([]scanning.Scan(nil), s.scans...)
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	for k, v := range s.shipItems {
		c.shipItems[k] = v
	}
	for k, v := range s.pickLists {
		v.RouteSummary.Zones = append([]string(nil), v.RouteSummary.Zones...)
		c.pickLists[k] = v
	}
	for k, v := range s.pickItems {
		c.pickItems[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store holds all in-memory tables.
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
	now    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state:  newState(),
		faults: make(map[string]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the named transactional method return err until cleared with
// a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// RunTx runs fn as one serialised unit; any error restores the prior state.
func (s *Store) RunTx(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	tx := &Tx{store: s, st: s.state}
	if err := fn(tx); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Ledger adapts the store to ledger.RepositoryPort.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s} }

// Scans adapts the store to scanning.RepositoryPort.
func (s *Store) Scans() *ScanRepo { return &ScanRepo{s} }

// Receiving adapts the store to receiving.RepositoryPort.
func (s *Store) Receiving() *ReceivingRepo { return &ReceivingRepo{s} }

// Picking adapts the store to picking.RepositoryPort.
func (s *Store) Picking() *PickingRepo { return &PickingRepo{s} }

// LedgerRepo implements ledger.RepositoryPort.
type LedgerRepo struct{ *Store }

// WithTx implements ledger.RepositoryPort.
func (r *LedgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return r.RunTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

// ScanRepo implements scanning.RepositoryPort.
type ScanRepo struct{ *Store }

// WithTx implements scanning.RepositoryPort.
func (r *ScanRepo) WithTx(ctx context.Context, fn func(context.Context, scanning.TxRepository) error) error {
	return r.RunTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

// ReceivingRepo implements receiving.RepositoryPort.
type ReceivingRepo struct{ *Store }

// WithTx implements receiving.RepositoryPort.
func (r *ReceivingRepo) WithTx(ctx context.Context, fn func(context.Context, receiving.TxRepository) error) error {
	return r.RunTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

// PickingRepo implements picking.RepositoryPort.
type PickingRepo struct{ *Store }

// WithTx implements picking.RepositoryPort.
func (r *PickingRepo) WithTx(ctx context.Context, fn func(context.Context, picking.TxRepository) error) error {
	return r.RunTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

// ============================================================================
// SEEDING AND INSPECTION
// ============================================================================

// AddLocation inserts a location, defaulting to an active standard bin.
func (s *Store) AddLocation(loc ledger.Location) ledger.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc.ID = s.state.nextID()
	if loc.Type == "" {
		loc.Type = ledger.LocationStandard
	}
	loc.CreatedAt, loc.UpdatedAt = s.now(), s.now()
	s.state.locations[loc.ID] = loc
	return loc
}

// SetStock writes a ledger row directly and adds it to the location's
// occupied capacity.
func (s *Store) SetStock(productID, locationID int64, qty int, primary bool) {
	s.SetStockAt(productID, locationID, qty, primary, s.now())
}

// SetStockAt is SetStock with an explicit last-updated time.
func (s *Store) SetStockAt(productID, locationID int64, qty int, primary bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rowKey{productID, locationID}
	prev := s.state.rows[key].Quantity
	s.state.rows[key] = ledger.ProductLocation{ProductID: productID, LocationID: locationID, Quantity: qty, IsPrimary: primary, LastUpdated: at}
	if loc, ok := s.state.locations[locationID]; ok {
		loc.CurrentCapacity += qty - prev
		s.state.locations[locationID] = loc
	}
}

// Quantity returns the ledger quantity, zero when the row does not exist.
func (s *Store) Quantity(productID, locationID int64) int {
	var qty int
	s.read(func(st *state) { qty = st.rows[rowKey{productID, locationID}].Quantity })
	return qty
}

// HasRow reports whether a ledger row exists.
func (s *Store) HasRow(productID, locationID int64) bool {
	var ok bool
	s.read(func(st *state) { _, ok = st.rows[rowKey{productID, locationID}] })
	return ok
}

// AuditLogs returns a copy of the audit trail.
func (s *Store) AuditLogs() []shared.AuditLog {
	var out []shared.AuditLog
	s.read(func(st *state) { out = append(out, st.audits...) })
	return out
}

// ScanLog returns a copy of the scan log in insertion order.
func (s *Store) ScanLog() []scanning.Scan {
	var out []scanning.Scan
	s.read(func(st *state) { out = append(out, st.scans...) })
	return out
}

// ============================================================================
// READERS
// ============================================================================

// GetLocation implements ledger.Reader.
func (s *Store) GetLocation(ctx context.Context, id int64) (ledger.Location, error) {
	var (
		loc ledger.Location
		ok  bool
	)
	s.read(func(st *state) { loc, ok = st.locations[id] })
	if !ok {
		return ledger.Location{}, ledger.ErrLocationNotFound
	}
	return loc, nil
}

// ListLocations implements ledger.Reader.
func (s *Store) ListLocations(ctx context.Context, filter ledger.LocationFilter) ([]ledger.Location, error) {
	out := []ledger.Location{}
	s.read(func(st *state) {
		for _, loc := range st.locations {
			if filter.Zone != "" && loc.Zone != filter.Zone {
				continue
			}
			if filter.Type != "" && loc.Type != filter.Type {
				continue
			}
			if filter.ActiveOnly && !loc.Active {
				continue
			}
			out = append(out, loc)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ReceivingLocations implements ledger.Reader.
func (s *Store) ReceivingLocations(ctx context.Context) ([]ledger.Location, error) {
	return s.ListLocations(ctx, ledger.LocationFilter{Type: ledger.LocationReceiving, ActiveOnly: true})
}

func (s *Store) views(match func(ledger.ProductLocation) bool) []ledger.ProductLocationView {
	out := []ledger.ProductLocationView{}
	s.read(func(st *state) {
		for _, row := range st.rows {
			if !match(row) {
				continue
			}
			out = append(out, ledger.ProductLocationView{ProductLocation: row, Location: st.locations[row.LocationID]})
		}
	})
	return out
}

// LocationsForProduct implements ledger.Reader.
func (s *Store) LocationsForProduct(ctx context.Context, productID int64) ([]ledger.ProductLocationView, error) {
	out := s.views(func(row ledger.ProductLocation) bool { return row.ProductID == productID })
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].Location.Code < out[j].Location.Code
	})
	return out, nil
}

// InventoryAtLocation implements ledger.Reader.
func (s *Store) InventoryAtLocation(ctx context.Context, locationID int64) ([]ledger.ProductLocationView, error) {
	out := s.views(func(row ledger.ProductLocation) bool { return row.LocationID == locationID })
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// GetProductLocation implements ledger.Reader.
func (s *Store) GetProductLocation(ctx context.Context, productID, locationID int64) (ledger.ProductLocation, error) {
	var (
		row   ledger.ProductLocation
		ok    bool
		fault error
	)
	s.read(func(st *state) {
		fault = s.faults["GetProductLocation"]
		row, ok = st.rows[rowKey{productID, locationID}]
	})
	if fault != nil {
		return ledger.ProductLocation{}, fault
	}
	if !ok {
		return ledger.ProductLocation{}, ledger.ErrRowNotFound
	}
	return row, nil
}

// InventorySummary implements ledger.Reader.
func (s *Store) InventorySummary(ctx context.Context, filter ledger.SummaryFilter) ([]ledger.ProductSummary, error) {
	totals := make(map[int64]*ledger.ProductSummary)
	s.read(func(st *state) {
		for _, row := range st.rows {
			loc := st.locations[row.LocationID]
			if filter.Zone != "" && loc.Zone != filter.Zone {
				continue
			}
			if filter.LocationType != "" && loc.Type != filter.LocationType {
				continue
			}
			if filter.ProductID > 0 && row.ProductID != filter.ProductID {
				continue
			}
			sum, ok := totals[row.ProductID]
			if !ok {
				sum = &ledger.ProductSummary{ProductID: row.ProductID}
				totals[row.ProductID] = sum
			}
			sum.TotalQuantity += row.Quantity
			sum.LocationCount++
			if row.LastUpdated.After(sum.LastUpdated) {
				sum.LastUpdated = row.LastUpdated
			}
		}
	})
	out := []ledger.ProductSummary{}
	for _, sum := range totals {
		if filter.OnlyInStock && sum.TotalQuantity <= 0 {
			continue
		}
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// History implements scanning.RepositoryPort.
func (s *Store) History(ctx context.Context, filter scanning.HistoryFilter) ([]scanning.Scan, error) {
	out := []scanning.Scan{}
	s.read(func(st *state) {
		for i := len(st.scans) - 1; i >= 0; i-- {
			scan := st.scans[i]
			if filter.SessionID != "" && scan.SessionID != filter.SessionID {
				continue
			}
			if filter.ActorID > 0 && scan.ActorID != filter.ActorID {
				continue
			}
			if filter.ScanType != "" && scan.ScanType != filter.ScanType {
				continue
			}
			if filter.Status != "" && scan.Status != filter.Status {
				continue
			}
			if !filter.From.IsZero() && scan.ScannedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !scan.ScannedAt.Before(filter.To) {
				continue
			}
			out = append(out, scan)
			if filter.Limit > 0 && len(out) == filter.Limit {
				return
			}
		}
	})
	return out, nil
}

// GetShipment implements receiving.RepositoryPort.
func (s *Store) GetShipment(ctx context.Context, id int64) (receiving.Shipment, error) {
	var (
		shipment receiving.Shipment
		ok       bool
	)
	s.read(func(st *state) { shipment, ok = st.shipments[id] })
	if !ok {
		return receiving.Shipment{}, receiving.ErrShipmentNotFound
	}
	return shipment, nil
}

// ShipmentItems implements receiving.RepositoryPort.
func (s *Store) ShipmentItems(ctx context.Context, shipmentID int64) ([]receiving.Item, error) {
	var items []receiving.Item
	s.read(func(st *state) { items = shipmentItems(st, shipmentID) })
	return items, nil
}

// ListShipments implements receiving.RepositoryPort.
func (s *Store) ListShipments(ctx context.Context, filter receiving.ListFilter) ([]receiving.Shipment, error) {
	out := []receiving.Shipment{}
	s.read(func(st *state) {
		for _, sh := range st.shipments {
			if filter.Status != "" && sh.Status != filter.Status {
				continue
			}
			if filter.SupplierID > 0 && sh.SupplierID != filter.SupplierID {
				continue
			}
			out = append(out, sh)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Offset, filter.Limit), nil
}

// GetPickList implements picking.RepositoryPort.
func (s *Store) GetPickList(ctx context.Context, id int64) (picking.PickList, error) {
	var (
		list picking.PickList
		ok   bool
	)
	s.read(func(st *state) { list, ok = st.pickLists[id] })
	if !ok {
		return picking.PickList{}, picking.ErrPickListNotFound
	}
	return list, nil
}

// PickItems implements picking.RepositoryPort.
func (s *Store) PickItems(ctx context.Context, pickListID int64) ([]picking.Item, error) {
	var items []picking.Item
	s.read(func(st *state) { items = pickItems(st, pickListID) })
	return items, nil
}

// ListPickLists implements picking.RepositoryPort.
func (s *Store) ListPickLists(ctx context.Context, filter picking.ListFilter) ([]picking.PickList, error) {
	out := []picking.PickList{}
	s.read(func(st *state) {
		for _, list := range st.pickLists {
			if filter.Status != "" && list.Status != filter.Status {
				continue
			}
			if filter.AssigneeID > 0 && list.AssigneeID != filter.AssigneeID {
				continue
			}
			if filter.Zone != "" && list.Zone != filter.Zone {
				continue
			}
			out = append(out, list)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Offset, filter.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func shipmentItems(st *state, shipmentID int64) []receiving.Item {
	items := []receiving.Item{}
	for _, item := range st.shipItems {
		if item.ShipmentID == shipmentID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func pickItems(st *state, pickListID int64) []picking.Item {
	items := []picking.Item{}
	for _, item := range st.pickItems {
		if item.PickListID == pickListID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SequenceNumber != items[j].SequenceNumber {
			return items[i].SequenceNumber < items[j].SequenceNumber
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func errNotFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
}
