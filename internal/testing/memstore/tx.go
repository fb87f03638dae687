package memstore

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/picking"
	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Tx implements the transactional repositories of every workflow package.
type Tx struct {
	store *Store
	st    *state
}

var (
	_ ledger.TxRepository    = (*Tx)(nil)
	_ scanning.TxRepository  = (*Tx)(nil)
	_ receiving.TxRepository = (*Tx)(nil)
	_ picking.TxRepository   = (*Tx)(nil)
)

func (t *Tx) fault(method string) error {
	return t.store.faults[method]
}

// InsertAuditLog implements shared.AuditWriter.
func (t *Tx) InsertAuditLog(ctx context.Context, log shared.AuditLog) error {
	if err := t.fault("InsertAuditLog"); err != nil {
		return err
	}
	if err := log.Validate(); err != nil {
		return err
	}
	log.ID = t.st.nextID()
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	t.st.audits = append(t.st.audits, log)
	return nil
}

// ============================================================================
// LEDGER
// ============================================================================

func (t *Tx) GetLocation(ctx context.Context, id int64) (ledger.Location, error) {
	loc, ok := t.st.locations[id]
	if !ok {
		return ledger.Location{}, ledger.ErrLocationNotFound
	}
	return loc, nil
}

func (t *Tx) LockLocation(ctx context.Context, id int64) (ledger.Location, error) {
	return t.GetLocation(ctx, id)
}

func (t *Tx) LockProductLocation(ctx context.Context, productID, locationID int64) (ledger.ProductLocation, bool, error) {
	if err := t.fault("LockProductLocation"); err != nil {
		return ledger.ProductLocation{}, false, err
	}
	key := rowKey{productID, locationID}
	if row, ok := t.st.rows[key]; ok {
		return row, false, nil
	}
	primary := true
	for k := range t.st.rows {
		if k.product == productID {
			primary = false
			break
		}
	}
	row := ledger.ProductLocation{ProductID: productID, LocationID: locationID, IsPrimary: primary, LastUpdated: time.Now().UTC()}
	t.st.rows[key] = row
	return row, true, nil
}

func (t *Tx) SetProductLocationQuantity(ctx context.Context, productID, locationID int64, qty int, at time.Time) error {
	if err := t.fault("SetProductLocationQuantity"); err != nil {
		return err
	}
	key := rowKey{productID, locationID}
	row := t.st.rows[key]
	row.Quantity = qty
	row.LastUpdated = at
	t.st.rows[key] = row
	return nil
}

func (t *Tx) AdjustLocationCapacity(ctx context.Context, locationID int64, delta int) error {
	loc, ok := t.st.locations[locationID]
	if !ok {
		return ledger.ErrLocationNotFound
	}
	loc.CurrentCapacity += delta
	if loc.CurrentCapacity < 0 {
		loc.CurrentCapacity = 0
	}
	t.st.locations[locationID] = loc
	return nil
}

func (t *Tx) InsertLocation(ctx context.Context, loc ledger.Location) (int64, error) {
	for _, existing := range t.st.locations {
		if existing.Code == loc.Code {
			return 0, shared.Validationf("location code %s already exists", loc.Code)
		}
	}
	loc.ID = t.st.nextID()
	t.st.locations[loc.ID] = loc
	return loc.ID, nil
}

func (t *Tx) UpdateLocation(ctx context.Context, loc ledger.Location) error {
	if _, ok := t.st.locations[loc.ID]; !ok {
		return ledger.ErrLocationNotFound
	}
	t.st.locations[loc.ID] = loc
	return nil
}

func (t *Tx) SetPrimary(ctx context.Context, productID, locationID int64) error {
	if _, ok := t.st.rows[rowKey{productID, locationID}]; !ok {
		return ledger.ErrRowNotFound
	}
	for key, row := range t.st.rows {
		if key.product != productID {
			continue
		}
		row.IsPrimary = key.location == locationID
		t.st.rows[key] = row
	}
	return nil
}

// ============================================================================
// SCANS
// ============================================================================

func (t *Tx) InsertScan(ctx context.Context, scan scanning.Scan) (int64, error) {
	if err := t.fault("InsertScan"); err != nil {
		return 0, err
	}
	scan.ID = t.st.nextID()
	t.st.scans = append(t.st.scans, scan)
	return scan.ID, nil
}

// ============================================================================
// RECEIVING
// ============================================================================

func (t *Tx) InsertShipment(ctx context.Context, shipment receiving.Shipment) (int64, error) {
	shipment.ID = t.st.nextID()
	shipment.Items = nil
	t.st.shipments[shipment.ID] = shipment
	return shipment.ID, nil
}

func (t *Tx) InsertItem(ctx context.Context, item receiving.Item) (int64, error) {
	item.ID = t.st.nextID()
	t.st.shipItems[item.ID] = item
	return item.ID, nil
}

func (t *Tx) LockShipment(ctx context.Context, id int64) (receiving.Shipment, error) {
	shipment, ok := t.st.shipments[id]
	if !ok {
		return receiving.Shipment{}, receiving.ErrShipmentNotFound
	}
	return shipment, nil
}

func (t *Tx) ListItems(ctx context.Context, shipmentID int64) ([]receiving.Item, error) {
	return shipmentItems(t.st, shipmentID), nil
}

func (t *Tx) UpdateItem(ctx context.Context, item receiving.Item) error {
	if err := t.fault("UpdateItem"); err != nil {
		return err
	}
	if _, ok := t.st.shipItems[item.ID]; !ok {
		return errNotFound("receiving item", item.ID)
	}
	t.st.shipItems[item.ID] = item
	return nil
}

func (t *Tx) UpdateShipment(ctx context.Context, shipment receiving.Shipment) error {
	if err := t.fault("UpdateShipment"); err != nil {
		return err
	}
	shipment.Items = nil
	t.st.shipments[shipment.ID] = shipment
	return nil
}

func (t *Tx) SummarizeItems(ctx context.Context, shipmentID int64) (receiving.ItemSummary, error) {
	if err := t.fault("SummarizeItems"); err != nil {
		return receiving.ItemSummary{}, err
	}
	var summary receiving.ItemSummary
	for _, item := range t.st.shipItems {
		if item.ShipmentID != shipmentID {
			continue
		}
		summary.Total++
		if item.MatchStatus.Settled() {
			summary.Settled++
		}
	}
	return summary, nil
}

// ============================================================================
// PICKING
// ============================================================================

func (t *Tx) InsertPickList(ctx context.Context, list picking.PickList) (int64, error) {
	list.ID = t.st.nextID()
	list.Items = nil
	t.st.pickLists[list.ID] = list
	return list.ID, nil
}

func (t *Tx) InsertPickItem(ctx context.Context, item picking.Item) (int64, error) {
	item.ID = t.st.nextID()
	t.st.pickItems[item.ID] = item
	return item.ID, nil
}

func (t *Tx) LockPickList(ctx context.Context, id int64) (picking.PickList, error) {
	list, ok := t.st.pickLists[id]
	if !ok {
		return picking.PickList{}, picking.ErrPickListNotFound
	}
	return list, nil
}

func (t *Tx) ListPickItems(ctx context.Context, pickListID int64) ([]picking.Item, error) {
	return pickItems(t.st, pickListID), nil
}

func (t *Tx) UpdatePickItem(ctx context.Context, item picking.Item) error {
	if err := t.fault("UpdatePickItem"); err != nil {
		return err
	}
	if _, ok := t.st.pickItems[item.ID]; !ok {
		return errNotFound("pick list item", item.ID)
	}
	t.st.pickItems[item.ID] = item
	return nil
}

func (t *Tx) UpdateSequence(ctx context.Context, itemID int64, sequence int) error {
	item, ok := t.st.pickItems[itemID]
	if !ok {
		return errNotFound("pick list item", itemID)
	}
	item.SequenceNumber = sequence
	t.st.pickItems[itemID] = item
	return nil
}

func (t *Tx) UpdatePickList(ctx context.Context, list picking.PickList) error {
	if err := t.fault("UpdatePickList"); err != nil {
		return err
	}
	list.Items = nil
	t.st.pickLists[list.ID] = list
	return nil
}

func (t *Tx) SummarizePickItems(ctx context.Context, pickListID int64) (picking.ItemSummary, error) {
	if err := t.fault("SummarizePickItems"); err != nil {
		return picking.ItemSummary{}, err
	}
	var summary picking.ItemSummary
	for _, item := range t.st.pickItems {
		if item.PickListID != pickListID {
			continue
		}
		summary.Total++
		if item.Status == picking.ItemPicked {
			summary.Picked++
		}
	}
	return summary, nil
}
