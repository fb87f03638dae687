package receiving_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/testing/memstore"
)

var (
	actor  = shared.Actor{ID: 3, Name: "receiver"}
	bolts  = catalog.Product{ID: 10, SKU: "BOLT-10", UPC: "012345678905", Name: "Bolts"}
	washer = catalog.Product{ID: 11, SKU: "WASH-11", UPC: "036000291452", Name: "Washers"}
)

type fixture struct {
	store  *memstore.Store
	events *memstore.Events
	engine *scanning.Engine
	svc    *receiving.Service
	dock   ledger.Location
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	events := &memstore.Events{}
	products := memstore.NewCatalog(bolts, washer)
	led := ledger.NewService(store.Ledger(), nil)
	engine := scanning.NewEngine(store.Scans(), products, led, events, nil)
	svc := receiving.NewService(store.Receiving(), led, engine, products, events, nil)
	dock := store.AddLocation(ledger.Location{Code: "R-01", Zone: "R", Type: ledger.LocationReceiving, Capacity: 500, Active: true})
	return fixture{store: store, events: events, engine: engine, svc: svc, dock: dock}
}

func (f fixture) openShipment(t *testing.T, lines ...receiving.ExpectedItem) receiving.Shipment {
	t.Helper()
	shipment, err := f.svc.CreateShipment(context.Background(), receiving.CreateShipmentInput{
		SupplierID: 1,
		PONumber:   "PO-778",
		Items:      lines,
	}, actor)
	require.NoError(t, err)
	return shipment
}

func TestCreateShipmentBackfillsCodesFromCatalog(t *testing.T) {
	f := newFixture(t)
	shipment := f.openShipment(t,
		receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 10},
		receiving.ExpectedItem{ProductID: washer.ID, SKU: "WASH-11", ExpectedQuantity: 5},
	)

	require.Equal(t, receiving.ShipmentPending, shipment.Status)
	require.Equal(t, 2, shipment.TotalItems)
	require.Regexp(t, `^RCV-\d{8}-[0-9A-F]{8}$`, shipment.Number)
	require.Len(t, shipment.Items, 2)
	require.Equal(t, bolts.UPC, shipment.Items[0].UPC)
	require.Equal(t, bolts.SKU, shipment.Items[0].SKU)
	require.Equal(t, receiving.MatchPending, shipment.Items[1].MatchStatus)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	require.Equal(t, receiving.ActionCreate, logs[0].Action)
}

func TestCreateShipmentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateShipment(ctx, receiving.CreateShipmentInput{SupplierID: 1, PONumber: "PO-1"}, actor)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateShipment(ctx, receiving.CreateShipmentInput{
		SupplierID: 1, PONumber: "PO-1",
		Items: []receiving.ExpectedItem{{ProductID: bolts.ID, ExpectedQuantity: 0}},
	}, actor)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateShipment(ctx, receiving.CreateShipmentInput{
		SupplierID: 1, PONumber: "PO-1",
		Items: []receiving.ExpectedItem{{ProductID: 404, ExpectedQuantity: 1}},
	}, actor)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.CreateShipment(ctx, receiving.CreateShipmentInput{
		SupplierID: 1, PONumber: "PO-1",
		Items: []receiving.ExpectedItem{{ProductID: bolts.ID, ExpectedQuantity: 1}},
	}, shared.Actor{})
	require.ErrorIs(t, err, shared.ErrMissingActor)
}

func TestReceivingShipmentEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bin := f.store.AddLocation(ledger.Location{Code: "S-01", Zone: "S", Capacity: 100, Active: true})
	shipment := f.openShipment(t,
		receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 10},
		receiving.ExpectedItem{ProductID: washer.ID, ExpectedQuantity: 5},
	)

	out, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 10, LocationID: bin.ID}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.MatchMatched, out.Item.MatchStatus)
	require.Equal(t, 10, out.Item.ReceivedQuantity)
	require.Equal(t, bin.ID, out.Item.LocationID)
	require.Equal(t, receiving.ShipmentInProgress, out.Shipment.Status)
	require.Equal(t, 1, out.Shipment.ItemsReceived)
	require.Equal(t, 10, out.NewQuantity)
	require.Equal(t, 10, f.store.Quantity(bolts.ID, bin.ID))
	require.Equal(t, out.Item.ID, out.Scan.Metadata["receiving_item_id"])

	out, err = f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: washer.SKU, Quantity: 5, LocationID: bin.ID}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentCompleted, out.Shipment.Status)
	require.Equal(t, 2, out.Shipment.ItemsReceived)
	require.NotNil(t, out.Shipment.CompletedAt)
	require.Equal(t, actor.ID, out.Shipment.ReceivedBy)
	require.Equal(t, 5, f.store.Quantity(washer.ID, bin.ID))

	_, err = f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 1, LocationID: bin.ID}, actor)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, 10, f.store.Quantity(bolts.ID, bin.ID))

	rows := f.store.ScanLog()
	require.Len(t, rows, 3)
	require.Equal(t, scanning.StatusSuccess, rows[0].Status)
	require.Equal(t, scanning.StatusSuccess, rows[1].Status)
	require.Equal(t, scanning.StatusError, rows[2].Status)
	require.Equal(t, shipment.ID, rows[2].ReferenceID)

	loaded, err := f.svc.GetShipment(ctx, shipment.ID)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentCompleted, loaded.Status)
	require.Len(t, loaded.Items, 2)

	var completed int
	for _, ev := range f.events.All() {
		if ev.Kind == notify.KindWorkflowCompleted {
			completed++
			require.Equal(t, shipment.ID, ev.SubjectID)
		}
	}
	require.Equal(t, 1, completed)
}

func TestItemsReceivedCountsSettledLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.openShipment(t,
		receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 4},
		receiving.ExpectedItem{ProductID: washer.ID, ExpectedQuantity: 4},
	)

	out, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.SKU, Quantity: 3}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.MatchPending, out.Item.MatchStatus)
	require.Equal(t, 0, out.Shipment.ItemsReceived)
	require.Equal(t, f.dock.ID, out.Item.LocationID)

	out, err = f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.SKU, Quantity: 3}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.MatchExcess, out.Item.MatchStatus)
	require.Equal(t, 1, out.Shipment.ItemsReceived)
	require.Equal(t, 6, f.store.Quantity(bolts.ID, f.dock.ID))

	loaded, err := f.svc.GetShipment(ctx, shipment.ID)
	require.NoError(t, err)
	settled := 0
	for _, item := range loaded.Items {
		if item.MatchStatus.Settled() {
			settled++
		}
	}
	require.Equal(t, settled, loaded.ItemsReceived)
}

func TestProcessScanMissOutsideManifestLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 4})

	_, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: washer.UPC, Quantity: 2, LocationID: f.dock.ID}, actor)
	require.ErrorIs(t, err, receiving.ErrItemNotInManifest)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, f.store.HasRow(washer.ID, f.dock.ID))

	rows := f.store.ScanLog()
	require.Len(t, rows, 1)
	require.Equal(t, scanning.StatusError, rows[0].Status)
	require.Contains(t, rows[0].ErrorReason, "not in shipment manifest")

	loaded, err := f.svc.GetShipment(ctx, shipment.ID)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentPending, loaded.Status)

	_, err = f.svc.ProcessScan(ctx, 9999, receiving.ScanInput{Code: bolts.UPC}, actor)
	require.ErrorIs(t, err, receiving.ErrShipmentNotFound)
}

func TestProcessScanRollsBackWhenShipmentUpdateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 4})
	f.store.FailOn("UpdateShipment", errors.New("connection reset"))

	_, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 4, LocationID: f.dock.ID}, actor)
	require.Error(t, err)
	require.False(t, f.store.HasRow(bolts.ID, f.dock.ID))

	loaded, err := f.svc.GetShipment(ctx, shipment.ID)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentPending, loaded.Status)
	require.Equal(t, 0, loaded.Items[0].ReceivedQuantity)
	require.Equal(t, receiving.MatchPending, loaded.Items[0].MatchStatus)

	rows := f.store.ScanLog()
	require.Len(t, rows, 1)
	require.Equal(t, scanning.StatusError, rows[0].Status)
	require.Equal(t, "internal error", rows[0].ErrorReason)
	require.Len(t, f.store.AuditLogs(), 1)

	f.store.FailOn("UpdateShipment", nil)
	out, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 4, LocationID: f.dock.ID}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentCompleted, out.Shipment.Status)
}

func TestProcessScanWithoutAnyLocation(t *testing.T) {
	store := memstore.New()
	products := memstore.NewCatalog(bolts)
	led := ledger.NewService(store.Ledger(), nil)
	engine := scanning.NewEngine(store.Scans(), products, led, nil, nil)
	svc := receiving.NewService(store.Receiving(), led, engine, products, nil, nil)
	ctx := context.Background()

	shipment, err := svc.CreateShipment(ctx, receiving.CreateShipmentInput{
		SupplierID: 1, PONumber: "PO-9",
		Items: []receiving.ExpectedItem{{ProductID: bolts.ID, ExpectedQuantity: 1}},
	}, actor)
	require.NoError(t, err)

	_, err = svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC}, actor)
	require.ErrorIs(t, err, ledger.ErrNoLocation)
}

func TestReportDiscrepancyKeepsLedgerAndStatusSticky(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.openShipment(t,
		receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 10},
		receiving.ExpectedItem{ProductID: washer.ID, ExpectedQuantity: 5},
	)
	boltsItem := shipment.Items[0]

	item, err := f.svc.ReportDiscrepancy(ctx, shipment.ID, boltsItem.ID, receiving.DiscrepancyInput{Type: receiving.MatchDamage, Notes: "crushed carton", Quantity: 2}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.MatchDamage, item.MatchStatus)
	require.Equal(t, "crushed carton", item.DiscrepancyNotes)
	require.False(t, f.store.HasRow(bolts.ID, f.dock.ID))

	out, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 10, LocationID: f.dock.ID}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.MatchDamage, out.Item.MatchStatus)
	require.Equal(t, 0, out.Shipment.ItemsReceived)
	require.Equal(t, receiving.ShipmentInProgress, out.Shipment.Status)

	_, err = f.svc.ReportDiscrepancy(ctx, shipment.ID, boltsItem.ID, receiving.DiscrepancyInput{Type: receiving.MatchMatched}, actor)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.ReportDiscrepancy(ctx, shipment.ID, 9999, receiving.DiscrepancyInput{Type: receiving.MatchMissing}, actor)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCompleteShipmentForcesCloseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.openShipment(t,
		receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 2},
		receiving.ExpectedItem{ProductID: washer.ID, ExpectedQuantity: 5},
	)
	_, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 2}, actor)
	require.NoError(t, err)

	closed, err := f.svc.CompleteShipment(ctx, shipment.ID, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentCompleted, closed.Status)
	require.Equal(t, 1, closed.ItemsReceived)
	require.NotNil(t, closed.CompletedAt)

	_, err = f.svc.CompleteShipment(ctx, shipment.ID, actor)
	require.ErrorIs(t, err, receiving.ErrShipmentCompleted)
	_, err = f.svc.ReportDiscrepancy(ctx, shipment.ID, shipment.Items[1].ID, receiving.DiscrepancyInput{Type: receiving.MatchMissing}, actor)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestEngineDispatchesReferencedScansToReceiving(t *testing.T) {
	f := newFixture(t)
	f.engine.RegisterWorkflow(scanning.TypeReceiving, f.svc)
	shipment := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 3})

	res, err := f.engine.ProcessScan(context.Background(), scanning.ScanEvent{
		Code:        bolts.UPC,
		ScanType:    scanning.TypeReceiving,
		Quantity:    3,
		LocationID:  f.dock.ID,
		ReferenceID: shipment.ID,
	}, actor)
	require.NoError(t, err)
	require.NotNil(t, res.Workflow)
	require.Equal(t, "receiving", res.Workflow.Workflow)
	require.True(t, res.Workflow.Completed)
	require.Equal(t, string(receiving.MatchMatched), res.Workflow.ItemStatus)
	require.Equal(t, 3, f.store.Quantity(bolts.ID, f.dock.ID))
	require.Len(t, f.store.ScanLog(), 1)
}

func TestListShipmentsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 1})
	second := f.openShipment(t, receiving.ExpectedItem{ProductID: washer.ID, ExpectedQuantity: 1})
	_, err := f.svc.CompleteShipment(ctx, first.ID, actor)
	require.NoError(t, err)

	all, err := f.svc.ListShipments(ctx, receiving.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)

	pending, err := f.svc.ListShipments(ctx, receiving.ListFilter{Status: receiving.ShipmentPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	_, err = f.svc.ListShipments(ctx, receiving.ListFilter{Status: "lost"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEngineMatchesSKUOnlyManifestLineByResolvedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.RegisterWorkflow(scanning.TypeReceiving, f.svc)
	shipment := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, SKU: bolts.SKU, ExpectedQuantity: 5})
	require.Empty(t, shipment.Items[0].UPC)

	res, err := f.engine.ProcessScan(ctx, scanning.ScanEvent{
		Code:        bolts.UPC,
		ScanType:    scanning.TypeReceiving,
		Quantity:    2,
		LocationID:  f.dock.ID,
		ReferenceID: shipment.ID,
	}, actor)
	require.NoError(t, err)
	require.Equal(t, string(receiving.MatchPending), res.Workflow.ItemStatus)
	require.Equal(t, 2, f.store.Quantity(bolts.ID, f.dock.ID))

	out, err := f.svc.ProcessScan(ctx, shipment.ID, receiving.ScanInput{Code: bolts.UPC, Quantity: 3, LocationID: f.dock.ID}, actor)
	require.NoError(t, err)
	require.Equal(t, receiving.MatchMatched, out.Item.MatchStatus)
	require.Equal(t, receiving.ShipmentCompleted, out.Shipment.Status)
}

func TestEngineRejectsUnknownCodeBeforeReceiving(t *testing.T) {
	f := newFixture(t)
	f.engine.RegisterWorkflow(scanning.TypeReceiving, f.svc)
	shipment := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 5})

	_, err := f.engine.ProcessScan(context.Background(), scanning.ScanEvent{
		Code:        "999999999999",
		ScanType:    scanning.TypeReceiving,
		LocationID:  f.dock.ID,
		ReferenceID: shipment.ID,
	}, actor)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)

	rows := f.store.ScanLog()
	require.Len(t, rows, 1)
	require.Equal(t, scanning.ReasonProductNotFound, rows[0].ErrorReason)
	require.NotContains(t, rows[0].ErrorReason, "manifest")

	loaded, err := f.svc.GetShipment(context.Background(), shipment.ID)
	require.NoError(t, err)
	require.Equal(t, receiving.ShipmentPending, loaded.Status)
}

func TestReceivingDeltasAreObserved(t *testing.T) {
	store := memstore.New()
	products := memstore.NewCatalog(bolts)
	led := ledger.NewService(store.Ledger(), nil)
	var observed []ledger.DeltaInput
	led.SetObserver(func(in ledger.DeltaInput, _ ledger.DeltaResult, err error) {
		require.NoError(t, err)
		observed = append(observed, in)
	})
	engine := scanning.NewEngine(store.Scans(), products, led, nil, nil)
	svc := receiving.NewService(store.Receiving(), led, engine, products, nil, nil)
	dock := store.AddLocation(ledger.Location{Code: "R-01", Zone: "R", Type: ledger.LocationReceiving, Capacity: 50, Active: true})

	shipment, err := svc.CreateShipment(context.Background(), receiving.CreateShipmentInput{
		SupplierID: 1, PONumber: "PO-1", Items: []receiving.ExpectedItem{{ProductID: bolts.ID, ExpectedQuantity: 2}},
	}, actor)
	require.NoError(t, err)
	_, err = svc.ProcessScan(context.Background(), shipment.ID, receiving.ScanInput{Code: bolts.SKU, Quantity: 2, LocationID: dock.ID}, actor)
	require.NoError(t, err)

	require.Len(t, observed, 1)
	require.Equal(t, 2, observed[0].Delta)
	require.Equal(t, "receiving", observed[0].RefModule)
}
