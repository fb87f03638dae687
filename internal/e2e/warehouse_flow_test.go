package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/picking"
	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/testing/memstore"
)

var widget = catalog.Product{ID: 100, SKU: "WID-100", UPC: "012345678905", Name: "Widget"}

type warehouse struct {
	t       *testing.T
	store   *memstore.Store
	events  *memstore.Events
	handler http.Handler
}

func newWarehouse(t *testing.T) *warehouse {
	t.Helper()
	store := memstore.New()
	events := &memstore.Events{}
	products := memstore.NewCatalog(widget)
	metrics := observability.NewMetrics()

	led := ledger.NewService(store.Ledger(), nil)
	led.SetObserver(func(in ledger.DeltaInput, _ ledger.DeltaResult, err error) {
		metrics.ObserveDelta(in.Delta, err)
	})
	engine := scanning.NewEngine(store.Scans(), products, led, events, nil)
	engine.SetObserver(func(scanType scanning.ScanType, status scanning.Status) {
		metrics.ObserveScan(string(scanType), string(status))
	})
	recv := receiving.NewService(store.Receiving(), led, engine, products, events, nil)
	pick := picking.NewService(store.Picking(), led, engine, products, events, picking.ServiceConfig{SecondsPerPick: 30 * time.Second}, nil)
	engine.RegisterWorkflow(scanning.TypeReceiving, recv)
	engine.RegisterWorkflow(scanning.TypePicking, pick)

	handler := app.NewRouter(app.RouterParams{
		Config:           &app.Config{AppEnv: "production", RateLimitPerMinute: 1000},
		LedgerHandler:    ledger.NewHandler(nil, led),
		ScanHandler:      scanning.NewHandler(nil, engine),
		ReceivingHandler: receiving.NewHandler(nil, recv),
		PickingHandler:   picking.NewHandler(nil, pick),
		Metrics:          metrics,
	})
	return &warehouse{t: t, store: store, events: events, handler: handler}
}

func (w *warehouse) do(method, path, body string, out any) int {
	w.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(app.HeaderActorID, "9")
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	w.handler.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 && rr.Body.Len() > 0 {
		require.NoError(w.t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr.Code
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func TestReceiveThenPickThroughHTTP(t *testing.T) {
	w := newWarehouse(t)

	var dock, bin ledger.Location
	require.Equal(t, http.StatusCreated, w.do(http.MethodPost, "/warehouse/locations",
		`{"code":"DOCK-1","zone":"R","type":"receiving","capacity":500}`, &dock))
	require.Equal(t, http.StatusCreated, w.do(http.MethodPost, "/warehouse/locations",
		`{"code":"A-01-1-1","zone":"A","aisle":"01","shelf":"1","position":"1","type":"standard","capacity":100}`, &bin))

	var shipment receiving.Shipment
	require.Equal(t, http.StatusCreated, w.do(http.MethodPost, "/warehouse/receiving/shipments",
		`{"supplier_id":3,"po_number":"PO-3","items":[{"product_id":100,"expected_quantity":6}]}`, &shipment))

	// Dispatched through the generic scan endpoint to the receiving workflow.
	var result scanning.ScanResult
	scan := `{"code":"012345678905","scan_type":"receiving","quantity":6,"reference_id":` + id(shipment.ID) + `}`
	require.Equal(t, http.StatusOK, w.do(http.MethodPost, "/warehouse/scans", scan, &result))
	require.Equal(t, scanning.ActionConfirmReceive, result.NextAction.Action)
	require.Equal(t, 6, w.store.Quantity(widget.ID, dock.ID))

	require.Equal(t, http.StatusOK, w.do(http.MethodPost, "/warehouse/receiving/shipments/"+id(shipment.ID)+"/complete", "", &shipment))
	require.Equal(t, receiving.ShipmentCompleted, shipment.Status)

	// Put away: move the stock from the dock into the bin and make it primary.
	require.Equal(t, http.StatusOK, w.do(http.MethodPost, "/warehouse/inventory/adjustments",
		`{"product_id":100,"location_id":`+id(dock.ID)+`,"delta":-6,"reason":"putaway"}`, nil))
	require.Equal(t, http.StatusOK, w.do(http.MethodPost, "/warehouse/inventory/adjustments",
		`{"product_id":100,"location_id":`+id(bin.ID)+`,"delta":6,"reason":"putaway"}`, nil))
	require.Equal(t, http.StatusNoContent, w.do(http.MethodPut, "/warehouse/products/100/primary-location",
		`{"location_id":`+id(bin.ID)+`}`, nil))

	var list picking.PickList
	require.Equal(t, http.StatusCreated, w.do(http.MethodPost, "/warehouse/picking/lists",
		`{"order":{"id":55,"number":"SO-55","lines":[{"id":1,"product_id":100,"quantity":4}]}}`, &list))
	require.Equal(t, bin.ID, list.Items[0].LocationID)

	var outcome picking.ScanOutcome
	require.Equal(t, http.StatusOK, w.do(http.MethodPost, "/warehouse/picking/lists/"+id(list.ID)+"/scans",
		`{"code":"WID-100","quantity":4}`, &outcome))
	require.Equal(t, picking.ListCompleted, outcome.PickList.Status)
	require.Equal(t, 2, w.store.Quantity(widget.ID, bin.ID))

	var summary []ledger.ProductSummary
	require.Equal(t, http.StatusOK, w.do(http.MethodGet, "/warehouse/inventory/summary?product_id=100", "", &summary))
	require.Len(t, summary, 1)
	require.Equal(t, 2, summary[0].TotalQuantity)

	require.Contains(t, w.events.Kinds(), notify.KindWorkflowCompleted)
	require.Contains(t, w.events.Kinds(), notify.KindInventoryChanged)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	w.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `odyssey_wms_scans_total{scan_type="receiving",status="success"} 1`)
	require.Contains(t, rr.Body.String(), `odyssey_wms_ledger_deltas_total{direction="out",outcome="applied"}`)
	require.Contains(t, rr.Body.String(), `odyssey_wms_ledger_deltas_total{direction="in",outcome="applied"}`)
}

func TestMutationsRequireActorHeader(t *testing.T) {
	w := newWarehouse(t)
	req := httptest.NewRequest(http.MethodPost, "/warehouse/locations", strings.NewReader(`{"code":"X","zone":"A","type":"standard"}`))
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	w.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	w.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
