package receiving_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func (f fixture) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/receiving", receiving.NewHandler(nil, f.svc).MountRoutes)
	return r
}

func call(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerShipmentLifecycle(t *testing.T) {
	f := newFixture(t)
	router := f.router()

	rr := call(router, http.MethodPost, "/receiving/shipments", `{"supplier_id":1,"po_number":"PO-1","items":[{"product_id":10,"expected_quantity":3},{"product_id":11,"expected_quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var shipment receiving.Shipment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &shipment))
	require.Len(t, shipment.Items, 2)
	base := "/receiving/shipments/" + strconv.FormatInt(shipment.ID, 10)

	rr = call(router, http.MethodPost, base+"/scans", `{"code":"012345678905","quantity":3}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var outcome receiving.ScanOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	require.Equal(t, receiving.MatchMatched, outcome.Item.MatchStatus)
	require.Equal(t, f.dock.ID, outcome.Item.LocationID)
	require.Equal(t, 3, f.store.Quantity(bolts.ID, f.dock.ID))

	itemPath := base + "/items/" + strconv.FormatInt(shipment.Items[1].ID, 10) + "/discrepancies"
	rr = call(router, http.MethodPost, itemPath, `{"type":"damage","notes":"crushed","quantity":2}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(router, http.MethodPost, base+"/complete", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(router, http.MethodPost, base+"/complete", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = call(router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &shipment))
	require.Equal(t, receiving.ShipmentCompleted, shipment.Status)
	require.Equal(t, receiving.MatchDamage, shipment.Items[1].MatchStatus)
}

func TestHandlerScanOutsideManifestIsNotFound(t *testing.T) {
	f := newFixture(t)
	shipment := f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 1})
	path := "/receiving/shipments/" + strconv.FormatInt(shipment.ID, 10) + "/scans"

	rr := call(f.router(), http.MethodPost, path, `{"code":"036000291452"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerCreateShipmentValidation(t *testing.T) {
	f := newFixture(t)
	rr := call(f.router(), http.MethodPost, "/receiving/shipments", `{"supplier_id":1,"po_number":"PO-1","items":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerListShipmentsRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	f.openShipment(t, receiving.ExpectedItem{ProductID: bolts.ID, ExpectedQuantity: 1})

	rr := call(f.router(), http.MethodGet, "/receiving/shipments?status=lost", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(f.router(), http.MethodGet, "/receiving/shipments?status=pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []receiving.Shipment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
}
