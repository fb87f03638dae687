package ledger_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/testing/memstore"
)

func newLedgerRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	svc, store := newLedger(t)
	r := chi.NewRouter()
	r.Group(ledger.NewHandler(nil, svc).MountRoutes)
	return r, store
}

func do(router http.Handler, method, path, body string, withActor bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if withActor {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateLocationRequiresActor(t *testing.T) {
	router, _ := newLedgerRouter(t)
	body := `{"code":"A-01","zone":"A","type":"standard","capacity":10}`

	rr := do(router, http.MethodPost, "/locations", body, false)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(router, http.MethodPost, "/locations", body, true)
	require.Equal(t, http.StatusCreated, rr.Code)
	var loc ledger.Location
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loc))
	require.Equal(t, "A-01", loc.Code)
	require.True(t, loc.Active)
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	router, _ := newLedgerRouter(t)
	rr := do(router, http.MethodPost, "/locations", `{"code":"A-01","bogus":1}`, true)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerAdjustmentMapsNegativeToConflict(t *testing.T) {
	router, store := newLedgerRouter(t)
	loc := store.AddLocation(ledger.Location{Code: "A-01", Zone: "A", Capacity: 10, Active: true})
	store.SetStock(1, loc.ID, 2, true)

	body := `{"product_id":1,"location_id":` + strconv.FormatInt(loc.ID, 10) + `,"delta":-5}`
	rr := do(router, http.MethodPost, "/inventory/adjustments", body, true)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, 2, store.Quantity(1, loc.ID))

	body = `{"product_id":1,"location_id":` + strconv.FormatInt(loc.ID, 10) + `,"delta":3}`
	rr = do(router, http.MethodPost, "/inventory/adjustments", body, true)
	require.Equal(t, http.StatusOK, rr.Code)
	var res ledger.DeltaResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, 5, res.NewQuantity)
}

func TestHandlerUpdateAndReadLocation(t *testing.T) {
	router, store := newLedgerRouter(t)
	loc := store.AddLocation(ledger.Location{Code: "A-01", Zone: "A", Capacity: 10, Active: true})
	path := "/locations/" + strconv.FormatInt(loc.ID, 10)

	rr := do(router, http.MethodPatch, path, `{"capacity":25,"code":"IGNORED"}`, true)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(router, http.MethodGet, path, "", false)
	require.Equal(t, http.StatusOK, rr.Code)
	var got ledger.Location
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, 25, got.Capacity)
	require.Equal(t, "A-01", got.Code)
}

func TestHandlerUnknownLocationIsNotFound(t *testing.T) {
	router, _ := newLedgerRouter(t)
	rr := do(router, http.MethodGet, "/locations/999", "", false)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(router, http.MethodGet, "/locations/abc", "", false)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerProductLocationsAndSummary(t *testing.T) {
	router, store := newLedgerRouter(t)
	a := store.AddLocation(ledger.Location{Code: "A-01", Zone: "A", Capacity: 10, Active: true})
	b := store.AddLocation(ledger.Location{Code: "B-01", Zone: "B", Capacity: 10, Active: true})
	store.SetStock(7, a.ID, 3, false)
	store.SetStock(7, b.ID, 4, true)

	rr := do(router, http.MethodGet, "/products/7/locations", "", false)
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []ledger.ProductLocationView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.True(t, rows[0].IsPrimary)

	rr = do(router, http.MethodGet, "/inventory/summary?product_id=7", "", false)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary []ledger.ProductSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Len(t, summary, 1)
	require.Equal(t, 7, summary[0].TotalQuantity)
	require.Equal(t, 2, summary[0].LocationCount)
}
