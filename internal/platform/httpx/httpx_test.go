package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrMissingActor, http.StatusUnauthorized},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("%w: shipment", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: completed", shared.ErrInvalidState), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.Validationf("bad code"), http.StatusBadRequest},
		{ErrBadRequest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: connection reset"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, http.StatusInternalServerError, problem.Status)
	require.Empty(t, problem.Detail)

	rec = httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("%w: pick list not found", shared.ErrNotFound))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Detail, "pick list not found")
}

func TestRequireActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	_, ok := RequireActor(rec, req)
	require.False(t, ok)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 3}))
	rec = httptest.NewRecorder()
	actor, ok := RequireActor(rec, req)
	require.True(t, ok)
	require.Equal(t, int64(3), actor.ID)
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&product_id=-1&in_stock=true&from=2026-01-02T03:04:05Z&to=yesterday", nil)

	limit, err := QueryInt(req, "limit")
	require.NoError(t, err)
	require.Equal(t, 25, limit)

	_, err = QueryInt64(req, "product_id")
	require.ErrorIs(t, err, ErrBadRequest)

	missing, err := QueryInt64(req, "offset")
	require.NoError(t, err)
	require.Zero(t, missing)

	inStock, err := QueryBool(req, "in_stock")
	require.NoError(t, err)
	require.True(t, inStock)

	from, err := QueryTime(req, "from")
	require.NoError(t, err)
	require.Equal(t, 2026, from.Year())

	_, err = QueryTime(req, "to")
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Code string `json:"code"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"0123","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"0123"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "0123", target.Code)
}

func TestIDParam(t *testing.T) {
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := IDParam(withParam("42"), "id")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	_, err = IDParam(withParam("0"), "id")
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = IDParam(withParam("abc"), "id")
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestActorLimiterKeysByActor(t *testing.T) {
	h := ActorLimiter(1, time.Minute, "slow down")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(actorID int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.1.1:5000"
		if actorID > 0 {
			req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: actorID}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, call(1).Code)
	limited := call(1)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Contains(t, limited.Body.String(), "slow down")
	require.Equal(t, http.StatusNoContent, call(2).Code, "other actors have their own budget")
	require.Equal(t, http.StatusNoContent, call(0).Code, "anonymous callers are keyed by IP")
}

func TestActorLimiterDisabled(t *testing.T) {
	h := ActorLimiter(0, time.Minute, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}
