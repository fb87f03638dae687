package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RequireActor returns the caller set by the actor middleware, writing a 401
// when there is none.
func RequireActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		RespondError(w, shared.ErrMissingActor)
		return shared.Actor{}, false
	}
	return actor, true
}

// QueryInt64 parses an optional non-negative integer query parameter.
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return v, nil
}

// QueryInt is QueryInt64 for int sized values such as limits.
func QueryInt(r *http.Request, name string) (int, error) {
	v, err := QueryInt64(r, name)
	return int(v), err
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return v, nil
}

// QueryTime parses an optional RFC3339 timestamp query parameter.
func QueryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return t.UTC(), nil
}
