package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ActorLimiter limits requests per caller: by actor when the actor middleware
// identified one, by client IP otherwise. Rejections are answered with a 429
// problem carrying detail. A non-positive limit disables limiting.
func ActorLimiter(limit int, window time.Duration, detail string) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(ActorOrIPKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), detail)
		}),
	)
}

// ActorOrIPKey is the httprate key used by ActorLimiter.
func ActorOrIPKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "actor:" + strconv.FormatInt(actor.ID, 10), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
