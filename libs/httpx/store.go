package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// StoreIDHeader carries the tenant (store) the notification belongs to.
const StoreIDHeader = "X-Store-ID"

func StoreIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ctxKeyStoreID).(int64)
	return v, ok
}

func ContextWithStoreID(ctx context.Context, storeID int64) context.Context {
	return context.WithValue(ctx, ctxKeyStoreID, storeID)
}

// ParseStoreID accepts positive integer ids only.
func ParseStoreID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WithStoreID rejects requests without a valid X-Store-ID header and exposes
// the parsed id through the request context.
func WithStoreID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := ParseStoreID(r.Header.Get(StoreIDHeader))
		if !ok {
			http.Error(w, "missing or invalid "+StoreIDHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithStoreID(r.Context(), storeID)))
	})
}
