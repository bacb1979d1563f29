package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/storehook/libs/httpx"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/respond"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/trigger"
)

type Processor interface {
	Process(ctx context.Context, storeID int64, t trigger.Trigger, resp *respond.Responder)
}

type Handler struct {
	processor Processor
	logger    *slog.Logger
}

func New(processor Processor, logger *slog.Logger) *Handler {
	return &Handler{processor: processor, logger: logger}
}

// Route wraps Webhook with the POST guard and tenant identity, followed by
// any route-specific middleware.
func (h *Handler) Route(m ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{httpx.WithMethod(http.MethodPost), httpx.WithStoreID}, m...)
	return httpx.Chain(http.HandlerFunc(h.Webhook), chain...)
}

// Webhook receives Store API triggers. Method and store id are checked by
// the middleware installed in Route.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	storeID, ok := httpx.StoreIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing store id", http.StatusBadRequest)
		return
	}

	t, err := trigger.Decode(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("invalid trigger body", "store_id", storeID, "err", err)
		http.Error(w, "invalid trigger body", http.StatusBadRequest)
		return
	}

	resp := respond.New(w)
	defer resp.Close()
	h.processor.Process(r.Context(), storeID, t, resp)
}
