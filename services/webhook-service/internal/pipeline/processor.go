package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/storehook/libs/otel"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/compose"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/dispatch"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/gate"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/hydrate"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/respond"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/storeapi"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/tenants"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/trigger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	EchoSkip     = "SKIP"
	EchoAPIError = "STORE_API_ERR"
)

type TenantSource interface {
	Get(ctx context.Context, storeID int64) (tenants.Tenant, error)
}

type Hydrator interface {
	Hydrate(ctx context.Context, auth storeapi.Auth, kind, id string) (hydrate.Resource, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, token string, ev compose.Event) dispatch.Outcome
}

type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Config struct {
	// BackgroundTimeout bounds the order flow that continues after the 201.
	BackgroundTimeout time.Duration
}

type Processor struct {
	tenants    TenantSource
	hydrator   Hydrator
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
	inflight   sync.WaitGroup
}

func New(source TenantSource, hydrator Hydrator, dispatcher Dispatcher, logger *slog.Logger, cfg Config) *Processor {
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = 30 * time.Second
	}
	return &Processor{
		tenants:    source,
		hydrator:   hydrator,
		dispatcher: dispatcher,
		logger:     logger,
		timeout:    cfg.BackgroundTimeout,
	}
}

// Process runs one trigger through the pipeline and guarantees resp carries a
// definite status when it returns. Orders are answered 201 up front and
// forwarded in the background; carts are answered once their eligibility is
// known.
func (p *Processor) Process(ctx context.Context, storeID int64, t trigger.Trigger, resp *respond.Responder) {
	logger := p.logger.With("store_id", storeID, "resource", t.Resource, "action", t.Action)
	defer func() {
		if !resp.Responded() {
			logger.Debug("no terminal response for trigger")
			resp.Finish(http.StatusOK)
		}
		logger.Info("trigger answered", "status", resp.StatusCode())
	}()

	tenant, err := p.tenants.Get(ctx, storeID)
	if err != nil {
		if errors.Is(err, tenants.ErrUnauthenticated) {
			msg := fmt.Sprintf("Webhook for %d unhandled with no authentication found", storeID)
			raw, _ := json.Marshal(t)
			logger.Error(msg, "trigger", string(raw))
			resp.Text(http.StatusPreconditionFailed, msg)
			return
		}
		logger.Error("load app data failed", "err", err)
		resp.JSON(http.StatusInternalServerError, ErrorBody{Error: EchoAPIError, Message: err.Error()})
		return
	}

	if gate.Evaluate(t, tenant.Config) == gate.Skip {
		logger.Debug("trigger ignored by app configuration")
		resp.Text(http.StatusOK, EchoSkip)
		return
	}

	id, ok := hydrate.Target(t, tenant.Config)
	if !ok {
		if t.Resource != trigger.ResourceCarts {
			resp.Status(http.StatusCreated)
		}
		return
	}
	logger = logger.With("resource_id", id)
	logger.Info("trigger accepted for forwarding")

	if t.Resource == trigger.ResourceCarts {
		p.processCart(ctx, tenant, id, resp, logger)
		return
	}

	resp.Status(http.StatusCreated)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		bg, cancel := context.WithTimeout(otelx.Detach(ctx), p.timeout)
		defer cancel()
		if err := p.forward(bg, tenant, t.Resource, id, logger); err != nil {
			logger.Error("order notification aborted", "err", err)
		}
	}()
}

func (p *Processor) processCart(ctx context.Context, tenant tenants.Tenant, id string, resp *respond.Responder, logger *slog.Logger) {
	err := p.forward(ctx, tenant, trigger.ResourceCarts, id, logger)
	switch {
	case err == nil:
		resp.Status(http.StatusOK)
	case errors.Is(err, hydrate.ErrNotYetAbandoned):
		resp.Status(http.StatusNotImplemented)
	case errors.Is(err, hydrate.ErrCartIneligible):
		resp.Status(http.StatusNoContent)
	default:
		logger.Error("cart notification failed", "err", err)
		resp.JSON(http.StatusInternalServerError, ErrorBody{Error: EchoAPIError, Message: err.Error()})
	}
}

// forward hydrates, composes and dispatches. Hydration and composition errors
// are returned; a failed delivery is only logged.
func (p *Processor) forward(ctx context.Context, tenant tenants.Tenant, kind, id string, logger *slog.Logger) error {
	ctx, span := otelx.Tracer().Start(ctx, "webhook.forward")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("store.id", tenant.StoreID),
		attribute.String("resource.kind", kind),
		attribute.String("resource.id", id),
	)

	res, err := p.hydrator.Hydrate(ctx, tenant.Auth, kind, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ev, err := compose.Compose(res)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if ev == nil {
		logger.Info("no event mapping for resource, nothing sent")
		return nil
	}

	logger.Info("sending notification", "event_type", ev.EventType)
	out := p.dispatcher.Dispatch(ctx, tenant.Config.DestinationToken, *ev)
	span.SetAttributes(attribute.Int("destination.status", out.Status))
	if !out.Delivered() {
		span.SetStatus(codes.Error, out.Err.Error())
		logger.Error("destination POST failed",
			"err", out.Err,
			"status", out.Status,
			"response", out.Body,
			"data", string(out.Sent),
			"trace_id", otelx.TraceID(ctx),
		)
		return nil
	}
	logger.Info("notification delivered", "status", out.Status)
	return nil
}

// Wait blocks until background order flows finish or ctx is done.
func (p *Processor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
