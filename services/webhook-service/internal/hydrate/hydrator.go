package hydrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/storeapi"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/tenants"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/trigger"
)

// DefaultAbandonedCartDelay is the minimum cart age before it counts as abandoned.
const DefaultAbandonedCartDelay = 12 * time.Minute

var (
	// ErrNotYetAbandoned: the cart is eligible but younger than the delay.
	ErrNotYetAbandoned = errors.New("hydrate: cart not yet abandoned")
	// ErrCartIneligible: the cart is unavailable or already completed.
	ErrCartIneligible = errors.New("hydrate: cart not eligible")
	// ErrUnsupportedKind is returned for resources other than orders and carts.
	ErrUnsupportedKind = errors.New("hydrate: unsupported resource kind")
	// ErrInvalidID is returned for ids that cannot name a single Store API document.
	ErrInvalidID = errors.New("hydrate: invalid document id")
)

// ValidID reports whether id is safe to place in a Store API document path.
// Store ids are hex object ids; letters, digits, '-' and '_' are accepted.
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func documentPath(kind, id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
	}
	return kind + "/" + id + ".json", nil
}

// FailedError wraps a Store API failure met while hydrating.
type FailedError struct {
	Path  string
	Cause error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("hydrate %s: %v", e.Path, e.Cause)
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}

type Fetcher interface {
	Get(ctx context.Context, auth storeapi.Auth, path string, out any) error
}

type Config struct {
	AbandonedCartDelay time.Duration
	Now                func() time.Time
}

type Hydrator struct {
	api   Fetcher
	delay time.Duration
	now   func() time.Time
}

func New(api Fetcher, cfg Config) *Hydrator {
	if cfg.AbandonedCartDelay <= 0 {
		cfg.AbandonedCartDelay = DefaultAbandonedCartDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hydrator{api: api, delay: cfg.AbandonedCartDelay, now: cfg.Now}
}

// Target reports whether a trigger qualifies for hydration and returns the id
// to fetch. Deletes, other resources, triggers without a well-formed id and
// stores without a destination token never hydrate.
func Target(t trigger.Trigger, cfg tenants.Config) (string, bool) {
	if t.Resource != trigger.ResourceOrders && t.Resource != trigger.ResourceCarts {
		return "", false
	}
	if t.IsDelete() || cfg.DestinationToken == "" {
		return "", false
	}
	id := t.TargetID()
	if !ValidID(id) {
		return "", false
	}
	return id, true
}

// Hydrate fetches the referenced document and, when it lists one, its first
// customer. Calls are sequential; the customer is only read once the document
// passed its eligibility checks.
func (h *Hydrator) Hydrate(ctx context.Context, auth storeapi.Auth, kind, id string) (Resource, error) {
	res := Resource{Kind: kind}
	var customerID string

	switch kind {
	case trigger.ResourceCarts:
		var cart Cart
		if err := h.fetch(ctx, auth, kind, id, &cart); err != nil {
			return Resource{}, err
		}
		if !cart.Available || cart.Completed {
			return Resource{}, ErrCartIneligible
		}
		if cart.CreatedAt.IsZero() || h.now().Sub(cart.CreatedAt) < h.delay {
			return Resource{}, ErrNotYetAbandoned
		}
		res.Cart = &cart
		customerID = firstRef(cart.Customers)

	case trigger.ResourceOrders:
		var order Order
		if err := h.fetch(ctx, auth, kind, id, &order); err != nil {
			return Resource{}, err
		}
		res.Order = &order
		customerID = firstRef(order.Buyers)

	default:
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	if customerID != "" {
		var customer Customer
		if err := h.fetch(ctx, auth, "customers", customerID, &customer); err != nil {
			return Resource{}, err
		}
		res.Customer = &customer
	}
	return res, nil
}

func (h *Hydrator) fetch(ctx context.Context, auth storeapi.Auth, kind, id string, out any) error {
	path, err := documentPath(kind, id)
	if err != nil {
		return err
	}
	if err := h.api.Get(ctx, auth, path, out); err != nil {
		return &FailedError{Path: path, Cause: err}
	}
	return nil
}
