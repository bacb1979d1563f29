package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/dispatch"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/hydrate"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/respond"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/storeapi"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/tenants"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/trigger"
)

const storeID int64 = 1011

var now = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

type fakeTenants struct {
	tenant tenants.Tenant
	err    error
}

func (f fakeTenants) Get(context.Context, int64) (tenants.Tenant, error) {
	return f.tenant, f.err
}

// storeAPI serves canned documents and records every path requested.
type storeAPI struct {
	mu    sync.Mutex
	docs  map[string]string
	paths []string
}

func (s *storeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	s.mu.Lock()
	s.paths = append(s.paths, path)
	doc, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"message":"Resource not found"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

func (s *storeAPI) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// destination records posted bodies; when gate is non-nil each request blocks
// until it is closed.
type destination struct {
	mu     sync.Mutex
	bodies []string
	gate   chan struct{}
	status int
}

func (d *destination) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	d.mu.Lock()
	d.bodies = append(d.bodies, string(raw))
	d.mu.Unlock()
	if d.gate != nil {
		<-d.gate
	}
	if d.status != 0 {
		w.WriteHeader(d.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *destination) posted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.bodies...)
}

type harness struct {
	api  *storeAPI
	dest *destination
	proc *Processor
}

func newHarness(t *testing.T, docs map[string]string, tenantErr error, cfg tenants.Config, opts ...func(*destination)) *harness {
	t.Helper()
	api := &storeAPI{docs: docs}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	dest := &destination{}
	for _, opt := range opts {
		opt(dest)
	}
	destSrv := httptest.NewServer(dest)
	t.Cleanup(destSrv.Close)

	source := fakeTenants{err: tenantErr, tenant: tenants.Tenant{
		StoreID: storeID,
		Config:  cfg,
		Auth:    storeapi.Auth{StoreID: storeID, AuthenticationID: "app-auth", AccessToken: "tok"},
	}}
	hydrator := hydrate.New(storeapi.NewClient(apiSrv.URL, time.Second), hydrate.Config{Now: func() time.Time { return now }})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	proc := New(source, hydrator, dispatch.New(destSrv.URL, time.Second), logger, Config{BackgroundTimeout: 5 * time.Second})
	return &harness{api: api, dest: dest, proc: proc}
}

func (h *harness) run(t *testing.T, tr trigger.Trigger) *httptest.ResponseRecorder {
	t.Helper()
	rw := httptest.NewRecorder()
	resp := respond.New(rw)
	h.proc.Process(context.Background(), storeID, tr, resp)
	resp.Close()
	return rw
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.proc.Wait(ctx); err != nil {
		t.Fatalf("background work did not finish: %v", err)
	}
}

var rdConfig = tenants.Config{DestinationToken: "rd-token"}

func TestIgnoredTriggerIsSkipped(t *testing.T) {
	h := newHarness(t, nil, nil, tenants.Config{IgnoreTriggers: []string{"orders"}, DestinationToken: "rd-token"})
	rw := h.run(t, trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "X"})
	h.wait(t)

	if rw.Code != http.StatusOK || rw.Body.String() != EchoSkip {
		t.Fatalf("expected SKIP, got %d %q", rw.Code, rw.Body.String())
	}
	if len(h.api.calls()) != 0 || len(h.dest.posted()) != 0 {
		t.Fatalf("expected no downstream calls, got api=%v dest=%v", h.api.calls(), h.dest.posted())
	}
}

func TestUnauthenticatedStore(t *testing.T) {
	h := newHarness(t, nil, tenants.ErrUnauthenticated, rdConfig)
	rw := h.run(t, trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "X"})

	if rw.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", rw.Code)
	}
	if rw.Body.String() != "Webhook for 1011 unhandled with no authentication found" {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}
}

func TestAppDataFailure(t *testing.T) {
	h := newHarness(t, nil, errors.New("connection reset"), rdConfig)
	rw := h.run(t, trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "X"})

	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if rw.Body.String() != "{\"error\":\"STORE_API_ERR\",\"message\":\"connection reset\"}\n" {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}
}

const placedOrder = `{
	"_id":"X",
	"financial_status":{"current":"paid"},
	"items":[{"sku":"shirt"}],
	"transactions":[{"payment_method":{"code":"credit_card"}}],
	"amount":{"total":42},
	"accepts_marketing":true,
	"buyers":[{"_id":"b1"}]
}`

func TestOrderRespondsBeforeDispatch(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, map[string]string{
		"orders/X.json":     placedOrder,
		"customers/b1.json": `{"_id":"b1","display_name":"Ana Lima","main_email":"ana@example.com"}`,
	}, nil, rdConfig, func(d *destination) { d.gate = release })
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	rw := h.run(t, trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "X"})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201 before dispatch completes, got %d", rw.Code)
	}
	close(release)
	h.wait(t)

	posted := h.dest.posted()
	if len(posted) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(posted))
	}
	want := `{"event_type":"ORDER_PLACED","event_family":"CDP","payload":{"name":"Ana Lima","email":"ana@example.com","cf_order_id":"X","cf_order_total_items":1,"cf_order_status":"paid","cf_order_payment_method":"Credit Card","cf_order_payment_amount":42,"legal_bases":[{"category":"communications","type":"consent","status":"granted"}]}}`
	if posted[0] != want {
		t.Fatalf("unexpected payload\n got: %s\nwant: %s", posted[0], want)
	}
	if calls := h.api.calls(); len(calls) != 2 || calls[0] != "orders/X.json" || calls[1] != "customers/b1.json" {
		t.Fatalf("expected order then customer fetch, got %v", calls)
	}
}

func TestOrderDeliveryFailureKeeps201(t *testing.T) {
	h := newHarness(t, map[string]string{
		"orders/X.json":     placedOrder,
		"customers/b1.json": `{"_id":"b1","display_name":"Ana","main_email":"ana@example.com"}`,
	}, nil, rdConfig, func(d *destination) { d.status = http.StatusUnauthorized })

	rw := h.run(t, trigger.Trigger{Resource: "orders", Action: "create", InsertedID: "X"})
	h.wait(t)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rw.Code)
	}
	if len(h.dest.posted()) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(h.dest.posted()))
	}
}

func TestOrderWithoutBuyerIsNotDispatched(t *testing.T) {
	h := newHarness(t, map[string]string{
		"orders/X.json": `{"_id":"X","financial_status":{"current":"paid"},"amount":{"total":42}}`,
	}, nil, rdConfig)

	rw := h.run(t, trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "X"})
	h.wait(t)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rw.Code)
	}
	if len(h.dest.posted()) != 0 {
		t.Fatalf("expected nothing dispatched, got %v", h.dest.posted())
	}
}

func TestCartResponses(t *testing.T) {
	customer := `{"_id":"u1","display_name":"Caio","main_email":"caio@example.com"}`
	cases := []struct {
		name      string
		cart      string
		wantCode  int
		wantCalls []string
	}{
		{
			name:      "unavailable",
			cart:      `{"_id":"c1","available":false,"created_at":"2026-05-10T10:00:00Z","customers":["u1"]}`,
			wantCode:  http.StatusNoContent,
			wantCalls: []string{"carts/c1.json"},
		},
		{
			name:      "completed",
			cart:      `{"_id":"c1","available":true,"completed":true,"created_at":"2026-05-10T10:00:00Z","customers":["u1"]}`,
			wantCode:  http.StatusNoContent,
			wantCalls: []string{"carts/c1.json"},
		},
		{
			name:      "too recent",
			cart:      `{"_id":"c1","available":true,"created_at":"2026-05-10T14:55:00Z","customers":["u1"]}`,
			wantCode:  http.StatusNotImplemented,
			wantCalls: []string{"carts/c1.json"},
		},
		{
			name:      "abandoned",
			cart:      `{"_id":"c1","available":true,"created_at":"2026-05-10T14:30:00Z","customers":["u1"]}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"carts/c1.json", "customers/u1.json"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, map[string]string{"carts/c1.json": tc.cart, "customers/u1.json": customer}, nil, rdConfig)
			rw := h.run(t, trigger.Trigger{Resource: "carts", Action: "change", ResourceID: "c1"})
			h.wait(t)

			if rw.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rw.Code)
			}
			calls := h.api.calls()
			if strings.Join(calls, ",") != strings.Join(tc.wantCalls, ",") {
				t.Fatalf("expected calls %v, got %v", tc.wantCalls, calls)
			}
			if len(h.dest.posted()) != 0 {
				t.Fatalf("carts have no event mapping, got %v", h.dest.posted())
			}
		})
	}
}

func TestCartHydrationFailure(t *testing.T) {
	h := newHarness(t, map[string]string{}, nil, rdConfig)
	rw := h.run(t, trigger.Trigger{Resource: "carts", Action: "change", ResourceID: "missing"})

	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), `"error":"STORE_API_ERR"`) {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}
}

func TestNonForwardedTriggers(t *testing.T) {
	cases := []struct {
		name string
		tr   trigger.Trigger
		cfg  tenants.Config
		want int
	}{
		{"products", trigger.Trigger{Resource: "products", Action: "change", ResourceID: "p1"}, rdConfig, http.StatusCreated},
		{"order delete", trigger.Trigger{Resource: "orders", Action: "delete", ResourceID: "X"}, rdConfig, http.StatusCreated},
		{"order without token", trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "X"}, tenants.Config{}, http.StatusCreated},
		{"cart delete", trigger.Trigger{Resource: "carts", Action: "delete", ResourceID: "c1"}, rdConfig, http.StatusOK},
		{"cart without id", trigger.Trigger{Resource: "carts", Action: "change"}, rdConfig, http.StatusOK},
		{"order with path in id", trigger.Trigger{Resource: "orders", Action: "change", ResourceID: "../customers/victim"}, rdConfig, http.StatusCreated},
		{"cart with query in id", trigger.Trigger{Resource: "carts", Action: "change", ResourceID: "c1?fields=x"}, rdConfig, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil, nil, tc.cfg)
			rw := h.run(t, tc.tr)
			h.wait(t)
			if rw.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rw.Code)
			}
			if len(h.api.calls()) != 0 || len(h.dest.posted()) != 0 {
				t.Fatalf("expected no downstream calls, got api=%v dest=%v", h.api.calls(), h.dest.posted())
			}
		})
	}
}

func TestProcessLogsAnsweredStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	source := fakeTenants{tenant: tenants.Tenant{StoreID: storeID, Config: rdConfig}}
	proc := New(source, hydrate.New(nil, hydrate.Config{}), dispatch.New("http://127.0.0.1:0", time.Second), logger, Config{})

	rw := httptest.NewRecorder()
	resp := respond.New(rw)
	proc.Process(context.Background(), storeID, trigger.Trigger{Resource: "carts", Action: "delete", ResourceID: "c1"}, resp)
	resp.Close()

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "no terminal response for trigger") {
		t.Fatalf("expected fallthrough log, got %q", out)
	}
	if !strings.Contains(out, `msg="trigger answered"`) || !strings.Contains(out, "status=200") {
		t.Fatalf("expected answered status log, got %q", out)
	}
}
