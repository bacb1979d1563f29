package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/compose"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultEventsURL = "https://api.rd.services/platform/events"

	maxBodyLogLen = 2048
)

// Outcome is the result of a single delivery attempt. Err is nil exactly when
// the destination answered 2xx.
type Outcome struct {
	Status int
	Body   string
	Sent   []byte
	Err    error
}

func (o Outcome) Delivered() bool {
	return o.Err == nil
}

type Dispatcher struct {
	url  string
	http *http.Client
}

func New(url string, timeout time.Duration) *Dispatcher {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultEventsURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		url: url,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (d *Dispatcher) URL() string {
	return d.url
}

// Dispatch posts the event once. There is no retry: the platform re-sends the
// trigger if it wants another attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, token string, ev compose.Event) Outcome {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Outcome{Err: err}
	}
	out := Outcome{Sent: raw}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(raw))
	if err != nil {
		out.Err = err
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		out.Err = err
		return out
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLogLen))
	out.Status = resp.StatusCode
	out.Body = strings.TrimSpace(string(body))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Err = fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return out
}

var ErrRejected = errors.New("destination returned non-2xx")
