package respond

import (
	"encoding/json"
	"net/http"
	"sync"
)

type state int

const (
	pending state = iota
	responded
	closed
)

// Responder owns the single response of a webhook request. The first send
// wins; every later send, and any send after Close, is a no-op that reports
// false. It is safe for use from background goroutines.
type Responder struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	state  state
	status int
}

func New(w http.ResponseWriter) *Responder {
	return &Responder{w: w}
}

// Status answers with the status text as body, or no body for 204.
func (r *Responder) Status(code int) bool {
	if code == http.StatusNoContent {
		return r.send(code, "", nil)
	}
	return r.send(code, "text/plain; charset=utf-8", []byte(http.StatusText(code)))
}

func (r *Responder) Text(code int, body string) bool {
	return r.send(code, "text/plain; charset=utf-8", []byte(body))
}

func (r *Responder) JSON(code int, v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return r.Status(http.StatusInternalServerError)
	}
	return r.send(code, "application/json", append(raw, '\n'))
}

// Finish answers code only when nothing was sent yet.
func (r *Responder) Finish(code int) bool {
	return r.Status(code)
}

func (r *Responder) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status != 0
}

// StatusCode is the status that was sent, or 0.
func (r *Responder) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Close detaches the writer. Call it before the handler returns so background
// work can never touch a finished response.
func (r *Responder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = closed
	r.w = nil
}

func (r *Responder) send(code int, contentType string, body []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != pending {
		return false
	}
	r.state = responded
	r.status = code

	if contentType != "" {
		r.w.Header().Set("Content-Type", contentType)
	}
	r.w.WriteHeader(code)
	if len(body) > 0 {
		_, _ = r.w.Write(body)
	}
	return true
}
