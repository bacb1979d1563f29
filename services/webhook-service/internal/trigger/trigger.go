// Package trigger models the lifecycle notifications the store platform posts
// to the webhook.
package trigger

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	ResourceOrders = "orders"
	ResourceCarts  = "carts"

	ActionCreate = "create"
	ActionChange = "change"
	ActionDelete = "delete"
)

var ErrMissingResource = errors.New("trigger: resource is required")

// Trigger is the subset of the notification body the pipeline reads. Unknown
// fields (datetime, fields, body, ...) are ignored.
type Trigger struct {
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id,omitempty"`
	InsertedID string `json:"inserted_id,omitempty"`
}

// TargetID resolves the id of the document the trigger refers to, preferring
// resource_id over inserted_id.
func (t Trigger) TargetID() string {
	if id := strings.TrimSpace(t.ResourceID); id != "" {
		return id
	}
	return strings.TrimSpace(t.InsertedID)
}

func (t Trigger) IsDelete() bool {
	return t.Action == ActionDelete
}

func Decode(r io.Reader) (Trigger, error) {
	var t Trigger
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return Trigger{}, err
	}
	t.Resource = strings.TrimSpace(t.Resource)
	t.Action = strings.TrimSpace(t.Action)
	if t.Resource == "" {
		return Trigger{}, ErrMissingResource
	}
	return t, nil
}
