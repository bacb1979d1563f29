package tenants

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/storeapi"
)

// ErrUnauthenticated means the store has no usable Store API credentials for
// this app. Callers answer 412 so the platform stops treating it as transient.
var ErrUnauthenticated = errors.New("tenants: store has no valid authentication")

// Config is the per-store app configuration read on every trigger.
type Config struct {
	IgnoreTriggers   []string
	DestinationToken string
}

type Tenant struct {
	StoreID int64
	Config  Config
	Auth    storeapi.Auth
}

// ParseAppData reads the app data document. Malformed members are dropped
// instead of failing: a non-array ignore_triggers means no ignore list.
func ParseAppData(raw []byte) Config {
	var doc map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return Config{}
	}

	var cfg Config
	if list, ok := doc["ignore_triggers"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				cfg.IgnoreTriggers = append(cfg.IgnoreTriggers, strings.TrimSpace(s))
			}
		}
	}
	if token, ok := doc["rd_token"].(string); ok {
		cfg.DestinationToken = strings.TrimSpace(token)
	}
	return cfg
}

type credentials struct {
	authenticationID string
	accessToken      string
	expiresAt        *time.Time
}

func (c credentials) valid(now time.Time) bool {
	if strings.TrimSpace(c.accessToken) == "" {
		return false
	}
	return c.expiresAt == nil || c.expiresAt.After(now)
}
