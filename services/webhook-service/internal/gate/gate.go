package gate

import (
	"slices"

	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/tenants"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/trigger"
)

type Decision int

const (
	Proceed Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "proceed"
}

// Evaluate skips triggers whose resource the store chose to ignore.
func Evaluate(t trigger.Trigger, cfg tenants.Config) Decision {
	if slices.Contains(cfg.IgnoreTriggers, t.Resource) {
		return Skip
	}
	return Proceed
}
