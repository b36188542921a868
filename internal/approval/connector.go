package approval

import (
	"context"
	"time"

	"github.com/radiuskernel/radius/internal/policy"
)

// Connector delivers a challenge prompt through one channel (chat, HTTP
// bridge, ...) and blocks until approved, denied, timed out, or erroring.
// approvalID is an opaque correlation id the connector embeds in any
// callback it exposes to the human. event is supplied for connectors (the
// HTTP bridge) that forward structured context alongside the human-readable
// prompt; chat connectors may ignore it.
type Connector interface {
	Resolve(ctx context.Context, approvalID, prompt string, deadline time.Time, event *policy.Event) Outcome
}
