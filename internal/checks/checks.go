// Package checks implements the three async check adapters (agent, HTTP,
// SNMP) described in spec.md §4.5. Each adapter wraps protocol-specific
// asynchronous machinery behind a common Dispatch/on-complete contract; the
// reactor (internal/poller) drains completions uniformly regardless of
// which adapter produced them, per spec.md §9's "tagged value (Agent | Http
// | Snmp) holding a typed completion channel" guidance.
package checks

import (
	"context"
	"time"

	"firestige.xyz/pollcore/internal/model"
)

// Completion is the typed result handed back on async completion. It plays
// the role of the source's AGENT_RESULT plus protocol-specific error
// detail, already coerced into the errcode taxonomy (spec.md §7).
type Completion struct {
	Item    model.Item
	ErrCode model.ErrCode
	Value   string // raw textual result, only meaningful when ErrCode == SUCCEED
	Err     string // human-readable error, meaningful otherwise
}

// DispatchArgs bundles the per-check parameters common to all adapters
// (spec.md §4.5 dispatch signature).
type DispatchArgs struct {
	Item     model.Item
	Timeout  time.Duration
	SourceIP string
}

// Adapter is the common shape of the three async check adapters. Dispatch
// returns synchronously only to report a check that could not even be
// launched (e.g. CONFIG_ERROR from an invalid item parameter, or
// NOTSUPPORTED); model.SUCCEED here means "launched", not "completed" — the
// real outcome always arrives later via onComplete. This mirrors spec.md
// §4.3 step 4: "items that failed dispatch synchronously with a typed
// error" are handled inline by the reactor, everything else completes
// asynchronously.
type Adapter interface {
	Dispatch(ctx context.Context, args DispatchArgs, onComplete func(Completion)) model.ErrCode

	// Clean releases any protocol state or borrowed handles associated
	// with a completion context. Paired with Dispatch per spec.md §4.5.
	Clean(c Completion)
}
