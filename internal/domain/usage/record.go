// Package usage defines the per-session token usage record.
package usage

import "github.com/WDelesposti/tokie/internal/domain/usage/plan"

// Record is the aggregate usage state for one logical session.
// The invariant totalTokens == inputTokens + outputTokens holds after every
// mutation; all mutators recompute the total.
//
// Records are copied by value when handed out as snapshots, so a notified
// consumer can never observe a later mutation.
type Record struct {
	sessionID    string
	sessionStart int64 // unix millis, set once at creation
	plan         plan.Type
	inputTokens  int
	outputTokens int
	totalTokens  int
	maxTokens    int
	syncing      bool
}

// New creates a fresh record for a session.
func New(sessionID string, startMillis int64, p plan.Type) Record {
	return Record{
		sessionID:    sessionID,
		sessionStart: startMillis,
		plan:         p,
		maxTokens:    p.MaxTokens(),
	}
}

// Restore rebuilds a record from persisted state. The total is recomputed
// rather than trusted, and the syncing flag is cleared: no write is in flight
// for a record that was just read.
func Restore(sessionID string, startMillis int64, p plan.Type, input, output int) Record {
	r := New(sessionID, startMillis, p)
	r.SetCounts(input, output)
	return r
}

// AddInput adds tokens to the input counter. Negative deltas are ignored.
func (r *Record) AddInput(n int) {
	if n < 0 {
		return
	}
	r.inputTokens += n
	r.totalTokens = r.inputTokens + r.outputTokens
}

// AddOutput adds tokens to the output counter. Negative deltas are ignored.
func (r *Record) AddOutput(n int) {
	if n < 0 {
		return
	}
	r.outputTokens += n
	r.totalTokens = r.inputTokens + r.outputTokens
}

// SetCounts replaces both counters, used by the settlement recount.
// Negative values are clamped to zero.
func (r *Record) SetCounts(input, output int) {
	r.inputTokens = max(input, 0)
	r.outputTokens = max(output, 0)
	r.totalTokens = r.inputTokens + r.outputTokens
}

// SetSyncing flags whether a persistence write is in flight. Advisory only.
func (r *Record) SetSyncing(v bool) { r.syncing = v }

// SessionID returns the stable session key. Empty for transient records.
func (r Record) SessionID() string { return r.sessionID }

// SessionStart returns the creation timestamp (unix millis).
func (r Record) SessionStart() int64 { return r.sessionStart }

// Plan returns the subscription plan.
func (r Record) Plan() plan.Type { return r.plan }

// InputTokens returns tokens attributed to user messages.
func (r Record) InputTokens() int { return r.inputTokens }

// OutputTokens returns tokens attributed to assistant messages.
func (r Record) OutputTokens() int { return r.outputTokens }

// TotalTokens returns the combined count.
func (r Record) TotalTokens() int { return r.totalTokens }

// MaxTokens returns the plan-derived token budget.
func (r Record) MaxTokens() int { return r.maxTokens }

// Syncing reports whether a persistence write is in flight.
func (r Record) Syncing() bool { return r.syncing }

// Remaining returns the unspent part of the budget, never negative.
func (r Record) Remaining() int {
	return max(r.maxTokens-r.totalTokens, 0)
}
