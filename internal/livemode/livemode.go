// Package livemode implements the live-mode gate (component C3): a
// two-state switch between dry-run rehearsal and live dispatch, with an
// append-only transition log and automatic revert when the surrounding
// system's security posture degrades.
package livemode

import (
	"fmt"
	"sync"
	"time"

	"hearth/internal/audit"
	"hearth/internal/herrors"
	"hearth/internal/logging"
	"hearth/internal/security"
)

// State is a live-mode gate state.
type State string

const (
	StateDryRun State = "DRY_RUN"
	StateLive   State = "LIVE"
)

const automaticRevertReason = "security state degraded below SECURE/OPERATIONAL"

// Transition is an immutable, append-only record of a state change.
type Transition struct {
	Timestamp    time.Time
	FromState    State
	ToState      State
	Reason       string
	UserIdentity string
	Automatic    bool
}

// Gate is the live-mode switch. It always starts in DRY_RUN and records an
// automatic initialization transition before returning from New.
type Gate struct {
	mu      sync.Mutex
	state   State
	history []Transition
	kernel  security.Kernel
	log     *audit.Log
}

// New creates a Gate backed by kernel for security-state reads, recording
// the mandatory initialization transition into DRY_RUN. Every transition
// attempt -- including this one, and including rejections -- is recorded
// to log as an EventLiveModeTransition, if log is non-nil.
func New(kernel security.Kernel, log *audit.Log) *Gate {
	g := &Gate{
		state:  StateDryRun,
		kernel: kernel,
		log:    log,
	}
	t := Transition{
		Timestamp:    time.Now(),
		FromState:    StateDryRun,
		ToState:      StateDryRun,
		Reason:       "initialization",
		UserIdentity: "system",
		Automatic:    true,
	}
	g.history = append(g.history, t)
	g.recordTransition(t, audit.StatusSuccess)
	logging.LiveModeDebug("gate initialized in DRY_RUN")
	return g
}

// recordTransition appends an EventLiveModeTransition audit event for t. A
// failed audit write is logged but never blocks the gate's own in-memory
// transition log -- the gate's state machine is the authority on its own
// state, with the audit trail a best-effort mirror of it.
func (g *Gate) recordTransition(t Transition, status audit.Status) {
	if g.log == nil {
		return
	}
	reason := t.Reason
	if status == audit.StatusDenied && reason == "" {
		reason = "rejected"
	}
	if err := g.log.Append(audit.Event{
		EventType: audit.EventLiveModeTransition,
		UserID:    t.UserIdentity,
		Status:    status,
		Reason:    reason,
		AdditionalData: map[string]interface{}{
			"from_state": string(t.FromState),
			"to_state":   string(t.ToState),
			"automatic":  t.Automatic,
		},
	}); err != nil {
		logging.LiveModeDebug("failed to record live-mode transition to audit log: %v", err)
	}
}

// EnableLive transitions DRY_RUN -> LIVE. Both reason and userIdentity must
// be non-empty. Rejected when the current security state is not healthy.
func (g *Gate) EnableLive(reason, userIdentity string) error {
	if reason == "" {
		return &herrors.ValidationError{Path: "reason", Rule: "required", Message: "reason must not be empty"}
	}
	if userIdentity == "" {
		return &herrors.ValidationError{Path: "user_identity", Rule: "required", Message: "user_identity must not be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.kernel != nil && !g.kernel.CurrentSecurityState().IsHealthy() {
		degraded := g.kernel.CurrentSecurityState()
		g.recordTransition(Transition{
			Timestamp:    time.Now(),
			FromState:    g.state,
			ToState:      StateLive,
			Reason:       fmt.Sprintf("rejected: security state is %s", degraded),
			UserIdentity: userIdentity,
			Automatic:    false,
		}, audit.StatusDenied)
		return fmt.Errorf("livemode: cannot enable LIVE while security state is %s", degraded)
	}

	from := g.state
	t := Transition{
		Timestamp:    time.Now(),
		FromState:    from,
		ToState:      StateLive,
		Reason:       reason,
		UserIdentity: userIdentity,
		Automatic:    false,
	}
	g.state = StateLive
	g.history = append(g.history, t)
	g.recordTransition(t, audit.StatusSuccess)
	logging.LiveMode("transitioned %s -> LIVE by %s: %s", from, userIdentity, reason)
	return nil
}

// DisableLive transitions to DRY_RUN from either state; it is idempotent
// from DRY_RUN. automatic records whether the caller is the gate itself
// (via CheckSecurityAndRevertIfNeeded) rather than a user action.
func (g *Gate) DisableLive(reason, userIdentity string, automatic bool) error {
	if reason == "" {
		return &herrors.ValidationError{Path: "reason", Rule: "required", Message: "reason must not be empty"}
	}
	if userIdentity == "" {
		return &herrors.ValidationError{Path: "user_identity", Rule: "required", Message: "user_identity must not be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.state
	t := Transition{
		Timestamp:    time.Now(),
		FromState:    from,
		ToState:      StateDryRun,
		Reason:       reason,
		UserIdentity: userIdentity,
		Automatic:    automatic,
	}
	g.state = StateDryRun
	g.history = append(g.history, t)
	g.recordTransition(t, audit.StatusSuccess)
	logging.LiveModeDebug("transitioned %s -> DRY_RUN by %s (automatic=%v): %s", from, userIdentity, automatic, reason)
	return nil
}

// CheckSecurityAndRevertIfNeeded reads the kernel's current security state
// and, if it is unhealthy and the gate is currently LIVE, forcibly reverts
// to DRY_RUN with automatic=true and a canonical reason. It is a no-op
// otherwise.
func (g *Gate) CheckSecurityAndRevertIfNeeded() {
	if g.kernel == nil {
		return
	}
	state := g.kernel.CurrentSecurityState()
	if state.IsHealthy() {
		return
	}

	g.mu.Lock()
	isLive := g.state == StateLive
	g.mu.Unlock()
	if !isLive {
		return
	}

	_ = g.DisableLive(automaticRevertReason, "system", true)
}

// IsLive reports whether the gate is currently LIVE.
func (g *Gate) IsLive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StateLive
}

// IsDryRun reports whether the gate is currently DRY_RUN.
func (g *Gate) IsDryRun() bool {
	return !g.IsLive()
}

// GetState returns the current state.
func (g *Gate) GetState() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// GetTransitionHistory returns a deep copy of the append-only transition log.
func (g *Gate) GetTransitionHistory() []Transition {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Transition, len(g.history))
	copy(out, g.history)
	return out
}
