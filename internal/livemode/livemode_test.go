package livemode

import (
	"testing"

	"hearth/internal/audit"
	"hearth/internal/security"
)

func TestNewStartsInDryRunWithInitTransition(t *testing.T) {
	g := New(security.NewStaticKernel(security.StateSecure), audit.NewLog())
	if !g.IsDryRun() {
		t.Fatal("expected gate to start in DRY_RUN")
	}
	history := g.GetTransitionHistory()
	if len(history) != 1 {
		t.Fatalf("expected exactly one initialization transition, got %d", len(history))
	}
	if !history[0].Automatic {
		t.Fatal("expected initialization transition to be automatic")
	}
}

func TestEnableLiveRequiresReasonAndIdentity(t *testing.T) {
	g := New(security.NewStaticKernel(security.StateSecure), audit.NewLog())
	if err := g.EnableLive("", "alice"); err == nil {
		t.Fatal("expected error for empty reason")
	}
	if err := g.EnableLive("go live", ""); err == nil {
		t.Fatal("expected error for empty user_identity")
	}
}

func TestEnableLiveRejectedWhenSecurityDegraded(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateDegraded)
	g := New(kernel, audit.NewLog())
	if err := g.EnableLive("go live", "alice"); err == nil {
		t.Fatal("expected rejection while security state is degraded")
	}
	if g.IsLive() {
		t.Fatal("gate should remain DRY_RUN after rejected enable")
	}
}

func TestEnableLiveSucceedsWhenHealthy(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateSecure)
	g := New(kernel, audit.NewLog())
	if err := g.EnableLive("go live", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.IsLive() {
		t.Fatal("expected gate to be LIVE")
	}
}

func TestDisableLiveIsIdempotentFromDryRun(t *testing.T) {
	g := New(security.NewStaticKernel(security.StateSecure), audit.NewLog())
	if err := g.DisableLive("no-op", "alice", false); err != nil {
		t.Fatalf("unexpected error disabling from DRY_RUN: %v", err)
	}
	if !g.IsDryRun() {
		t.Fatal("expected gate to remain DRY_RUN")
	}
}

func TestCheckSecurityAndRevertIfNeeded(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateSecure)
	g := New(kernel, audit.NewLog())
	if err := g.EnableLive("go live", "alice"); err != nil {
		t.Fatal(err)
	}

	kernel.SetState(security.StateCompromised)
	g.CheckSecurityAndRevertIfNeeded()

	if g.IsLive() {
		t.Fatal("expected gate to auto-revert to DRY_RUN on compromised security state")
	}
	history := g.GetTransitionHistory()
	last := history[len(history)-1]
	if !last.Automatic {
		t.Fatal("expected auto-revert transition to be marked automatic")
	}
}

func TestCheckSecurityAndRevertIsNoOpWhenAlreadyDryRun(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateCompromised)
	g := New(kernel, audit.NewLog())
	before := len(g.GetTransitionHistory())
	g.CheckSecurityAndRevertIfNeeded()
	after := len(g.GetTransitionHistory())
	if before != after {
		t.Fatal("expected no new transition when already DRY_RUN")
	}
}

func TestEnableLiveRejectionIsAudited(t *testing.T) {
	log := audit.NewLog()
	g := New(security.NewStaticKernel(security.StateDegraded), log)
	if err := g.EnableLive("go live", "alice"); err == nil {
		t.Fatal("expected rejection while security state is degraded")
	}
	events := log.All()
	denied := events[len(events)-1]
	if denied.EventType != audit.EventLiveModeTransition || denied.Status != audit.StatusDenied {
		t.Fatalf("expected a denied EventLiveModeTransition, got %+v", denied)
	}
	if denied.Reason == "" {
		t.Fatal("expected a non-empty reason on the denied transition")
	}
}

func TestEnableLiveSuccessIsAudited(t *testing.T) {
	log := audit.NewLog()
	g := New(security.NewStaticKernel(security.StateSecure), log)
	if err := g.EnableLive("go live", "alice"); err != nil {
		t.Fatal(err)
	}
	if !audit.HasEventType(log.All(), audit.EventLiveModeTransition) {
		t.Fatal("expected EnableLive to record an EventLiveModeTransition")
	}
	last := log.All()[len(log.All())-1]
	if last.Status != audit.StatusSuccess {
		t.Fatalf("expected successful transition to be recorded as success, got %s", last.Status)
	}
}

func TestTransitionHistoryIsDeepCopy(t *testing.T) {
	g := New(security.NewStaticKernel(security.StateSecure), audit.NewLog())
	history := g.GetTransitionHistory()
	history[0].Reason = "mutated"
	again := g.GetTransitionHistory()
	if again[0].Reason == "mutated" {
		t.Fatal("mutating returned history affected gate's internal state")
	}
}
