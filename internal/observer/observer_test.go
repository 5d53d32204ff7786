package observer

import (
	"testing"

	"hearth/internal/jsonval"
	"hearth/internal/security"
)

func TestHashChainLinksConsecutiveEvents(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateSecure)
	o := New("exec-1", kernel, true)

	e0 := o.RecordEvent(StepEvent{EventType: StepStarted, StepIndex: 0, StepName: "apollo.analyze_habits", Payload: jsonval.Map(nil)})
	e1 := o.RecordEvent(StepEvent{EventType: StepCompleted, StepIndex: 0, StepName: "apollo.analyze_habits", Payload: jsonval.Map(nil)})

	if e0.PreviousEventHash != "" {
		t.Fatal("expected first event to have empty previous_event_hash")
	}
	if e1.PreviousEventHash != e0.SelfHash {
		t.Fatal("expected second event's previous_event_hash to equal first event's self_hash")
	}
}

func TestMarkCompletedIsTerminalAndIdempotent(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateSecure)
	o := New("exec-2", kernel, false)
	o.MarkCompleted("all steps succeeded", kernel)
	o.MarkFailed("should not override", kernel)

	record, err := o.Record()
	if err != nil {
		t.Fatal(err)
	}
	if record.Terminal != StateCompleted {
		t.Fatalf("expected terminal state to remain COMPLETED, got %s", record.Terminal)
	}
}

func TestRecordFailsBeforeTerminalState(t *testing.T) {
	o := New("exec-3", security.NewStaticKernel(security.StateSecure), false)
	if _, err := o.Record(); err == nil {
		t.Fatal("expected error requesting a record before a terminal state is reached")
	}
}

func TestPlanRollbackQuotesHintsVerbatim(t *testing.T) {
	o := New("exec-4", security.NewStaticKernel(security.StateSecure), false)
	o.MarkCompleted("done", security.NewStaticKernel(security.StateSecure))
	record, err := o.Record()
	if err != nil {
		t.Fatal(err)
	}

	planner := NewRollbackPlanner()
	scaffold := planner.PlanRollback(record, []string{"delete created calendar event E123"})
	if len(scaffold.RollbackHints) != 1 || scaffold.RollbackHints[0] != "delete created calendar event E123" {
		t.Fatalf("expected hint to be quoted verbatim, got %+v", scaffold.RollbackHints)
	}
	if !scaffold.IsRollbackPossible {
		t.Fatal("expected rollback to be possible with no irreversible effects")
	}
}

func TestPlanRollbackFalseOnIrreversibleEffect(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateSecure)
	o := New("exec-5", kernel, false)
	o.RecordEvent(StepEvent{
		EventType:             SideEffect,
		StepIndex:             0,
		SideEffectCategory:    CategoryNetwork,
		SideEffectDescription: "sent an email",
		Reversible:            false,
	})
	o.MarkCompleted("done", kernel)
	record, _ := o.Record()

	scaffold := NewRollbackPlanner().PlanRollback(record, []string{"no hints"})
	if scaffold.IsRollbackPossible {
		t.Fatal("expected rollback to be impossible given an irreversible side effect")
	}
	if len(scaffold.Warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(scaffold.Warnings))
	}
}

func TestPlanRollbackFalseOnSecurityEscalation(t *testing.T) {
	kernel := security.NewStaticKernel(security.StateSecure)
	o := New("exec-6", kernel, false)
	o.MarkIncompleteSecurityEscalation("compromised mid-flight", kernel)
	record, _ := o.Record()

	scaffold := NewRollbackPlanner().PlanRollback(record, nil)
	if scaffold.IsRollbackPossible {
		t.Fatal("expected rollback to be impossible after a security escalation termination")
	}
}
