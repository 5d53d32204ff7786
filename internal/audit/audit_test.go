package audit

import "testing"

func TestAppendRejectsMissingFields(t *testing.T) {
	log := NewLog()
	if err := log.Append(Event{UserID: "alice", Status: StatusSuccess}); err == nil {
		t.Fatal("expected error for missing event_type")
	}
	if err := log.Append(Event{EventType: EventTokenIssued, Status: StatusSuccess}); err == nil {
		t.Fatal("expected error for missing user_id")
	}
	if err := log.Append(Event{EventType: EventTokenIssued, UserID: "alice"}); err == nil {
		t.Fatal("expected error for missing status")
	}
}

func TestAppendRejectsDeniedWithoutReason(t *testing.T) {
	log := NewLog()
	err := log.Append(Event{EventType: EventExecutionDenied, UserID: "alice", Status: StatusDenied})
	if err != ErrDeniedWithoutReason {
		t.Fatalf("expected ErrDeniedWithoutReason, got %v", err)
	}
}

func TestTimestampsAreStrictlyNonDecreasing(t *testing.T) {
	log := NewLog()
	for i := 0; i < 50; i++ {
		log.MustAppend(Event{EventType: EventTokenIssued, UserID: "alice", Status: StatusSuccess})
	}
	events := log.All()
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("timestamp decreased at index %d", i)
		}
	}
}

func TestAllReturnsDeepCopy(t *testing.T) {
	log := NewLog()
	log.MustAppend(Event{EventType: EventTokenIssued, UserID: "alice", Status: StatusSuccess})
	events := log.All()
	events[0].UserID = "mutated"
	again := log.All()
	if again[0].UserID != "alice" {
		t.Fatal("mutating a returned slice affected the log's internal state")
	}
}

func TestSuccessCompleteness(t *testing.T) {
	good := []Event{
		{EventType: EventTokenValidation, Status: StatusSuccess},
		{EventType: EventAuthorizationScope, Status: StatusSuccess},
		{EventType: EventResourceLimitCheck, Status: StatusSuccess},
		{EventType: EventExecutionStarted, Status: StatusStarted},
		{EventType: EventExecutionCompleted, Status: StatusSuccess},
	}
	if !SatisfiesSuccessCompleteness(good) {
		t.Fatal("expected complete success sequence to satisfy invariant")
	}

	outOfOrder := []Event{
		{EventType: EventAuthorizationScope, Status: StatusSuccess},
		{EventType: EventTokenValidation, Status: StatusSuccess},
		{EventType: EventResourceLimitCheck, Status: StatusSuccess},
		{EventType: EventExecutionStarted, Status: StatusStarted},
		{EventType: EventExecutionCompleted, Status: StatusSuccess},
	}
	if SatisfiesSuccessCompleteness(outOfOrder) {
		t.Fatal("expected out-of-order sequence to fail invariant")
	}

	missing := good[:4]
	if SatisfiesSuccessCompleteness(missing) {
		t.Fatal("expected incomplete sequence to fail invariant")
	}
}

func TestDenialCompleteness(t *testing.T) {
	good := []Event{
		{EventType: EventTokenValidation, Status: StatusSuccess},
		{EventType: EventExecutionDenied, Status: StatusDenied, Reason: "scope denied"},
	}
	if !SatisfiesDenialCompleteness(good) {
		t.Fatal("expected denial sequence to satisfy invariant")
	}

	startedFirst := []Event{
		{EventType: EventExecutionStarted, Status: StatusStarted},
		{EventType: EventExecutionDenied, Status: StatusDenied, Reason: "late denial"},
	}
	if SatisfiesDenialCompleteness(startedFirst) {
		t.Fatal("expected EXECUTION_STARTED before EXECUTION_DENIED to fail invariant")
	}

	duplicate := []Event{
		{EventType: EventExecutionDenied, Status: StatusDenied, Reason: "a"},
		{EventType: EventExecutionDenied, Status: StatusDenied, Reason: "b"},
	}
	if SatisfiesDenialCompleteness(duplicate) {
		t.Fatal("expected duplicate EXECUTION_DENIED to fail invariant")
	}
}
