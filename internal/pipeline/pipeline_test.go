package pipeline

import (
	"testing"

	"hearth/internal/audit"
	"hearth/internal/domain"
	"hearth/internal/jsonval"
	"hearth/internal/token"
)

func newTestPipeline(t *testing.T) (*Pipeline, *audit.Log, *token.Registry) {
	t.Helper()
	log := audit.NewLog()
	tokens := token.NewRegistry(log)
	domains := domain.NewRegistry()
	domain.RegisterLeafDomains(domains)
	return New(tokens, log, domains), log, tokens
}

func issueTestToken(t *testing.T, tokens *token.Registry) *token.CapabilityToken {
	t.Helper()
	tok, err := tokens.Issue(token.CapabilityToken{
		UserID:          "alice",
		Capability:      "schedule",
		DomainScope:     []string{"hermes"},
		MethodScope:     map[string][]string{"hermes": {"draft_schedule"}},
		DurationSeconds: 300,
		ResourceLimits: token.ResourceLimits{
			MaxInvocations:       5,
			MaxTokensPerResponse: 100,
			MaxTotalTokens:       500,
			MaxFrequency:         "5 per 60 seconds",
		},
		AllowedTriggerTypes: []string{"direct_command"},
		IssuedBy:            "alice",
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return tok
}

func TestDispatchHappyPath(t *testing.T) {
	p, log, tokens := newTestPipeline(t)
	tok := issueTestToken(t, tokens)

	outcome := p.Dispatch(Invocation{
		TokenHash:      tok.Hash(),
		UserID:         "alice",
		TriggerType:    "direct_command",
		Domain:         "hermes",
		Method:         "draft_schedule",
		Parameters:     jsonval.Map(nil),
		ResponseTokens: 10,
		ExecutionID:    "exec-1",
	})
	if !outcome.Success {
		t.Fatalf("expected success, got reason %q", outcome.Reason)
	}

	events := log.ForExecution("exec-1")
	if !audit.SatisfiesSuccessCompleteness(events) {
		t.Fatalf("expected success completeness invariant to hold, got %+v", events)
	}
}

func TestDispatchDeniesRevokedToken(t *testing.T) {
	p, log, tokens := newTestPipeline(t)
	tok := issueTestToken(t, tokens)
	if err := tokens.Revoke(tok.Hash()); err != nil {
		t.Fatal(err)
	}

	outcome := p.Dispatch(Invocation{
		TokenHash:   tok.Hash(),
		UserID:      "alice",
		TriggerType: "direct_command",
		Domain:      "hermes",
		Method:      "draft_schedule",
		Parameters:  jsonval.Map(nil),
		ExecutionID: "exec-2",
	})
	if outcome.Success {
		t.Fatal("expected denial for revoked token")
	}
	events := log.ForExecution("exec-2")
	if !audit.SatisfiesDenialCompleteness(events) {
		t.Fatalf("expected denial completeness invariant to hold, got %+v", events)
	}
	if audit.HasEventType(events, audit.EventExecutionStarted) {
		t.Fatal("expected no EXECUTION_STARTED for a denied invocation")
	}
}

func TestDispatchDeniesUserMismatch(t *testing.T) {
	p, _, tokens := newTestPipeline(t)
	tok := issueTestToken(t, tokens)

	outcome := p.Dispatch(Invocation{
		TokenHash:   tok.Hash(),
		UserID:      "mallory",
		TriggerType: "direct_command",
		Domain:      "hermes",
		Method:      "draft_schedule",
		Parameters:  jsonval.Map(nil),
		ExecutionID: "exec-3",
	})
	if outcome.Success {
		t.Fatal("expected denial for user mismatch")
	}
}

func TestDispatchDeniesOutOfScopeMethod(t *testing.T) {
	p, _, tokens := newTestPipeline(t)
	tok := issueTestToken(t, tokens)

	outcome := p.Dispatch(Invocation{
		TokenHash:   tok.Hash(),
		UserID:      "alice",
		TriggerType: "direct_command",
		Domain:      "hermes",
		Method:      "send_message",
		Parameters:  jsonval.Map(nil),
		ExecutionID: "exec-4",
	})
	if outcome.Success {
		t.Fatal("expected denial for method outside scope")
	}
}

func TestDispatchDeniesExhaustedInvocations(t *testing.T) {
	p, _, tokens := newTestPipeline(t)
	tok, err := tokens.Issue(token.CapabilityToken{
		UserID:          "alice",
		Capability:      "schedule",
		DomainScope:     []string{"hermes"},
		MethodScope:     map[string][]string{"hermes": {"draft_schedule"}},
		DurationSeconds: 300,
		ResourceLimits: token.ResourceLimits{
			MaxInvocations:       1,
			MaxTokensPerResponse: 100,
			MaxTotalTokens:       500,
			MaxFrequency:         "5 per 60 seconds",
		},
		AllowedTriggerTypes: []string{"direct_command"},
		IssuedBy:            "alice",
	})
	if err != nil {
		t.Fatal(err)
	}

	first := p.Dispatch(Invocation{TokenHash: tok.Hash(), UserID: "alice", TriggerType: "direct_command", Domain: "hermes", Method: "draft_schedule", Parameters: jsonval.Map(nil), ExecutionID: "exec-5a"})
	if !first.Success {
		t.Fatalf("expected first invocation to succeed, got %q", first.Reason)
	}
	second := p.Dispatch(Invocation{TokenHash: tok.Hash(), UserID: "alice", TriggerType: "direct_command", Domain: "hermes", Method: "draft_schedule", Parameters: jsonval.Map(nil), ExecutionID: "exec-5b"})
	if second.Success {
		t.Fatal("expected second invocation to be denied by max_invocations")
	}
}

func TestDispatchDeniesBoundaryViolation(t *testing.T) {
	p, log, tokens := newTestPipeline(t)
	tok := issueTestToken(t, tokens)

	outcome := p.Dispatch(Invocation{
		TokenHash:   tok.Hash(),
		UserID:      "autonomy",
		TriggerType: "direct_command",
		Domain:      "hermes",
		Method:      "draft_schedule",
		Parameters:  jsonval.Map(nil),
		ExecutionID: "exec-6",
	})
	if outcome.Success {
		t.Fatal("expected denial for autonomy identity")
	}

	// A token whose scope names an autonomy-reserved method passes gates
	// V, S, R and K, so the denial for that method comes from gate B.
	scoped, err := tokens.Issue(token.CapabilityToken{
		UserID:          "alice",
		Capability:      "schedule",
		DomainScope:     []string{"hermes"},
		MethodScope:     map[string][]string{"hermes": {"draft_schedule", "grant_token"}},
		DurationSeconds: 300,
		ResourceLimits: token.ResourceLimits{
			MaxInvocations:       5,
			MaxTokensPerResponse: 100,
			MaxTotalTokens:       500,
			MaxFrequency:         "5 per 60 seconds",
		},
		AllowedTriggerTypes: []string{"direct_command"},
		IssuedBy:            "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	outcome = p.Dispatch(Invocation{TokenHash: scoped.Hash(), UserID: "alice", TriggerType: "direct_command", Domain: "hermes", Method: "grant_token", Parameters: jsonval.Map(nil), ExecutionID: "exec-6b"})
	if outcome.Success {
		t.Fatal("expected denial for autonomy-reserved method")
	}
	events := log.ForExecution("exec-6b")
	violation := audit.IndexOfFirst(events, audit.EventBoundaryViolation)
	denied := audit.IndexOfFirst(events, audit.EventExecutionDenied)
	if violation == -1 || denied == -1 || violation > denied {
		t.Fatalf("expected BOUNDARY_VIOLATION followed by EXECUTION_DENIED, got %+v", events)
	}
}

func TestRevokeDuringPipelineRaceDeniesAtGateK(t *testing.T) {
	p, log, tokens := newTestPipeline(t)
	tok := issueTestToken(t, tokens)
	_ = tokens.Revoke(tok.Hash())

	outcome := p.Dispatch(Invocation{
		TokenHash:   tok.Hash(),
		UserID:      "alice",
		TriggerType: "direct_command",
		Domain:      "hermes",
		Method:      "draft_schedule",
		Parameters:  jsonval.Map(nil),
		ExecutionID: "exec-7",
	})
	if outcome.Success {
		t.Fatal("expected denial")
	}
	events := log.ForExecution("exec-7")
	if audit.HasEventType(events, audit.EventExecutionStarted) {
		t.Fatal("expected no EXECUTION_STARTED when revoked before dispatch")
	}
	if reason, ok := p.gateK(Invocation{TokenHash: tok.Hash()}); ok || reason != "revoked" {
		t.Fatalf("expected gate K to deny the revoked token with reason %q, got ok=%v reason=%q", "revoked", ok, reason)
	}
}
