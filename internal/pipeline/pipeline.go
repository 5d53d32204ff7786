// Package pipeline implements the invocation pipeline (component C5): five
// ordered gates -- validation, scope, resource, revocation recheck,
// boundary -- guarding every domain dispatch, followed by the dispatch
// itself. Any gate failure aborts the invocation, emits EXECUTION_DENIED
// with a reason, and short-circuits every subsequent gate.
package pipeline

import (
	"hearth/internal/audit"
	"hearth/internal/boundary"
	"hearth/internal/domain"
	"hearth/internal/herrors"
	"hearth/internal/jsonval"
	"hearth/internal/logging"
	"hearth/internal/token"
)

// Invocation is one request to invoke a single (domain, method) pair under
// a named token.
type Invocation struct {
	TokenHash    string
	UserID       string
	TriggerType  string
	Domain       string
	Method       string
	Parameters   jsonval.Value
	ResponseTokens int
	ExecutionID  string
}

// Pipeline wires the gates to their collaborating registries, logs, and
// domain dispatch table.
type Pipeline struct {
	Tokens  *token.Registry
	Audit   *audit.Log
	Domains *domain.Registry
}

// New constructs a Pipeline over the given collaborators.
func New(tokens *token.Registry, auditLog *audit.Log, domains *domain.Registry) *Pipeline {
	return &Pipeline{Tokens: tokens, Audit: auditLog, Domains: domains}
}

// Outcome is the result of running Dispatch: either a successful domain
// Result, or a denial/failure reason. Exactly one of Result or Reason is
// meaningful, governed by Success.
type Outcome struct {
	Success bool
	Result  domain.Result
	Reason  string
}

func (p *Pipeline) deny(inv Invocation, reason string) Outcome {
	p.record(audit.Event{
		EventType:   audit.EventExecutionDenied,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusDenied,
		Reason:      reason,
	})
	logging.PipelineWarn("denied invocation domain=%s method=%s: %s", inv.Domain, inv.Method, reason)
	return Outcome{Success: false, Reason: reason}
}

func (p *Pipeline) record(e audit.Event) error {
	if p.Audit == nil {
		return nil
	}
	if err := p.Audit.Append(e); err != nil {
		return &herrors.AuditWriteFailed{Cause: err}
	}
	return nil
}

// Dispatch runs inv through gates V -> S -> R -> K -> B and, if every gate
// passes, calls the domain collaborator. It is fail-closed: any error or
// unmet predicate denies and short-circuits every later gate.
func (p *Pipeline) Dispatch(inv Invocation) Outcome {
	tok, reason, ok := p.gateV(inv)
	if !ok {
		return p.deny(inv, reason)
	}

	if reason, ok := p.gateS(inv, tok); !ok {
		return p.deny(inv, reason)
	}

	if reason, ok := p.gateR(inv); !ok {
		return p.deny(inv, reason)
	}

	if reason, ok := p.gateK(inv); !ok {
		return p.deny(inv, reason)
	}

	if reason, ok := p.gateB(inv); !ok {
		return p.deny(inv, reason)
	}

	return p.execute(inv, tok)
}

// gateV is Token validation: revocation, existence, user match, trigger
// authorization. On success it emits TOKEN_VALIDATION; on the first
// successful validation for this hash, the registry's MarkFirstUse records
// TOKEN_FIRST_USED.
func (p *Pipeline) gateV(inv Invocation) (*token.CapabilityToken, string, bool) {
	if p.Tokens.IsRevoked(inv.TokenHash) {
		return nil, "token is revoked", false
	}
	tok, err := p.Tokens.Get(inv.TokenHash)
	if err != nil {
		return nil, "token not found", false
	}
	if tok.UserID != inv.UserID {
		return nil, "invocation user does not match token user", false
	}
	if !tok.AllowsTrigger(inv.TriggerType) {
		return nil, "trigger type not authorized for this token", false
	}

	if err := p.record(audit.Event{
		EventType:   audit.EventTokenValidation,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusSuccess,
	}); err != nil {
		return nil, err.Error(), false
	}

	_, _ = p.Tokens.MarkFirstUse(inv.TokenHash)
	return tok, "", true
}

// gateS is Scope authorization: plain string equality on domain and method.
func (p *Pipeline) gateS(inv Invocation, tok *token.CapabilityToken) (string, bool) {
	if !tok.AllowsDomain(inv.Domain) {
		reason := "domain " + inv.Domain + " not in token's domain_scope"
		_ = p.record(audit.Event{
			EventType:   audit.EventAuthorizationScope,
			UserID:      inv.UserID,
			TokenHash:   inv.TokenHash,
			Domain:      inv.Domain,
			Method:      inv.Method,
			ExecutionID: inv.ExecutionID,
			Status:      audit.StatusDenied,
			Reason:      reason,
		})
		return reason, false
	}
	if !tok.AllowsMethod(inv.Domain, inv.Method) {
		reason := "method " + inv.Method + " not in token's method_scope for domain " + inv.Domain
		_ = p.record(audit.Event{
			EventType:   audit.EventAuthorizationScope,
			UserID:      inv.UserID,
			TokenHash:   inv.TokenHash,
			Domain:      inv.Domain,
			Method:      inv.Method,
			ExecutionID: inv.ExecutionID,
			Status:      audit.StatusDenied,
			Reason:      reason,
		})
		return reason, false
	}

	_ = p.record(audit.Event{
		EventType:   audit.EventAuthorizationScope,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusSuccess,
	})
	return "", true
}

// gateR is Resource limits. The actual limit check and counter increment
// happen together in token.Registry.CheckAndRecordUsage so they can never
// race; counters are only finalized here, before the domain call, per
// §4.5's "consumed at dispatch" rule for invocation_count.
func (p *Pipeline) gateR(inv Invocation) (string, bool) {
	if err := p.Tokens.CheckAndRecordUsage(inv.TokenHash, inv.ResponseTokens); err != nil {
		_ = p.record(audit.Event{
			EventType:   audit.EventResourceLimitCheck,
			UserID:      inv.UserID,
			TokenHash:   inv.TokenHash,
			Domain:      inv.Domain,
			Method:      inv.Method,
			ExecutionID: inv.ExecutionID,
			Status:      audit.StatusDenied,
			Reason:      err.Error(),
		})
		return err.Error(), false
	}

	_ = p.record(audit.Event{
		EventType:   audit.EventResourceLimitCheck,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusSuccess,
	})
	return "", true
}

// gateK is the Revocation recheck, closing the revoke-during-pipeline race.
func (p *Pipeline) gateK(inv Invocation) (string, bool) {
	if p.Tokens.IsRevoked(inv.TokenHash) {
		return "revoked", false
	}
	return "", true
}

// gateB is Boundary enforcement: caller identity, target domain/method
// against the autonomy deny-list.
func (p *Pipeline) gateB(inv Invocation) (string, bool) {
	if boundary.IsAutonomyIdentity(inv.UserID) {
		reason := "caller is an autonomy identity"
		p.recordBoundaryViolation(inv, reason)
		return reason, false
	}
	if boundary.IsAutonomyDomain(inv.Domain) {
		reason := "domain is an autonomy domain"
		p.recordBoundaryViolation(inv, reason)
		return reason, false
	}
	if boundary.IsAutonomyMethod(inv.Method) {
		reason := "method is an autonomy-reserved method"
		p.recordBoundaryViolation(inv, reason)
		return reason, false
	}
	return "", true
}

func (p *Pipeline) recordBoundaryViolation(inv Invocation, reason string) {
	_ = p.record(audit.Event{
		EventType:   audit.EventBoundaryViolation,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusDenied,
		Reason:      reason,
	})
}

// execute calls the domain collaborator with frozen parameters and records
// EXECUTION_STARTED / EXECUTION_COMPLETED. No result path bypasses the log.
func (p *Pipeline) execute(inv Invocation, tok *token.CapabilityToken) Outcome {
	if err := p.record(audit.Event{
		EventType:   audit.EventExecutionStarted,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusStarted,
	}); err != nil {
		return Outcome{Success: false, Reason: err.Error()}
	}

	frozen := inv.Parameters.DeepCopy()
	result := p.Domains.Invoke(inv.Domain, inv.Method, frozen)

	if !result.Success {
		_ = p.record(audit.Event{
			EventType:   audit.EventExecutionCompleted,
			UserID:      inv.UserID,
			TokenHash:   inv.TokenHash,
			Domain:      inv.Domain,
			Method:      inv.Method,
			ExecutionID: inv.ExecutionID,
			Status:      audit.StatusFailed,
			Reason:      result.Error,
		})
		logging.Pipeline("execution %s failed in %s.%s: %s", inv.ExecutionID, inv.Domain, inv.Method, result.Error)
		return Outcome{Success: false, Result: result, Reason: result.Error}
	}

	_ = p.record(audit.Event{
		EventType:   audit.EventExecutionCompleted,
		UserID:      inv.UserID,
		TokenHash:   inv.TokenHash,
		Domain:      inv.Domain,
		Method:      inv.Method,
		ExecutionID: inv.ExecutionID,
		Status:      audit.StatusSuccess,
	})
	return Outcome{Success: true, Result: result}
}
