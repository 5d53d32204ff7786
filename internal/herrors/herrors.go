// Package herrors defines the typed error taxonomy shared across HEARTH's
// governed execution spine (§7 of the governing spec). Every boundary in
// the spine returns one of these as a typed result rather than a bare
// error string, so callers can distinguish "denied" from "broken".
package herrors

import "fmt"

// ParseError reports a malformed STEP block during plan compilation.
type ParseError struct {
	Step    int
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at step %d, field %q: %s", e.Step, e.Field, e.Message)
}

// ValidationError reports a field-level constraint violation.
type ValidationError struct {
	Path    string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error at %q (rule %q): %s", e.Path, e.Rule, e.Message)
}

// BoundaryViolation reports an identity, trigger, domain, or method drawn
// from the autonomy deny-list.
type BoundaryViolation struct {
	Kind    string // "identity" | "trigger" | "domain" | "method"
	Value   string
	Message string
}

func (e *BoundaryViolation) Error() string {
	return fmt.Sprintf("boundary violation (%s=%q): %s", e.Kind, e.Value, e.Message)
}

// NotFound reports an unknown token hash.
type NotFound struct {
	Hash string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("token not found: %s", e.Hash)
}

// Revoked reports a token that has been revoked.
type Revoked struct {
	Hash string
}

func (e *Revoked) Error() string {
	return fmt.Sprintf("token revoked: %s", e.Hash)
}

// UserMismatch reports an invocation whose user does not own the token.
type UserMismatch struct {
	TokenUser      string
	InvocationUser string
}

func (e *UserMismatch) Error() string {
	return fmt.Sprintf("user mismatch: token owned by %q, invoked as %q", e.TokenUser, e.InvocationUser)
}

// TriggerNotAuthorized reports a trigger type outside the token's allowed set.
type TriggerNotAuthorized struct {
	TriggerType string
}

func (e *TriggerNotAuthorized) Error() string {
	return fmt.Sprintf("trigger type not authorized: %s", e.TriggerType)
}

// ScopeDenied reports a domain or method outside the token's scope.
type ScopeDenied struct {
	Domain string
	Method string
	Reason string
}

func (e *ScopeDenied) Error() string {
	return fmt.Sprintf("scope denied for %s.%s: %s", e.Domain, e.Method, e.Reason)
}

// ResourceExhausted reports one of the four resource-limit failures.
type ResourceExhausted struct {
	Limit  string // "max_invocations" | "max_tokens_per_response" | "max_total_tokens" | "max_frequency"
	Detail string
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("resource exhausted (%s): %s", e.Limit, e.Detail)
}

// HandshakeInvalid reports a missing plan, approver, or snapshot, or an
// active LOCKDOWN.
type HandshakeInvalid struct {
	Reason string
}

func (e *HandshakeInvalid) Error() string {
	return fmt.Sprintf("handshake invalid: %s", e.Reason)
}

// AlreadyDispatched reports a one-shot violation.
type AlreadyDispatched struct {
	ExecutionID string
}

func (e *AlreadyDispatched) Error() string {
	return fmt.Sprintf("execution %s already dispatched", e.ExecutionID)
}

// BindingFailed reports a missing source value, type mismatch, or cyclic
// binding in an orchestrated plan.
type BindingFailed struct {
	SourceStep int
	TargetStep int
	Reason     string
}

func (e *BindingFailed) Error() string {
	return fmt.Sprintf("binding from step %d to step %d failed: %s", e.SourceStep, e.TargetStep, e.Reason)
}

// AuditWriteFailed reports a load-bearing audit log failure.
type AuditWriteFailed struct {
	Cause error
}

func (e *AuditWriteFailed) Error() string {
	return fmt.Sprintf("audit write failed: %v", e.Cause)
}

func (e *AuditWriteFailed) Unwrap() error { return e.Cause }

// DomainFailure reports that the domain collaborator returned success=false
// or raised during invocation.
type DomainFailure struct {
	Domain string
	Method string
	Reason string
}

func (e *DomainFailure) Error() string {
	return fmt.Sprintf("domain failure in %s.%s: %s", e.Domain, e.Method, e.Reason)
}
