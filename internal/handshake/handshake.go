// Package handshake implements the approval/execution handshake (component
// C4): validating an approved plan against the current security posture,
// translating it into an immutable dispatch payload, and enforcing
// one-shot dispatch semantics via a monotone state machine.
package handshake

import (
	"time"

	"hearth/internal/audit"
	"hearth/internal/herrors"
	"hearth/internal/logging"
	"hearth/internal/plan"
	"hearth/internal/security"
)

// State is a point in an ExecutionRequest's one-shot lifecycle.
type State string

const (
	StatePending   State = "PENDING"
	StateExecuting State = "EXECUTING"
	StateExecuted  State = "EXECUTED"
	StateFailed    State = "FAILED"
)

// ApprovalRequest is the user-facing approval record the handshake
// validates against the current security snapshot.
type ApprovalRequest struct {
	SecuritySummary map[string]string
}

// ExecutionRequest is the immutable input to the handshake, plus the
// request's own mutable state machine tracking its one-shot dispatch.
type ExecutionRequest struct {
	ExecutionID             string
	PlanDraft               *plan.PlanDraft
	ApprovalRequest         *ApprovalRequest
	ApprovalTimestamp       time.Time
	ApproverIdentity        string
	SecuritySummarySnapshot map[string]string
	ExecutionContext        map[string]string

	state State
}

// Validate rejects an ExecutionRequest per §4.4: missing plan, missing
// approver identity, missing security snapshot, active LOCKDOWN, or a
// disagreement between the approval's security summary and the current
// snapshot's state field.
func Validate(req *ExecutionRequest, kernel security.Kernel) error {
	if req.PlanDraft == nil {
		return &herrors.HandshakeInvalid{Reason: "plan_draft is missing"}
	}
	if req.ApproverIdentity == "" {
		return &herrors.HandshakeInvalid{Reason: "approver_identity is empty"}
	}
	if req.SecuritySummarySnapshot == nil {
		return &herrors.HandshakeInvalid{Reason: "security_summary_snapshot is missing"}
	}
	if kernel != nil && kernel.CurrentSecurityState() == security.StateLockdown {
		return &herrors.HandshakeInvalid{Reason: "security state is LOCKDOWN"}
	}
	if req.ApprovalRequest != nil {
		approvedState := req.ApprovalRequest.SecuritySummary["state"]
		currentState := req.SecuritySummarySnapshot["state"]
		if approvedState != currentState {
			return &herrors.HandshakeInvalid{Reason: "approval security summary disagrees with current snapshot on state"}
		}
	}
	return nil
}

// StepRecord is one entry in a dispatch payload.
type StepRecord struct {
	Domain               string
	Method               string
	Parameters           map[string]interface{}
	RequiredCapabilities []string
	EstimatedDurationSec int
}

// DispatchPayload is the handshake's immutable output: a pure function of
// (ExecutionRequest, user_id, token_hash).
type DispatchPayload struct {
	PlanID           string
	Steps            []StepRecord
	AggregatedRisk   plan.RiskLevel
	ApproverIdentity string
	UserID           string
	TokenHash        string
}

// facultyRoute names the domain and method a faculty is dispatched through.
type facultyRoute struct {
	Domain string
	Method string
}

// facultyRouting maps every known plan.Faculty to the leaf domain and method
// that carries it out. pluto (the financial ledger domain) has no entry: no
// faculty is scoped to it, so it is never a dispatch target here.
var facultyRouting = map[plan.Faculty]facultyRoute{
	plan.FacultyReadKnowledge:    {Domain: "apollo", Method: "query_knowledge"},
	plan.FacultyReadMemory:       {Domain: "apollo", Method: "recall_memory"},
	plan.FacultyReadCalendar:     {Domain: "hermes", Method: "read_calendar"},
	plan.FacultyAnalyzeCode:      {Domain: "hephaestus", Method: "analyze_code"},
	plan.FacultyAnalyzeHabits:    {Domain: "apollo", Method: "analyze_habits"},
	plan.FacultyAnalyzeSentiment: {Domain: "dionysus", Method: "analyze_sentiment"},
	plan.FacultyPlanSchedule:     {Domain: "hermes", Method: "draft_schedule"},
	plan.FacultySynthesizeMsg:    {Domain: "hermes", Method: "synthesize_message"},
}

// Translate produces the Stage-4 dispatch payload. It performs no I/O and
// has no side effects; identical arguments always produce an identical
// payload.
func Translate(req *ExecutionRequest, userID, tokenHash string) DispatchPayload {
	steps := make([]StepRecord, len(req.PlanDraft.DerivedSteps))
	for i, s := range req.PlanDraft.DerivedSteps {
		route := facultyRouting[s.Faculty]
		steps[i] = StepRecord{
			Domain:               route.Domain,
			Method:               route.Method,
			Parameters:           s.Parameters.ToAny().(map[string]interface{}),
			RequiredCapabilities: s.RequiredCapabilities,
			EstimatedDurationSec: s.EstimatedDurationSec,
		}
	}
	return DispatchPayload{
		PlanID:           req.PlanDraft.DraftID,
		Steps:            steps,
		AggregatedRisk:   req.PlanDraft.EstimatedRiskLevel,
		ApproverIdentity: req.ApproverIdentity,
		UserID:           userID,
		TokenHash:        tokenHash,
	}
}

// New constructs an ExecutionRequest in its initial PENDING state.
func New(executionID string, draft *plan.PlanDraft, approval *ApprovalRequest, approverIdentity string, snapshot map[string]string) *ExecutionRequest {
	return &ExecutionRequest{
		ExecutionID:             executionID,
		PlanDraft:               draft,
		ApprovalRequest:         approval,
		ApprovalTimestamp:       time.Now(),
		ApproverIdentity:        approverIdentity,
		SecuritySummarySnapshot: snapshot,
		state:                   StatePending,
	}
}

// State returns the request's current lifecycle state.
func (r *ExecutionRequest) State() State {
	return r.state
}

// MarkExecuting transitions PENDING -> EXECUTING. Any other current state
// fails with AlreadyDispatched and, if log is non-nil, records
// OPERATION_ABORTED.
func (r *ExecutionRequest) MarkExecuting(log *audit.Log) error {
	if r.state != StatePending {
		if log != nil {
			_ = log.Append(audit.Event{
				EventType:   audit.EventOperationAborted,
				UserID:      r.ApproverIdentity,
				ExecutionID: r.ExecutionID,
				Status:      audit.StatusDenied,
				Reason:      "execution already dispatched",
			})
		}
		return &herrors.AlreadyDispatched{ExecutionID: r.ExecutionID}
	}
	r.state = StateExecuting
	logging.HandshakeDebug("execution %s: PENDING -> EXECUTING", r.ExecutionID)
	return nil
}

// MarkExecuted transitions EXECUTING -> EXECUTED.
func (r *ExecutionRequest) MarkExecuted() error {
	if r.state != StateExecuting {
		return &herrors.HandshakeInvalid{Reason: "cannot mark executed from state " + string(r.state)}
	}
	r.state = StateExecuted
	logging.HandshakeDebug("execution %s: EXECUTING -> EXECUTED", r.ExecutionID)
	return nil
}

// MarkFailed transitions PENDING or EXECUTING -> FAILED.
func (r *ExecutionRequest) MarkFailed() error {
	if r.state != StatePending && r.state != StateExecuting {
		return &herrors.HandshakeInvalid{Reason: "cannot mark failed from state " + string(r.state)}
	}
	from := r.state
	r.state = StateFailed
	logging.HandshakeDebug("execution %s: %s -> FAILED", r.ExecutionID, from)
	return nil
}
