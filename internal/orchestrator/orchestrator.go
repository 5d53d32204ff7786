// Package orchestrator implements multi-domain orchestration (component
// C6): a fixed ExecutionPlan of domain invocations, sequenced in declared
// order, with explicit user-declared data flow between steps. There is no
// conditional execution, no looping, no retry, and no dynamic step
// selection -- the step list and binding graph are both fixed at
// construction time.
package orchestrator

import (
	"fmt"

	"hearth/internal/audit"
	"hearth/internal/handshake"
	"hearth/internal/herrors"
	"hearth/internal/jsonval"
	"hearth/internal/livemode"
	"hearth/internal/logging"
	"hearth/internal/pipeline"
)

// DomainInvocation is one declared step within an orchestrated plan.
type DomainInvocation struct {
	Index      int
	Domain     string
	Method     string
	Parameters jsonval.Value
}

// DataBinding is a declared data-flow edge from an earlier step's output
// into a later step's parameters.
type DataBinding struct {
	SourceStep   int
	SourcePath   string
	TargetStep   int
	TargetPath   string
	ExpectedType string
}

// ExecutionPlan is an immutable sequence of DomainInvocation plus an
// immutable list of DataBinding, validated at construction to form a DAG
// with edges strictly left to right in step order.
type ExecutionPlan struct {
	Steps    []DomainInvocation
	Bindings []DataBinding
}

// NewExecutionPlan validates the binding graph and returns an ExecutionPlan.
// Bindings whose target_step does not exceed source_step, or that name a
// step index out of range, are rejected -- cyclic or backward bindings
// never reach construction.
func NewExecutionPlan(steps []DomainInvocation, bindings []DataBinding) (*ExecutionPlan, error) {
	for _, b := range bindings {
		if b.SourceStep < 0 || b.SourceStep >= len(steps) {
			return nil, &herrors.BindingFailed{SourceStep: b.SourceStep, TargetStep: b.TargetStep, Reason: "source_step out of range"}
		}
		if b.TargetStep < 0 || b.TargetStep >= len(steps) {
			return nil, &herrors.BindingFailed{SourceStep: b.SourceStep, TargetStep: b.TargetStep, Reason: "target_step out of range"}
		}
		if b.TargetStep <= b.SourceStep {
			return nil, &herrors.BindingFailed{SourceStep: b.SourceStep, TargetStep: b.TargetStep, Reason: "target_step must be strictly greater than source_step"}
		}
	}
	return &ExecutionPlan{Steps: steps, Bindings: bindings}, nil
}

// FromDispatchPayload converts a handshake DispatchPayload -- C4's output --
// into an ExecutionPlan, applying bindings declared independently of the
// payload (the handshake carries no data-flow edges of its own). This is
// the seam that connects the compiled, approved plan to C6's dispatch loop.
func FromDispatchPayload(payload handshake.DispatchPayload, bindings []DataBinding) (*ExecutionPlan, error) {
	steps := make([]DomainInvocation, len(payload.Steps))
	for i, s := range payload.Steps {
		params, err := jsonval.FromAny(s.Parameters)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: converting step %d parameters: %w", i, err)
		}
		if params.Kind != jsonval.KindMap {
			params = jsonval.Map(nil)
		}
		steps[i] = DomainInvocation{
			Index:      i,
			Domain:     s.Domain,
			Method:     s.Method,
			Parameters: params,
		}
	}
	return NewExecutionPlan(steps, bindings)
}

// StepOutcome records one step's terminal dispatch outcome within a run.
type StepOutcome struct {
	Index   int
	Success bool
	Output  jsonval.Value
	Reason  string
}

// Run sequences plan's steps through the invocation pipeline, resolving
// inbound bindings before each step and recording a DATA_BINDING audit
// event for every binding resolution attempt. The first binding failure or
// pipeline denial aborts the remainder of the plan -- no subsequent step
// executes, and already-recorded outputs are left as the run's final state.
//
// gate is consulted before any step dispatches. A nil gate or a gate still
// in DRY_RUN blocks the entire plan: an EXECUTION_DENIED event is recorded
// and no step -- and so no EXECUTION_STARTED -- ever reaches the pipeline.
func Run(plan *ExecutionPlan, gate *livemode.Gate, pl *pipeline.Pipeline, auditLog *audit.Log, tokenHash, userID, triggerType, executionID string) []StepOutcome {
	if gate == nil || !gate.IsLive() {
		recordExecutionDenied(auditLog, executionID, userID, "DRY_RUN blocks execution")
		logging.Orchestrator("execution %s denied: DRY_RUN blocks execution", executionID)
		return nil
	}

	outputs := make(map[int]jsonval.Value, len(plan.Steps))
	outcomes := make([]StepOutcome, 0, len(plan.Steps))

	bindingsByTarget := make(map[int][]DataBinding)
	for _, b := range plan.Bindings {
		bindingsByTarget[b.TargetStep] = append(bindingsByTarget[b.TargetStep], b)
	}

	for _, step := range plan.Steps {
		params := step.Parameters.DeepCopy()
		if params.Kind != jsonval.KindMap {
			params = jsonval.Map(nil)
		}

		for _, b := range bindingsByTarget[step.Index] {
			resolved, err := resolveBinding(b, outputs)
			recordBindingEvent(auditLog, executionID, userID, b, err)
			if err != nil {
				logging.OrchestratorDebug("step %d: binding from step %d failed: %v", step.Index, b.SourceStep, err)
				outcomes = append(outcomes, StepOutcome{Index: step.Index, Success: false, Reason: err.Error()})
				return outcomes
			}
			params.SetPath(b.TargetPath, resolved)
		}

		outcome := pl.Dispatch(pipeline.Invocation{
			TokenHash:   tokenHash,
			UserID:      userID,
			TriggerType: triggerType,
			Domain:      step.Domain,
			Method:      step.Method,
			Parameters:  params,
			ExecutionID: executionID,
		})

		if !outcome.Success {
			outcomes = append(outcomes, StepOutcome{Index: step.Index, Success: false, Reason: outcome.Reason})
			logging.Orchestrator("step %d denied or failed, aborting remainder of plan: %s", step.Index, outcome.Reason)
			return outcomes
		}

		outputs[step.Index] = outcome.Result.Data
		outcomes = append(outcomes, StepOutcome{Index: step.Index, Success: true, Output: outcome.Result.Data})
	}

	return outcomes
}

// resolveBinding extracts source_path from the recorded output of
// source_step and type-checks it against expected_type.
func resolveBinding(b DataBinding, outputs map[int]jsonval.Value) (jsonval.Value, error) {
	sourceOutput, ok := outputs[b.SourceStep]
	if !ok {
		return jsonval.Value{}, &herrors.BindingFailed{SourceStep: b.SourceStep, TargetStep: b.TargetStep, Reason: "source step has no recorded output"}
	}
	value, ok := sourceOutput.Get(b.SourcePath)
	if !ok {
		return jsonval.Value{}, &herrors.BindingFailed{SourceStep: b.SourceStep, TargetStep: b.TargetStep, Reason: fmt.Sprintf("source_path %q did not resolve", b.SourcePath)}
	}
	if !value.MatchesType(b.ExpectedType) {
		return jsonval.Value{}, &herrors.BindingFailed{SourceStep: b.SourceStep, TargetStep: b.TargetStep, Reason: fmt.Sprintf("value at %q has kind %q, expected %q", b.SourcePath, value.Kind, b.ExpectedType)}
	}
	return value.DeepCopy(), nil
}

func recordExecutionDenied(auditLog *audit.Log, executionID, userID, reason string) {
	if auditLog == nil {
		return
	}
	_ = auditLog.Append(audit.Event{
		EventType:   audit.EventExecutionDenied,
		UserID:      userID,
		ExecutionID: executionID,
		Status:      audit.StatusDenied,
		Reason:      reason,
	})
}

func recordBindingEvent(auditLog *audit.Log, executionID, userID string, b DataBinding, err error) {
	if auditLog == nil {
		return
	}
	status := audit.StatusSuccess
	reason := ""
	if err != nil {
		status = audit.StatusDenied
		reason = err.Error()
	}
	_ = auditLog.Append(audit.Event{
		EventType:   audit.EventDataBinding,
		UserID:      userID,
		ExecutionID: executionID,
		Status:      status,
		Reason:      reason,
		AdditionalData: map[string]interface{}{
			"source_step": b.SourceStep,
			"target_step": b.TargetStep,
			"source_path": b.SourcePath,
			"target_path": b.TargetPath,
		},
	})
}
