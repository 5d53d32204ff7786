// Package observer implements the execution observer and rollback
// scaffold (component C8): a per-execution hash-linked record of step
// events and side effects, terminal-state marking, and read-only rollback
// advisories that are never executed.
package observer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"hearth/internal/herrors"
	"hearth/internal/jsonval"
	"hearth/internal/logging"
	"hearth/internal/security"
)

// StepEventType enumerates the events recorded inside one execution.
type StepEventType string

const (
	StepStarted   StepEventType = "STEP_STARTED"
	StepCompleted StepEventType = "STEP_COMPLETED"
	StepFailed    StepEventType = "STEP_FAILED"
	SideEffect    StepEventType = "SIDE_EFFECT"
)

// SideEffectCategory classifies the kind of effect a SIDE_EFFECT event
// describes.
type SideEffectCategory string

const (
	CategoryFileSystem   SideEffectCategory = "FILE_SYSTEM"
	CategoryConfiguration SideEffectCategory = "CONFIGURATION"
	CategoryDataMutation SideEffectCategory = "DATA_MUTATION"
	CategorySystem       SideEffectCategory = "SYSTEM"
	CategoryNetwork      SideEffectCategory = "NETWORK"
)

// StepEvent is an append-only, hash-linked record inside one execution.
type StepEvent struct {
	EventType         StepEventType
	StepIndex         int
	StepName          string
	Payload           jsonval.Value
	ErrorMessage      string
	Timestamp         time.Time
	PreviousEventHash string
	SelfHash          string

	// Side-effect fields, populated only when EventType == SideEffect.
	SideEffectCategory    SideEffectCategory
	SideEffectDescription string
	Reversible            bool
}

func (e StepEvent) canonicalForm() []byte {
	payloadBytes, _ := e.Payload.MarshalJSON()
	payload := struct {
		EventType             StepEventType      `json:"event_type"`
		StepIndex             int                `json:"step_index"`
		StepName              string             `json:"step_name"`
		Payload               json.RawMessage    `json:"payload"`
		ErrorMessage          string             `json:"error_message"`
		TimestampUnixNano     int64              `json:"timestamp_unix_nano"`
		PreviousEventHash     string             `json:"previous_event_hash"`
		SideEffectCategory    SideEffectCategory `json:"side_effect_category,omitempty"`
		SideEffectDescription string             `json:"side_effect_description,omitempty"`
		Reversible            bool               `json:"reversible,omitempty"`
	}{
		EventType:             e.EventType,
		StepIndex:             e.StepIndex,
		StepName:              e.StepName,
		Payload:               payloadBytes,
		ErrorMessage:          e.ErrorMessage,
		TimestampUnixNano:     e.Timestamp.UnixNano(),
		PreviousEventHash:     e.PreviousEventHash,
		SideEffectCategory:    e.SideEffectCategory,
		SideEffectDescription: e.SideEffectDescription,
		Reversible:            e.Reversible,
	}
	data, _ := json.Marshal(payload)
	return data
}

func computeSelfHash(e StepEvent) string {
	sum := sha256.Sum256(e.canonicalForm())
	return hex.EncodeToString(sum[:])
}

// SecuritySnapshot is captured pre- and post-execution.
type SecuritySnapshot struct {
	SecurityState security.State
	Timestamp     time.Time
	Context       map[string]string
}

// TerminalState is the observer's view of an execution's end state.
type TerminalState string

const (
	StateRunning                      TerminalState = "RUNNING"
	StateCompleted                    TerminalState = "COMPLETED"
	StateFailed                       TerminalState = "FAILED"
	StateIncompleteSecurityEscalation TerminalState = "INCOMPLETE_SECURITY_ESCALATION"
)

// ExecutionRecord is the observer's immutable, content-addressable output
// for one execution.
type ExecutionRecord struct {
	ExecutionID  string
	Events       []StepEvent
	PreSnapshot  SecuritySnapshot
	PostSnapshot SecuritySnapshot
	Terminal     TerminalState
	TerminalReason string
	LiveAtDispatch bool
}

// Hash computes a content-addressed identity over the record's fields.
func (r ExecutionRecord) Hash() string {
	eventHashes := make([]string, len(r.Events))
	for i, e := range r.Events {
		eventHashes[i] = e.SelfHash
	}
	payload := struct {
		ExecutionID    string   `json:"execution_id"`
		EventHashes    []string `json:"event_hashes"`
		Terminal       string   `json:"terminal"`
		TerminalReason string   `json:"terminal_reason"`
		LiveAtDispatch bool     `json:"live_at_dispatch"`
	}{
		ExecutionID:    r.ExecutionID,
		EventHashes:    eventHashes,
		Terminal:       string(r.Terminal),
		TerminalReason: r.TerminalReason,
		LiveAtDispatch: r.LiveAtDispatch,
	}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Observer records one execution's StepEvents with hash linkage and
// manages its terminal state.
type Observer struct {
	mu             sync.Mutex
	executionID    string
	events         []StepEvent
	preSnapshot    SecuritySnapshot
	postSnapshot   SecuritySnapshot
	terminal       TerminalState
	terminalReason string
	liveAtDispatch bool
}

// New creates an Observer for one execution, capturing the pre-execution
// security snapshot immediately.
func New(executionID string, kernel security.Kernel, liveAtDispatch bool) *Observer {
	o := &Observer{
		executionID:    executionID,
		terminal:       StateRunning,
		liveAtDispatch: liveAtDispatch,
	}
	o.preSnapshot = captureSnapshot(kernel)
	return o
}

func captureSnapshot(kernel security.Kernel) SecuritySnapshot {
	state := security.StateSecure
	if kernel != nil {
		state = kernel.CurrentSecurityState()
	}
	return SecuritySnapshot{SecurityState: state, Timestamp: time.Now(), Context: map[string]string{}}
}

// RecordEvent appends a StepEvent, linking it to the previous event's hash
// and computing its own.
func (o *Observer) RecordEvent(e StepEvent) StepEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	e.Timestamp = time.Now()
	if len(o.events) > 0 {
		e.PreviousEventHash = o.events[len(o.events)-1].SelfHash
	} else {
		e.PreviousEventHash = ""
	}
	e.SelfHash = computeSelfHash(e)
	o.events = append(o.events, e)
	logging.ObserverDebug("execution %s: recorded %s at step %d", o.executionID, e.EventType, e.StepIndex)
	return e
}

// mark transitions the observer into a terminal state, capturing the
// post-execution snapshot. Only the first call to any mark* method has an
// effect; a terminal state is permanent.
func (o *Observer) mark(state TerminalState, reason string, kernel security.Kernel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.terminal != StateRunning {
		return
	}
	o.terminal = state
	o.terminalReason = reason
	o.postSnapshot = captureSnapshot(kernel)
}

// MarkCompleted marks the execution as successfully completed.
func (o *Observer) MarkCompleted(reason string, kernel security.Kernel) {
	o.mark(StateCompleted, reason, kernel)
}

// MarkFailed marks the execution as failed.
func (o *Observer) MarkFailed(reason string, kernel security.Kernel) {
	o.mark(StateFailed, reason, kernel)
}

// MarkIncompleteSecurityEscalation marks the execution as terminated early
// due to a security escalation mid-flight.
func (o *Observer) MarkIncompleteSecurityEscalation(reason string, kernel security.Kernel) {
	o.mark(StateIncompleteSecurityEscalation, reason, kernel)
}

// Record returns the observer's immutable ExecutionRecord snapshot.
func (o *Observer) Record() (*ExecutionRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.terminal == StateRunning {
		return nil, &herrors.HandshakeInvalid{Reason: "execution has not reached a terminal state"}
	}
	events := make([]StepEvent, len(o.events))
	copy(events, o.events)
	return &ExecutionRecord{
		ExecutionID:    o.executionID,
		Events:         events,
		PreSnapshot:    o.preSnapshot,
		PostSnapshot:   o.postSnapshot,
		Terminal:       o.terminal,
		TerminalReason: o.terminalReason,
		LiveAtDispatch: o.liveAtDispatch,
	}, nil
}
