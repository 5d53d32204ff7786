// Package plan implements the plan compiler (component C2): parsing and
// validating free-form LLM reasoning text into an immutable, deterministic
// PlanDraft. The compiler performs no I/O, no execution, and mutates no
// external state -- it has no authority beyond producing the draft.
package plan

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"hearth/internal/herrors"
	"hearth/internal/jsonval"
	"hearth/internal/logging"
)

// Faculty is a tagged capability family a step may exercise.
type Faculty string

const (
	FacultyReadKnowledge    Faculty = "READ_KNOWLEDGE"
	FacultyReadMemory       Faculty = "READ_MEMORY"
	FacultyReadCalendar     Faculty = "READ_CALENDAR"
	FacultyAnalyzeCode      Faculty = "ANALYZE_CODE"
	FacultyAnalyzeHabits    Faculty = "ANALYZE_HABITS"
	FacultyAnalyzeSentiment Faculty = "ANALYZE_SENTIMENT"
	FacultyPlanSchedule     Faculty = "PLAN_SCHEDULE"
	FacultySynthesizeMsg    Faculty = "SYNTHESIZE_MESSAGE"
)

var knownFaculties = map[Faculty]bool{
	FacultyReadKnowledge:    true,
	FacultyReadMemory:       true,
	FacultyReadCalendar:     true,
	FacultyAnalyzeCode:      true,
	FacultyAnalyzeHabits:    true,
	FacultyAnalyzeSentiment: true,
	FacultyPlanSchedule:     true,
	FacultySynthesizeMsg:    true,
}

// readAnalyzeFaculties are the faculties risk-classified as low on their own.
var readAnalyzeFaculties = map[Faculty]bool{
	FacultyReadKnowledge:    true,
	FacultyReadMemory:       true,
	FacultyReadCalendar:     true,
	FacultyAnalyzeCode:      true,
	FacultyAnalyzeHabits:    true,
	FacultyAnalyzeSentiment: true,
}

// planSynthesizeFaculties bump the risk estimate to medium.
var planSynthesizeFaculties = map[Faculty]bool{
	FacultyPlanSchedule:  true,
	FacultySynthesizeMsg: true,
}

// writeClassCapabilities bump the risk estimate to high whenever named in a
// step's required_capabilities, regardless of the step's faculty.
var writeClassCapabilities = map[string]bool{
	"WRITE_FILE":      true,
	"SEND_MESSAGE":    true,
	"MODIFY_CALENDAR": true,
	"EXECUTE_COMMAND": true,
	"DELETE_DATA":     true,
	"MODIFY_CONFIG":   true,
}

// RiskLevel is the fixed, deterministic risk classification of a PlanDraft.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var forbiddenConditionalTokens = []string{"if", "when", "unless", "otherwise", "maybe", "probably"}

var forbiddenTokenPatterns = buildForbiddenPatterns()

func buildForbiddenPatterns() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(forbiddenConditionalTokens))
	for _, tok := range forbiddenConditionalTokens {
		m[tok] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(tok) + `\b`)
	}
	return m
}

const maxActionLength = 280

// PlanStep is one executable action derived from a STEP block. Created by
// the compiler; never mutated afterward.
type PlanStep struct {
	Sequence             int
	Faculty              Faculty
	Action               string
	Parameters           jsonval.Value
	RequiredCapabilities []string
	EstimatedDurationSec int
	Notes                []string
}

// PlanDraft is the compiler's immutable output.
type PlanDraft struct {
	DraftID                 string
	Intent                  string
	DerivedSteps            []PlanStep
	RequiredFaculties       []string
	RequiredCapabilities    []string
	EstimatedRiskLevel      RiskLevel
	Assumptions             []string
	KnownUnknowns           []string
	SecuritySummarySnapshot map[string]string
	Timestamp               time.Time
}

// Input bundles the compiler's inputs: intent, llm_output, security
// summary, and an optional draft_id. Now, if set, supplies the
// compile timestamp; tests hold it fixed to exercise the byte-identical
// determinism property, production callers leave it nil to use wall time.
type Input struct {
	Intent          string
	LLMOutput       string
	SecuritySummary map[string]string
	DraftID         string
	Now             func() time.Time
}

// Compile parses llm_output in the STEP-block grammar, validates every
// step, and returns a fully populated, deterministic PlanDraft. Compiling
// byte-identical inputs (including an identical SecuritySummary) twice
// yields byte-identical serializations.
func Compile(in Input) (*PlanDraft, error) {
	if strings.TrimSpace(in.Intent) == "" {
		return nil, &herrors.ValidationError{Path: "intent", Rule: "required", Message: "must not be empty"}
	}

	blocks, err := parseBlocks(in.LLMOutput)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, &herrors.ParseError{Step: 0, Field: "llm_output", Message: "at least one STEP block is required"}
	}

	steps := make([]PlanStep, 0, len(blocks))
	for _, b := range blocks {
		step, err := validateAndBuildStep(b)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	if err := checkDenseSequence(steps); err != nil {
		return nil, err
	}

	draftID := in.DraftID
	if draftID == "" {
		draftID = deriveDraftID(in.Intent, steps)
	}

	now := in.Now
	if now == nil {
		now = time.Now
	}

	draft := &PlanDraft{
		DraftID:                 draftID,
		Intent:                  in.Intent,
		DerivedSteps:            steps,
		RequiredFaculties:       requiredFaculties(steps),
		RequiredCapabilities:    requiredCapabilities(steps),
		EstimatedRiskLevel:      estimateRisk(steps),
		Assumptions:             []string{},
		KnownUnknowns:           []string{},
		SecuritySummarySnapshot: copySummary(in.SecuritySummary),
		Timestamp:               now(),
	}

	logging.PlanDebug("compiled draft %s with %d steps, risk=%s", draft.DraftID, len(steps), draft.EstimatedRiskLevel)
	return draft, nil
}

func copySummary(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func checkDenseSequence(steps []PlanStep) error {
	for i, s := range steps {
		if s.Sequence != i+1 {
			return &herrors.ValidationError{Path: "derived_steps", Rule: "dense_1..N", Message: "step sequence numbers must be dense starting at 1"}
		}
	}
	return nil
}

func requiredFaculties(steps []PlanStep) []string {
	set := map[string]bool{}
	for _, s := range steps {
		set[string(s.Faculty)] = true
	}
	return sortedKeys(set)
}

func requiredCapabilities(steps []PlanStep) []string {
	set := map[string]bool{}
	for _, s := range steps {
		for _, c := range s.RequiredCapabilities {
			set[c] = true
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// estimateRisk applies the fixed table from §4.2: low when every faculty is
// read/analyze; medium when any faculty is plan/synthesize; high when any
// step names a write-class capability. High always wins over medium.
func estimateRisk(steps []PlanStep) RiskLevel {
	risk := RiskLow
	for _, s := range steps {
		for _, c := range s.RequiredCapabilities {
			if writeClassCapabilities[c] {
				return RiskHigh
			}
		}
		if planSynthesizeFaculties[s.Faculty] {
			risk = RiskMedium
		} else if !readAnalyzeFaculties[s.Faculty] {
			// Faculty is neither explicitly read/analyze nor plan/synthesize;
			// validateAndBuildStep already rejected unknown faculties, so
			// this branch is unreachable, but leaving risk unchanged keeps
			// the table closed rather than silently escalating.
			continue
		}
	}
	return risk
}
