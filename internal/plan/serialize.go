package plan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// stepJSON is the deterministic wire shape for a single PlanStep per §6's
// PlanDraft serialization fields.
type stepJSON struct {
	Sequence             int             `json:"sequence"`
	Faculty              string          `json:"faculty"`
	Action               string          `json:"action"`
	Parameters           json.RawMessage `json:"parameters"`
	RequiredCapabilities []string        `json:"required_capabilities"`
	EstimatedDurationSec int             `json:"estimated_duration_sec"`
	Notes                []string        `json:"notes"`
}

// draftJSON is the deterministic wire shape for a whole PlanDraft.
type draftJSON struct {
	DraftID                 string            `json:"draft_id"`
	Intent                  string            `json:"intent"`
	Steps                   []stepJSON        `json:"steps"`
	RequiredFaculties       []string          `json:"required_faculties"`
	RequiredCapabilities    []string          `json:"required_capabilities"`
	EstimatedRiskLevel      string            `json:"estimated_risk_level"`
	Assumptions             []string          `json:"assumptions"`
	KnownUnknowns           []string          `json:"known_unknowns"`
	SecuritySummarySnapshot map[string]string `json:"security_summary_snapshot"`
	TimestampUnixNano       int64             `json:"timestamp_unix_nano"`
}

// Serialize produces the deterministic JSON form described in §6: sorted
// keys (the struct-shaped wire form is re-encoded through generic maps,
// which encoding/json emits in key order) and canonical decimal numbers,
// kept as written via json.Number. Two drafts built
// from byte-identical inputs and security summaries at the same logical
// instant serialize to byte-identical output.
func (d *PlanDraft) Serialize() ([]byte, error) {
	steps := make([]stepJSON, len(d.DerivedSteps))
	for i, s := range d.DerivedSteps {
		raw, err := json.Marshal(s.Parameters)
		if err != nil {
			return nil, fmt.Errorf("plan: serializing step %d parameters: %w", s.Sequence, err)
		}
		notes := s.Notes
		if notes == nil {
			notes = []string{}
		}
		steps[i] = stepJSON{
			Sequence:             s.Sequence,
			Faculty:              string(s.Faculty),
			Action:               s.Action,
			Parameters:           raw,
			RequiredCapabilities: s.RequiredCapabilities,
			EstimatedDurationSec: s.EstimatedDurationSec,
			Notes:                notes,
		}
	}

	out := draftJSON{
		DraftID:                 d.DraftID,
		Intent:                  d.Intent,
		Steps:                   steps,
		RequiredFaculties:       d.RequiredFaculties,
		RequiredCapabilities:    d.RequiredCapabilities,
		EstimatedRiskLevel:      string(d.EstimatedRiskLevel),
		Assumptions:             d.Assumptions,
		KnownUnknowns:           d.KnownUnknowns,
		SecuritySummarySnapshot: d.SecuritySummarySnapshot,
		TimestampUnixNano:       d.Timestamp.UnixNano(),
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// deriveDraftID derives a stable identifier from the draft's content when
// the caller supplies no explicit draft_id, so two compiles of the same
// input (aside from the timestamp) can be recognized as the same plan.
func deriveDraftID(intent string, steps []PlanStep) string {
	h := sha256.New()
	h.Write([]byte(intent))
	for _, s := range steps {
		h.Write([]byte(s.Faculty))
		h.Write([]byte(s.Action))
	}
	return "draft:" + hex.EncodeToString(h.Sum(nil))[:16]
}
