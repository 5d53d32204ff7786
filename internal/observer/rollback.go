package observer

// RollbackScaffold is a read-only advisory surfacing the plan's own
// rollback hints. No code path in this file executes rollback.
type RollbackScaffold struct {
	ExecutionID        string
	IsRollbackPossible bool
	Reason             string
	RollbackHints      []string
	Warnings           []string
}

// RollbackPlanner derives a RollbackScaffold from a terminated execution.
type RollbackPlanner struct{}

// NewRollbackPlanner creates a RollbackPlanner.
func NewRollbackPlanner() *RollbackPlanner {
	return &RollbackPlanner{}
}

// PlanRollback quotes hintsFromPlan verbatim -- never derives hints from
// observed side effects -- and reports whether rollback is possible given
// record's terminal state and recorded side effects.
func (p *RollbackPlanner) PlanRollback(record *ExecutionRecord, hintsFromPlan []string) RollbackScaffold {
	hints := make([]string, len(hintsFromPlan))
	copy(hints, hintsFromPlan)

	scaffold := RollbackScaffold{
		ExecutionID:        record.ExecutionID,
		IsRollbackPossible: true,
		RollbackHints:      hints,
	}

	var irreversible []string
	for _, e := range record.Events {
		if e.EventType == SideEffect && !e.Reversible {
			irreversible = append(irreversible, e.SideEffectDescription)
		}
	}
	for _, desc := range irreversible {
		scaffold.Warnings = append(scaffold.Warnings, "irreversible side effect: "+desc)
	}

	switch {
	case len(irreversible) > 0:
		scaffold.IsRollbackPossible = false
		scaffold.Reason = "execution recorded at least one irreversible side effect"
	case record.Terminal == StateIncompleteSecurityEscalation:
		scaffold.IsRollbackPossible = false
		scaffold.Reason = "execution terminated via a security escalation"
	case record.PreSnapshot.SecurityState != "OPERATIONAL" && record.PreSnapshot.SecurityState != "SECURE":
		scaffold.IsRollbackPossible = false
		scaffold.Reason = "execution began from a non-operational security state"
	default:
		scaffold.Reason = "no irreversible effects recorded"
	}

	return scaffold
}
