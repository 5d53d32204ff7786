// Package boundary implements the recursive-autonomy-prevention predicates
// shared by token construction and the invocation pipeline. Every predicate
// here is pure: no I/O, no mutation, no state beyond its arguments.
package boundary

import "strings"

// Forbidden domains that may never appear in a token's domain scope or be
// targeted by an invocation.
var forbiddenDomains = map[string]bool{
	"permission_system": true,
	"agent_system":      true,
}

// stage3IdentityBases match literally or as a "<base>_*"/"<base>-*" variant
// (e.g. "stage3_planner", "stage-3-shadow").
var stage3IdentityBases = []string{
	"stage3",
	"stage-3",
}

// bareAutonomyWords match only as an exact (case-insensitive) identity.
var bareAutonomyWords = map[string]bool{
	"autonomy":         true,
	"planner":          true,
	"executor":         true,
	"scheduler":        true,
	"orchestrator":     true,
	"agent":            true,
	"autonomous_agent": true,
}

// Methods that would let a caller mint or alter its own authority.
var autonomyMethods = map[string]bool{
	"grant_token":         true,
	"issue_token":         true,
	"create_capability":   true,
	"revoke_token":        true,
	"modify_token":        true,
	"escalate_permission": true,
	"create_agent":        true,
	"spawn_worker":        true,
	"bootstrap_stage3":    true,
	"init_autonomy":       true,
	"setup_agent":         true,
}

// permittedTriggerTypes are the only trigger channels a human-mediated
// invocation may arrive on.
var permittedTriggerTypes = map[string]bool{
	"direct_command": true,
	"async_request":  true,
	"acknowledgment": true,
	"scheduled":      true,
}

// IsAutonomyIdentity reports whether identity names an autonomy actor
// (case-insensitive, matching the bare word or a "<base>_*"/"<base>-*" form).
func IsAutonomyIdentity(identity string) bool {
	if identity == "" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(identity))
	if bareAutonomyWords[lower] {
		return true
	}
	for _, base := range stage3IdentityBases {
		if lower == base {
			return true
		}
		if strings.HasPrefix(lower, base+"_") || strings.HasPrefix(lower, base+"-") {
			return true
		}
	}
	return false
}

// IsAutonomyDomain reports whether domain is a forbidden domain or a
// case-insensitive variant of one.
func IsAutonomyDomain(domain string) bool {
	lower := strings.ToLower(strings.TrimSpace(domain))
	return forbiddenDomains[lower]
}

// IsAutonomyMethod reports whether method would grant, alter, or bootstrap
// authority/agency if invoked.
func IsAutonomyMethod(method string) bool {
	lower := strings.ToLower(strings.TrimSpace(method))
	return autonomyMethods[lower]
}

// IsPermittedTrigger reports whether triggerType is one of the four
// human-mediated trigger channels.
func IsPermittedTrigger(triggerType string) bool {
	return permittedTriggerTypes[triggerType]
}

// PermittedTriggerTypes returns the full set of permitted trigger type
// strings, in the canonical order used by spec serialization.
func PermittedTriggerTypes() []string {
	return []string{"direct_command", "async_request", "acknowledgment", "scheduled"}
}

// ForbiddenDomains returns the base forbidden domain identifiers.
func ForbiddenDomains() []string {
	return []string{"permission_system", "agent_system"}
}
