// Package security defines the narrow contract HEARTH's spine uses to read
// the surrounding system's security posture. The kernel that implements
// this contract is an external collaborator (§6 of the governing spec) --
// this package only names the states and the read-only interface.
package security

// State is the security posture of the surrounding system.
type State string

const (
	StateSecure      State = "SECURE"
	StateOperational State = "OPERATIONAL"
	StateDegraded    State = "DEGRADED"
	StateCompromised State = "COMPROMISED"
	StateLockdown    State = "LOCKDOWN"
)

// IsHealthy reports whether s permits live execution to continue.
func (s State) IsHealthy() bool {
	return s == StateSecure || s == StateOperational
}

// Kernel is the pure, read-only collaborator the live-mode gate consults.
// Implementations must not block indefinitely and must have no side effects.
type Kernel interface {
	CurrentSecurityState() State
}

// StaticKernel is a Kernel whose state is set directly by the caller. It is
// the reference implementation used by tests and by any embedder that does
// not have a richer security subsystem of its own.
type StaticKernel struct {
	state State
}

// NewStaticKernel creates a StaticKernel starting in the given state.
func NewStaticKernel(initial State) *StaticKernel {
	return &StaticKernel{state: initial}
}

// CurrentSecurityState implements Kernel.
func (k *StaticKernel) CurrentSecurityState() State {
	return k.state
}

// SetState updates the reported state. Safe to call concurrently with reads
// via CurrentSecurityState only insofar as the caller owns happens-before
// ordering; StaticKernel is a test/demo fixture, not a concurrency primitive.
func (k *StaticKernel) SetState(s State) {
	k.state = s
}
