// Package domain defines the narrow contract the spine uses to call out to
// domain collaborators (§6), plus deterministic stub leaf domains
// (Apollo/Hermes/Hephaestus/Dionysus/Pluto). The leaf domains have no
// interesting architecture beyond a handle(str)->str contract; they exist
// so the rest of the spine has something concrete to dispatch to.
package domain

import (
	"fmt"

	"hearth/internal/jsonval"
)

// Result is what a domain collaborator returns for one invocation.
type Result struct {
	Success bool
	Data    jsonval.Value
	Error   string
}

// Collaborator is the contract every domain must implement: deterministic
// for the same arguments, no callback into the spine, no access to tokens,
// the audit log, or the registry. Panics during Invoke are recovered by
// the caller and converted to a failed Result -- the collaborator itself
// should not need to.
type Collaborator interface {
	// Invoke calls method on this domain with frozen parameters and returns
	// a result. It must not mutate parameters.
	Invoke(method string, parameters jsonval.Value) Result
}

// SafeInvoke calls c.Invoke, recovering any panic and converting it to a
// failed Result so a misbehaving collaborator can never crash the pipeline.
func SafeInvoke(c Collaborator, method string, parameters jsonval.Value) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Error: fmt.Sprintf("domain collaborator panicked: %v", r)}
		}
	}()
	return c.Invoke(method, parameters)
}

// Registry maps domain names to their collaborator implementations.
type Registry struct {
	collaborators map[string]Collaborator
}

// NewRegistry creates an empty domain registry.
func NewRegistry() *Registry {
	return &Registry{collaborators: make(map[string]Collaborator)}
}

// Register installs c as the collaborator for name, overwriting any prior
// registration.
func (r *Registry) Register(name string, c Collaborator) {
	r.collaborators[name] = c
}

// Lookup returns the collaborator registered for name, if any.
func (r *Registry) Lookup(name string) (Collaborator, bool) {
	c, ok := r.collaborators[name]
	return c, ok
}

// Invoke looks up name and calls SafeInvoke, returning a failed Result when
// no collaborator is registered for the domain.
func (r *Registry) Invoke(name, method string, parameters jsonval.Value) Result {
	c, ok := r.collaborators[name]
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("no collaborator registered for domain %q", name)}
	}
	return SafeInvoke(c, method, parameters)
}
