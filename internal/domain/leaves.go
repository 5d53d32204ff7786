package domain

import (
	"fmt"

	"hearth/internal/jsonval"
)

// EchoLeaf is a deterministic stub collaborator: it always succeeds, and
// its data echoes the method name and a fixed field derived from the
// requesting domain's name. It stands in for a leaf domain (Apollo,
// Hermes, Hephaestus, Dionysus, Pluto) whose real content lives outside
// the spine's scope and has no architecture beyond handle(str)->str.
type EchoLeaf struct {
	Name string
}

// NewEchoLeaf creates a stub collaborator identified by name.
func NewEchoLeaf(name string) *EchoLeaf {
	return &EchoLeaf{Name: name}
}

// Invoke implements Collaborator. It is a pure function of (method,
// parameters): identical arguments always produce an identical result.
func (l *EchoLeaf) Invoke(method string, parameters jsonval.Value) Result {
	data := jsonval.Map(map[string]jsonval.Value{
		"domain":     jsonval.String(l.Name),
		"method":     jsonval.String(method),
		"echoed":     parameters,
		"handled_by": jsonval.String(fmt.Sprintf("%s.handle", l.Name)),
	})
	return Result{Success: true, Data: data}
}

// RegisterLeafDomains installs the five out-of-scope leaf domains named in
// §1 as deterministic echo stubs, so an embedder that has not supplied a
// real implementation can still exercise the full pipeline end to end.
func RegisterLeafDomains(r *Registry) {
	for _, name := range []string{"apollo", "hermes", "hephaestus", "dionysus", "pluto"} {
		r.Register(name, NewEchoLeaf(name))
	}
}
