package token

import (
	"strings"
	"testing"

	"hearth/internal/herrors"
)

func validSpec() CapabilityToken {
	return CapabilityToken{
		UserID:          "alice",
		Capability:      "read_calendar",
		DomainScope:     []string{"hestia"},
		MethodScope:     map[string][]string{"hestia": {"list_events"}},
		DurationSeconds: 300,
		ResourceLimits: ResourceLimits{
			MaxInvocations:       5,
			MaxTokensPerResponse: 500,
			MaxTotalTokens:       2000,
			MaxFrequency:         "3 per 60 seconds",
		},
		AllowedTriggerTypes: []string{"direct_command"},
		IssuedBy:            "alice",
	}
}

func TestNewAcceptsValidSpec(t *testing.T) {
	tok, err := New(validSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Hash() == "" || len(tok.Hash()) != 64 {
		t.Fatalf("expected 64-char hex hash, got %q", tok.Hash())
	}
}

func TestNewRejectsAutonomyUser(t *testing.T) {
	spec := validSpec()
	spec.UserID = "autonomy"
	_, err := New(spec)
	var bv *herrors.BoundaryViolation
	if !asBoundary(err, &bv) {
		t.Fatalf("expected BoundaryViolation, got %v", err)
	}
}

func TestNewRejectsForbiddenDomain(t *testing.T) {
	spec := validSpec()
	spec.DomainScope = []string{"permission_system"}
	spec.MethodScope = map[string][]string{"permission_system": {"grant"}}
	_, err := New(spec)
	var bv *herrors.BoundaryViolation
	if !asBoundary(err, &bv) {
		t.Fatalf("expected BoundaryViolation, got %v", err)
	}
}

func TestNewRejectsDurationOutOfRange(t *testing.T) {
	spec := validSpec()
	spec.DurationSeconds = 1801
	if _, err := New(spec); err == nil {
		t.Fatal("expected error for duration_seconds > 1800")
	}
	spec.DurationSeconds = 0
	if _, err := New(spec); err == nil {
		t.Fatal("expected error for duration_seconds == 0")
	}
}

func TestNewRejectsMethodScopeOutsideDomainScope(t *testing.T) {
	spec := validSpec()
	spec.MethodScope = map[string][]string{"apollo": {"compose"}}
	if _, err := New(spec); err == nil {
		t.Fatal("expected error for method_scope key outside domain_scope")
	}
}

func TestNewRejectsUnknownTriggerType(t *testing.T) {
	spec := validSpec()
	spec.AllowedTriggerTypes = []string{"self_scheduled"}
	if _, err := New(spec); err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
}

func TestNewRejectsMalformedMaxFrequency(t *testing.T) {
	spec := validSpec()
	spec.ResourceLimits.MaxFrequency = "unlimited"
	if _, err := New(spec); err == nil {
		t.Fatal("expected error for malformed max_frequency")
	}
}

func TestHashIsDeterministicAndContentAddressed(t *testing.T) {
	spec := validSpec()
	a, err := New(spec)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(spec)
	if err != nil {
		t.Fatal(err)
	}
	b.IssuedAt = a.IssuedAt
	if a.Hash() != b.Hash() {
		t.Fatal("identical token contents produced different hashes")
	}

	spec2 := validSpec()
	spec2.Capability = "write_calendar"
	c, err := New(spec2)
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() == c.Hash() {
		t.Fatal("distinct token contents produced the same hash")
	}
}

func TestAllowsDomainIsExactMatchOnly(t *testing.T) {
	tok, _ := New(validSpec())
	if !tok.AllowsDomain("hestia") {
		t.Fatal("expected hestia to be allowed")
	}
	if tok.AllowsDomain("hestia_sub") {
		t.Fatal("expected prefix match to be rejected")
	}
}

func TestParseMaxFrequency(t *testing.T) {
	n, m, err := ParseMaxFrequency("3 per 60 seconds")
	if err != nil || n != 3 || m != 60 {
		t.Fatalf("got n=%d m=%d err=%v", n, m, err)
	}
	if _, _, err := ParseMaxFrequency("0 per 60 seconds"); err == nil {
		t.Fatal("expected error for N=0")
	}
	if _, _, err := ParseMaxFrequency("3 per 0 seconds"); err == nil {
		t.Fatal("expected error for M=0")
	}
	if _, _, err := ParseMaxFrequency("3 times per minute"); err == nil {
		t.Fatal("expected error for non-conforming string")
	}
}

func asBoundary(err error, target **herrors.BoundaryViolation) bool {
	bv, ok := err.(*herrors.BoundaryViolation)
	if !ok {
		return false
	}
	*target = bv
	return true
}

func TestStringFormat(t *testing.T) {
	tok, _ := New(validSpec())
	if !strings.HasPrefix(tok.String(), "token:") {
		t.Fatalf("expected token: prefix, got %q", tok.String())
	}
}
