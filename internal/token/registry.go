package token

import (
	"sync"
	"time"

	"hearth/internal/audit"
	"hearth/internal/herrors"
	"hearth/internal/logging"
)

// usageState tracks per-token consumption for gate R. Each token's counters
// are independent: revoking or exhausting one token must never affect
// another's counters.
type usageState struct {
	invocationCount int
	totalTokensUsed int
	windowStart     time.Time
	windowCount     int
	firstUsed       bool
}

// entry pairs a token with its registry-owned mutable bookkeeping.
type entry struct {
	token   *CapabilityToken
	revoked bool
	usage   usageState
}

// Registry is the process-wide store of issued capability tokens. It is
// the only place a token's revoked flag or usage counters live; the
// CapabilityToken value itself stays immutable.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     *audit.Log
}

// NewRegistry creates an empty registry that records issuance and
// revocation events to log.
func NewRegistry(log *audit.Log) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log,
	}
}

// Issue constructs and registers a new token, recording a TOKEN_ISSUED
// audit event. The returned token's hash is its handle in all subsequent
// calls.
func (r *Registry) Issue(spec CapabilityToken) (*CapabilityToken, error) {
	t, err := New(spec)
	if err != nil {
		return nil, err
	}

	hash := t.Hash()

	r.mu.Lock()
	r.entries[hash] = &entry{token: t}
	r.mu.Unlock()

	if r.log != nil {
		_ = r.log.Append(audit.Event{
			EventType: audit.EventTokenIssued,
			UserID:    t.UserID,
			TokenHash: hash,
			Status:    audit.StatusSuccess,
		})
	}
	logging.TokenDebug("issued token %s for user=%s", hash, t.UserID)
	return t, nil
}

// Get retrieves a token by hash. It does not consider revocation.
func (r *Registry) Get(hash string) (*CapabilityToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[hash]
	if !ok {
		return nil, &herrors.NotFound{Hash: hash}
	}
	return e.token, nil
}

// IsRevoked reports whether the token at hash has been revoked. An unknown
// hash is treated as revoked, since there is nothing valid to authorize.
func (r *Registry) IsRevoked(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[hash]
	if !ok {
		return true
	}
	return e.revoked
}

// IsExpired reports whether the token at hash has outlived its
// duration_seconds as measured from issuance.
func (r *Registry) IsExpired(hash string) bool {
	r.mu.Lock()
	e, ok := r.entries[hash]
	r.mu.Unlock()
	if !ok {
		return true
	}
	return time.Since(e.token.IssuedAt) > time.Duration(e.token.DurationSeconds)*time.Second
}

// Revoke marks the token at hash as revoked. Revocation is idempotent: a
// second call against an already-revoked token is a no-op, not an error,
// so callers racing to revoke the same token never fail spuriously.
func (r *Registry) Revoke(hash string) error {
	r.mu.Lock()
	e, ok := r.entries[hash]
	if !ok {
		r.mu.Unlock()
		return &herrors.NotFound{Hash: hash}
	}
	alreadyRevoked := e.revoked
	e.revoked = true
	r.mu.Unlock()

	if alreadyRevoked {
		return nil
	}
	if r.log != nil {
		_ = r.log.Append(audit.Event{
			EventType: audit.EventTokenRevoked,
			UserID:    e.token.UserID,
			TokenHash: hash,
			Status:    audit.StatusSuccess,
		})
	}
	logging.TokenDebug("revoked token %s", hash)
	return nil
}

// MarkFirstUse records that hash has now been used at least once, recording
// a TOKEN_FIRST_USED event the first time it is called for a given token
// and reporting whether this call was the first.
func (r *Registry) MarkFirstUse(hash string) (wasFirstUse bool, err error) {
	r.mu.Lock()
	e, ok := r.entries[hash]
	if !ok {
		r.mu.Unlock()
		return false, &herrors.NotFound{Hash: hash}
	}
	wasFirstUse = !e.usage.firstUsed
	e.usage.firstUsed = true
	r.mu.Unlock()

	if wasFirstUse && r.log != nil {
		_ = r.log.Append(audit.Event{
			EventType: audit.EventTokenFirstUsed,
			UserID:    e.token.UserID,
			TokenHash: hash,
			Status:    audit.StatusSuccess,
		})
	}
	return wasFirstUse, nil
}

// CheckAndRecordUsage evaluates gate R against the token at hash for one
// invocation consuming tokensUsed response tokens, and -- only if every
// limit still holds -- records the consumption. Limit checks and the
// corresponding increment happen atomically under the same lock so two
// concurrent invocations can never both slip through a limit by one.
func (r *Registry) CheckAndRecordUsage(hash string, tokensUsed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return &herrors.NotFound{Hash: hash}
	}
	limits := e.token.ResourceLimits

	if e.usage.invocationCount+1 > limits.MaxInvocations {
		return &herrors.ResourceExhausted{Limit: "max_invocations", Detail: "invocation count would exceed max_invocations"}
	}
	if tokensUsed > limits.MaxTokensPerResponse {
		return &herrors.ResourceExhausted{Limit: "max_tokens_per_response", Detail: "response token count exceeds max_tokens_per_response"}
	}
	if e.usage.totalTokensUsed+tokensUsed > limits.MaxTotalTokens {
		return &herrors.ResourceExhausted{Limit: "max_total_tokens", Detail: "cumulative token count would exceed max_total_tokens"}
	}

	n, windowSeconds, _ := ParseMaxFrequency(limits.MaxFrequency)
	now := time.Now()
	windowElapsed := e.usage.windowStart.IsZero() || now.Sub(e.usage.windowStart) >= time.Duration(windowSeconds)*time.Second
	if windowElapsed {
		e.usage.windowStart = now
		e.usage.windowCount = 0
	}
	if e.usage.windowCount+1 > n {
		return &herrors.ResourceExhausted{Limit: "max_frequency", Detail: "invocation rate exceeds max_frequency"}
	}

	e.usage.invocationCount++
	e.usage.totalTokensUsed += tokensUsed
	e.usage.windowCount++
	return nil
}
