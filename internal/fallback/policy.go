// Package fallback decides, for one segment, which provider to try next and
// when to give up on the current one, generalizing the MissingFrom/priority
// bookkeeping scattered through the example corpus's provider managers into
// an explicit, testable policy object.
package fallback

import (
	"sync"
	"time"
)

// ProviderOrder is the ordered list of provider IDs a segment should be
// tried against: the primary first, then each configured fallback in order.
type ProviderOrder []string

// Outcome is what the caller reports back after attempting one provider.
type Outcome int

const (
	// OutcomeSuccess means the segment was fetched; the policy forgets it.
	OutcomeSuccess Outcome = iota
	// OutcomeNotFound means the provider returned a 43x "no such article";
	// this provider is marked permanently missing for this segment, no
	// retry budget is consumed.
	OutcomeNotFound
	// OutcomeTransientError means a network/protocol error occurred; this
	// consumes one retry attempt against the same provider before the
	// policy advances to the next one.
	OutcomeTransientError
)

type attemptKey struct {
	segmentID  string
	providerID string
}

// Policy tracks, across the lifetime of a download job, which providers
// have been tried for which segments and how many times, and hands out the
// next provider to attempt plus how long to wait before that attempt.
type Policy struct {
	mu sync.Mutex

	retries map[attemptKey]int
	missing map[attemptKey]bool

	retryAttempts func(providerID string) int
	retryBackoff  func(providerID string) time.Duration
}

// NewPolicy builds a Policy. retryAttempts and retryBackoff let the caller
// look up per-provider RetryAttempts/RetryBackoff (from nntp.ProviderConfig)
// without this package importing the nntp package.
func NewPolicy(retryAttempts func(string) int, retryBackoff func(string) time.Duration) *Policy {
	return &Policy{
		retries:       make(map[attemptKey]int),
		missing:       make(map[attemptKey]bool),
		retryAttempts: retryAttempts,
		retryBackoff:  retryBackoff,
	}
}

// NextProvider returns the provider ID to try next for segmentID out of
// order, skipping providers already confirmed missing, or ok=false if every
// provider in order has been exhausted (either confirmed missing or out of
// retries).
func (p *Policy) NextProvider(segmentID string, order ProviderOrder) (providerID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range order {
		k := attemptKey{segmentID, id}
		if p.missing[k] {
			continue
		}
		max := 1
		if p.retryAttempts != nil {
			if n := p.retryAttempts(id); n > 0 {
				max = n
			}
		}
		if p.retries[k] >= max {
			continue
		}
		return id, true
	}
	return "", false
}

// Backoff returns how long to wait before the attempt'th (1-based) retry
// against providerID.
func (p *Policy) Backoff(providerID string, attempt int) time.Duration {
	base := 2 * time.Second
	if p.retryBackoff != nil {
		if d := p.retryBackoff(providerID); d > 0 {
			base = d
		}
	}
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt-1))
}

// Record books the outcome of one attempt against providerID for segmentID.
func (p *Policy) Record(segmentID, providerID string, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := attemptKey{segmentID, providerID}
	switch outcome {
	case OutcomeSuccess:
		delete(p.retries, k)
		delete(p.missing, k)
	case OutcomeNotFound:
		p.missing[k] = true
	case OutcomeTransientError:
		p.retries[k]++
	}
}

// Exhausted reports whether every provider in order is now confirmed
// missing for segmentID — the segment genuinely doesn't exist anywhere.
func (p *Policy) Exhausted(segmentID string, order ProviderOrder) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range order {
		if !p.missing[attemptKey{segmentID, id}] {
			return false
		}
	}
	return len(order) > 0
}

// Forget drops all bookkeeping for a segment, for reuse across unrelated
// retries (e.g. a full job restart after the provider set changed).
func (p *Policy) Forget(segmentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.retries {
		if k.segmentID == segmentID {
			delete(p.retries, k)
		}
	}
	for k := range p.missing {
		if k.segmentID == segmentID {
			delete(p.missing, k)
		}
	}
}
