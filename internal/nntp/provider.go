package nntp

import "time"

// ProviderConfig describes one Usenet provider: where to connect, how to
// authenticate, and how many connections it will give out. FallbackIDs names
// other ProviderConfig.ID values to try, in order, when this provider can't
// serve a segment.
type ProviderConfig struct {
	ID       string
	Host     string
	Port     int
	UseSSL   bool
	Username string
	Password string

	MaxConnections int

	// ArticleTimeout bounds a single BODY round trip. Zero uses the
	// package default of 15s.
	ArticleTimeout time.Duration

	// RetryAttempts is how many times the fallback policy will retry this
	// provider for one segment before moving to the next FallbackID.
	RetryAttempts int

	// RetryBackoff is the base delay before a retry; actual delay is
	// RetryBackoff * 2^(attempt-1).
	RetryBackoff time.Duration

	FallbackIDs []string
}

func (p ProviderConfig) articleTimeout() time.Duration {
	if p.ArticleTimeout > 0 {
		return p.ArticleTimeout
	}
	return 15 * time.Second
}

func (p ProviderConfig) retryAttempts() int {
	if p.RetryAttempts > 0 {
		return p.RetryAttempts
	}
	return 1
}

func (p ProviderConfig) retryBackoff() time.Duration {
	if p.RetryBackoff > 0 {
		return p.RetryBackoff
	}
	return 2 * time.Second
}
