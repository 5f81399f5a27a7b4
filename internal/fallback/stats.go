package fallback

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProviderStats accumulates per-provider counters across a job's lifetime,
// generalizing the TotalCapacity/semaphore bookkeeping used per-provider in
// the example corpus's connection managers into a standalone, reportable
// snapshot.
type ProviderStats struct {
	SegmentsDownloaded   atomic.Int64
	FallbackUsageCount   atomic.Int64
	BytesDownloaded      atomic.Int64
	lastUsed             atomic.Int64 // unix nanos
}

func (s *ProviderStats) recordSuccess(bytes int64, wasFallback bool) {
	s.SegmentsDownloaded.Add(1)
	s.BytesDownloaded.Add(bytes)
	if wasFallback {
		s.FallbackUsageCount.Add(1)
	}
	s.lastUsed.Store(nowUnixNano())
}

// LastUsed returns the time of the most recent successful fetch through
// this provider, or the zero Time if it has never been used.
func (s *ProviderStats) LastUsed() time.Time {
	n := s.lastUsed.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

var nowUnixNano = func() int64 { return time.Now().UnixNano() }

// StatsRegistry is a concurrency-safe map of provider ID to ProviderStats,
// updated by segment.Downloader after each successful fetch; Snapshot
// returns a copy of the counters.
type StatsRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*ProviderStats
}

func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{byID: make(map[string]*ProviderStats)}
}

// Get returns (creating if necessary) the ProviderStats for providerID.
func (r *StatsRegistry) Get(providerID string) *ProviderStats {
	r.mu.RLock()
	s, ok := r.byID[providerID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[providerID]; ok {
		return s
	}
	s = &ProviderStats{}
	r.byID[providerID] = s
	return s
}

// RecordSuccess updates providerID's counters after a successful fetch.
// wasFallback is true when providerID was not the segment's primary
// provider.
func (r *StatsRegistry) RecordSuccess(providerID string, bytes int64, wasFallback bool) {
	r.Get(providerID).recordSuccess(bytes, wasFallback)
}

// Snapshot returns a copy of all current per-provider counters, safe to
// hand to a caller outside the registry's lock.
func (r *StatsRegistry) Snapshot() map[string]ProviderStatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ProviderStatsSnapshot, len(r.byID))
	for id, s := range r.byID {
		out[id] = ProviderStatsSnapshot{
			SegmentsDownloaded: s.SegmentsDownloaded.Load(),
			FallbackUsageCount: s.FallbackUsageCount.Load(),
			BytesDownloaded:    s.BytesDownloaded.Load(),
			LastUsed:           s.LastUsed(),
		}
	}
	return out
}

// ProviderStatsSnapshot is an immutable point-in-time copy of ProviderStats,
// safe to serialize onto an events.Bus or an API response.
type ProviderStatsSnapshot struct {
	SegmentsDownloaded int64
	FallbackUsageCount int64
	BytesDownloaded    int64
	LastUsed           time.Time
}
