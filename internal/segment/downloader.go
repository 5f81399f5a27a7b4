// Package segment downloads and decodes one article at a time, routing
// through a fallback.Policy across a set of provider connection pools.
// Grounded on the retry/backoff worker loop used by the example corpus's
// download workers, generalized to drive an explicit fallback.Policy instead
// of an inline retry loop.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/datallboy/gonzb/internal/fallback"
	"github.com/datallboy/gonzb/internal/logger"
	"github.com/datallboy/gonzb/internal/nntp"
	"github.com/datallboy/gonzb/internal/yenc"
)

// Decoded is one fully decoded, CRC-checked (or explicitly not) segment.
type Decoded struct {
	Metadata    yenc.Metadata
	Data        []byte
	ProviderID  string
	CRCVerified bool
}

// ErrAllProvidersExhausted means the segment is not available from any
// configured provider (every one confirmed a 43x, or retries ran out).
var ErrAllProvidersExhausted = errors.New("segment: exhausted all providers")

// Downloader fetches and decodes one segment at a time against an ordered
// set of provider pools.
type Downloader struct {
	pools     map[string]*nntp.Pool
	order     fallback.ProviderOrder
	policy    *fallback.Policy
	stats     *fallback.StatsRegistry
	log       *logger.Logger
	strictCRC bool
}

// New builds a Downloader. pools must contain one *nntp.Pool per ID named
// in order. strictCRC controls whether a CRC mismatch (or missing CRC) is
// treated as a hard failure or merely logged and accepted.
func New(pools map[string]*nntp.Pool, order fallback.ProviderOrder, policy *fallback.Policy, stats *fallback.StatsRegistry, log *logger.Logger, strictCRC bool) *Downloader {
	return &Downloader{
		pools:     pools,
		order:     order,
		policy:    policy,
		stats:     stats,
		log:       log,
		strictCRC: strictCRC,
	}
}

// DownloadSegment fetches and yEnc-decodes messageID, retrying across
// providers per the fallback policy until it succeeds, every provider is
// exhausted, or ctx is cancelled.
func (d *Downloader) DownloadSegment(ctx context.Context, segmentID, messageID string) (*Decoded, error) {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		providerID, ok := d.policy.NextProvider(segmentID, d.order)
		if !ok {
			return nil, ErrAllProvidersExhausted
		}
		attempt++

		decoded, err := d.tryProvider(ctx, providerID, messageID)
		if err == nil {
			wasFallback := len(d.order) > 0 && providerID != d.order[0]
			d.policy.Record(segmentID, providerID, fallback.OutcomeSuccess)
			if d.stats != nil {
				d.stats.RecordSuccess(providerID, int64(len(decoded.Data)), wasFallback)
			}
			decoded.ProviderID = providerID
			return decoded, nil
		}

		if errors.Is(err, nntp.ErrArticleNotFound) {
			if d.log != nil {
				d.log.Debug("segment %s: %s reports missing, trying next provider", segmentID, providerID)
			}
			d.policy.Record(segmentID, providerID, fallback.OutcomeNotFound)
			continue
		}

		d.policy.Record(segmentID, providerID, fallback.OutcomeTransientError)
		if d.log != nil {
			d.log.Warn("segment %s: provider %s attempt %d failed: %v", segmentID, providerID, attempt, err)
		}

		select {
		case <-time.After(d.policy.Backoff(providerID, attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *Downloader) tryProvider(ctx context.Context, providerID, messageID string) (*Decoded, error) {
	pool, ok := d.pools[providerID]
	if !ok {
		return nil, fmt.Errorf("segment: no pool configured for provider %q", providerID)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var released bool
	release := func() {
		if !released {
			pool.Release(conn)
			released = true
		}
	}
	defer release()

	stream, err := conn.GetArticleStream(messageID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	dec := yenc.NewDecoder(stream)
	if err := dec.DiscardHeader(); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	buf := make([]byte, 32*1024)
	var data []byte
	for {
		n, rerr := dec.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("segment: decoding: %w", rerr)
		}
	}

	verified, verr := dec.Verify()
	if verr == nil && !verified {
		verr = errors.New("yenc: part carries no crc32 to verify against")
	}
	if verr != nil {
		if d.strictCRC {
			return nil, fmt.Errorf("segment: %w", verr)
		}
		if d.log != nil {
			d.log.Warn("segment: %v (accepted, strict CRC disabled)", verr)
		}
	}

	return &Decoded{
		Metadata:    dec.Metadata(),
		Data:        data,
		CRCVerified: verified,
	}, nil
}
