package nntp

import (
	"context"
	"sync"

	"github.com/datallboy/gonzb/internal/logger"
)

// Pool multiplexes an arbitrary number of callers over a bounded set of
// persistent connections to one provider. Callers that arrive when every
// connection is checked out queue FIFO and are handed a connection, in
// arrival order, as soon as one is returned. Grounded on the channel-backed
// connection pool pattern used across the example corpus, generalized here
// into an explicit waiter queue so ordering is guaranteed rather than
// incidental to channel scheduling.
type Pool struct {
	cfg       ProviderConfig
	transport Transport
	log       *logger.Logger

	mu      sync.Mutex
	idle    []*Conn
	opened  int
	waiters []chan waitResult
	closed  bool
}

type waitResult struct {
	conn *Conn
	err  error
}

// NewPool constructs a Pool for one provider. No connections are opened
// until Initialize or the first Acquire.
func NewPool(cfg ProviderConfig, transport Transport, log *logger.Logger) *Pool {
	if transport == nil {
		transport = NewNetTransport(cfg.Host, cfg.Port, cfg.UseSSL)
	}
	return &Pool{cfg: cfg, transport: transport, log: log}
}

// Initialize pre-opens a small number of connections so the first callers
// don't pay dial+auth latency on the hot path. It opens min(2, MaxConnections)
// connections and tolerates dial failures by logging and leaving the pool to
// open lazily on demand instead.
func (p *Pool) Initialize(ctx context.Context) {
	n := p.cfg.MaxConnections
	if n > 2 {
		n = 2
	}
	for i := 0; i < n; i++ {
		c, err := p.openConn(ctx)
		if err != nil {
			if p.log != nil {
				p.log.Warn("nntp: pool %s: pre-open failed: %v", p.cfg.ID, err)
			}
			return
		}
		p.mu.Lock()
		p.idle = append(p.idle, c)
		p.opened++
		p.mu.Unlock()
	}
}

// Acquire returns a ready Conn, blocking until one is idle, a new one can be
// opened under MaxConnections, or ctx is done. Callers must call Release
// when finished, exactly once, passing whether the Conn is still usable.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}

	if p.cfg.MaxConnections <= 0 || p.opened < p.cfg.MaxConnections {
		p.opened++
		p.mu.Unlock()

		c, err := p.openConn(ctx)
		if err != nil {
			p.mu.Lock()
			p.opened--
			p.mu.Unlock()
			return nil, err
		}
		return c, nil
	}

	ch := make(chan waitResult, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case res := <-ch:
		return res.conn, res.err
	case <-ctx.Done():
		p.removeWaiter(ch)
		return nil, ctx.Err()
	}
}

func (p *Pool) removeWaiter(target chan waitResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ch := range p.waiters {
		if ch == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Release returns a Conn to the pool. If the Conn reports itself Broken it
// is discarded and the connection-count budget is freed for a fresh dial on
// the next Acquire instead of being reused.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()

	if p.closed || c.Broken() {
		c.Close()
		p.opened--
		p.handOffOrIdleLocked(nil)
		p.mu.Unlock()
		return
	}

	p.handOffOrIdleLocked(c)
	p.mu.Unlock()
}

// handOffOrIdleLocked must be called with p.mu held. If a waiter is queued
// it is handed the connection (or, if conn is nil because the released one
// was discarded, a freshly dialed one) directly, FIFO; otherwise the
// connection goes onto the idle stack.
func (p *Pool) handOffOrIdleLocked(conn *Conn) {
	if len(p.waiters) == 0 {
		if conn != nil {
			p.idle = append(p.idle, conn)
		}
		return
	}

	ch := p.waiters[0]
	p.waiters = p.waiters[1:]

	if conn != nil {
		ch <- waitResult{conn: conn}
		return
	}

	// The slot freed up because a broken connection was discarded; dial a
	// replacement for the waiter outside the lock to avoid blocking other
	// pool operations while connecting.
	p.opened++
	go func() {
		c, err := p.openConn(context.Background())
		if err != nil {
			p.mu.Lock()
			p.opened--
			p.mu.Unlock()
		}
		ch <- waitResult{conn: c, err: err}
	}()
}

func (p *Pool) openConn(ctx context.Context) (*Conn, error) {
	return dial(ctx, p.transport, p.cfg.Username, p.cfg.Password, p.cfg.articleTimeout(), p.log)
}

// Shutdown closes every idle connection and fails any still-queued waiter
// with ErrPoolClosed. Connections currently checked out are closed as they
// are Released rather than forcibly, since they may have a segment
// in-flight.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil

	for _, ch := range p.waiters {
		ch <- waitResult{err: ErrPoolClosed}
	}
	p.waiters = nil
}

// InUse reports how many connections are currently checked out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened - len(p.idle)
}

// Capacity reports the configured maximum number of connections.
func (p *Pool) Capacity() int {
	return p.cfg.MaxConnections
}
