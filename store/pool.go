// Package store provides the persistent vector store: a bounded connection
// pool over a store worker, the typed data access layer for documents and
// chunks, and the embedding index built on top of both.
package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/webquery"
	"github.com/fwojciec/webquery/worker"
)

// Pool defaults.
const (
	DefaultMaxConns       = 4
	DefaultAcquireTimeout = 5 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
)

// RawConn is one physical connection opened by the pool.
type RawConn interface {
	Exec(ctx context.Context, statement string, params ...any) (worker.Result, error)
	Query(ctx context.Context, statement string, params ...any) ([]worker.Row, error)
	Close() error
}

// OpenFunc opens a physical connection.
type OpenFunc func(ctx context.Context) (RawConn, error)

// PoolConfig configures a Pool. Zero values fall back to the defaults.
type PoolConfig struct {
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	Logger         *slog.Logger
}

// Pool hands out logical connections up to a fixed cap. Acquires beyond the
// cap queue in FIFO order until a connection is released or the acquire
// timeout elapses.
type Pool struct {
	open OpenFunc
	cfg  PoolConfig
	log  *slog.Logger

	// gate serializes transactions against ordinary statements. Pooled
	// connections multiplex a single-writer engine, so a statement from
	// another connection joining an open transaction would commit or roll
	// back with it.
	gate sync.RWMutex

	mu      sync.Mutex
	opened  int
	idle    []idleConn // ordered by last use, most recent last
	waiters []*waiter  // FIFO
	closing bool

	closeFailures atomic.Int64
}

type idleConn struct {
	raw      RawConn
	lastUsed time.Time
}

// waiter receives a connection handed over by a release, or nil when the
// pool closes while it waits.
type waiter struct {
	ch chan *Conn
}

// NewPool creates a pool that opens physical connections with open.
func NewPool(open OpenFunc, cfg PoolConfig) *Pool {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pool{open: open, cfg: cfg, log: log}
}

// Acquire returns a connection, opening one if the pool is under capacity.
// At capacity it waits for a release until the acquire timeout elapses.
// Stale idle connections are evicted here rather than by background timers;
// the acquirer replaces what it evicts by opening fresh.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil, webquery.Errorf(webquery.EUNAVAILABLE, "connection pool is closed")
	}

	// Evict stale idle connections, oldest first.
	now := time.Now()
	var evicted []RawConn
	for len(p.idle) > 0 && now.Sub(p.idle[0].lastUsed) > p.cfg.IdleTimeout {
		evicted = append(evicted, p.idle[0].raw)
		p.idle = p.idle[1:]
		p.opened--
	}

	if len(p.idle) > 0 {
		ic := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()
		p.destroyAll(evicted)
		return p.newConn(ic.raw), nil
	}

	if p.opened < p.cfg.MaxConns {
		p.opened++
		p.mu.Unlock()
		p.destroyAll(evicted)

		raw, err := p.open(ctx)
		if err != nil {
			p.mu.Lock()
			p.opened--
			p.mu.Unlock()
			return nil, err
		}
		return p.newConn(raw), nil
	}

	// At capacity: queue behind earlier acquirers.
	w := &waiter{ch: make(chan *Conn, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	p.destroyAll(evicted)

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-w.ch:
		if conn == nil {
			return nil, webquery.Errorf(webquery.EUNAVAILABLE, "connection pool is closed")
		}
		return conn, nil
	case <-timer.C:
		if conn, served := p.abandon(w); served {
			if conn == nil {
				return nil, webquery.Errorf(webquery.EUNAVAILABLE, "connection pool is closed")
			}
			// A release handed over a connection as the timer fired.
			return conn, nil
		}
		return nil, webquery.Errorf(webquery.ETIMEOUT, "no connection available within %s", p.cfg.AcquireTimeout)
	case <-ctx.Done():
		if conn, served := p.abandon(w); served && conn != nil {
			p.Release(conn)
		}
		return nil, ctx.Err()
	}
}

// abandon removes w from the waiter queue. If a release already claimed it,
// the handed-over connection (nil when the pool is closing) is returned
// with served=true.
func (p *Pool) abandon(w *waiter) (*Conn, bool) {
	p.mu.Lock()
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()
	// Off the queue already: the handover is in the buffered channel.
	return <-w.ch, true
}

// Release returns a connection to the pool. The oldest queued waiter is
// served before the connection is parked on the idle list. Releasing twice
// is a programming error and is ignored with a warning.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	conn.mu.Lock()
	if conn.released {
		conn.mu.Unlock()
		p.log.Warn("connection released twice")
		return
	}
	conn.released = true
	raw := conn.raw
	conn.mu.Unlock()

	p.mu.Lock()
	if p.closing {
		p.opened--
		p.mu.Unlock()
		p.destroy(raw)
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w.ch <- p.newConn(raw)
		return
	}
	p.idle = append(p.idle, idleConn{raw: raw, lastUsed: time.Now()})
	p.mu.Unlock()
}

// WithConn acquires a connection, runs fn, and releases it on every
// exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(conn *Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// InTransaction runs fn inside BEGIN/COMMIT on a single connection, rolling
// back if fn fails. The transaction holds the statement gate exclusively
// for its whole duration.
func (p *Pool) InTransaction(ctx context.Context, fn func(conn *Conn) error) error {
	return p.WithConn(ctx, func(conn *Conn) error {
		p.gate.Lock()
		defer p.gate.Unlock()
		conn.inTx = true
		defer func() { conn.inTx = false }()

		if _, err := conn.Exec(ctx, "BEGIN"); err != nil {
			return err
		}
		if err := fn(conn); err != nil {
			if _, rbErr := conn.Exec(ctx, "ROLLBACK"); rbErr != nil {
				p.log.Warn("transaction rollback failed", "error", rbErr)
			}
			return err
		}
		if _, err := conn.Exec(ctx, "COMMIT"); err != nil {
			if _, rbErr := conn.Exec(ctx, "ROLLBACK"); rbErr != nil {
				p.log.Warn("transaction rollback failed", "error", rbErr)
			}
			return err
		}
		return nil
	})
}

// Close marks the pool closing, rejects queued waiters, and destroys idle
// connections. Checked-out connections are destroyed as they come back.
// Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	waiters := p.waiters
	p.waiters = nil
	idle := p.idle
	p.idle = nil
	p.opened -= len(idle)
	p.mu.Unlock()

	for _, w := range waiters {
		w.ch <- nil
	}
	for _, ic := range idle {
		p.destroy(ic.raw)
	}
	return nil
}

// CloseFailures reports how many physical connections failed to close.
// Failures are counted, never raised.
func (p *Pool) CloseFailures() int64 {
	return p.closeFailures.Load()
}

func (p *Pool) newConn(raw RawConn) *Conn {
	return &Conn{raw: raw, pool: p}
}

func (p *Pool) destroy(raw RawConn) {
	if err := raw.Close(); err != nil {
		p.closeFailures.Add(1)
		p.log.Warn("failed to close connection", "error", err)
	}
}

func (p *Pool) destroyAll(raws []RawConn) {
	for _, raw := range raws {
		p.destroy(raw)
	}
}

// Conn is a logical connection checked out of a Pool. It is owned by a
// single caller at a time and runs one statement at a time.
type Conn struct {
	raw  RawConn
	pool *Pool
	inTx bool

	mu       sync.Mutex
	released bool
}

// Exec executes a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, statement string, params ...any) (worker.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return worker.Result{}, webquery.Errorf(webquery.EINTERNAL, "connection used after release")
	}
	if !c.inTx {
		c.pool.gate.RLock()
		defer c.pool.gate.RUnlock()
	}
	return c.raw.Exec(ctx, statement, params...)
}

// Query executes a statement and returns its rows.
func (c *Conn) Query(ctx context.Context, statement string, params ...any) ([]worker.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, webquery.Errorf(webquery.EINTERNAL, "connection used after release")
	}
	if !c.inTx {
		c.pool.gate.RLock()
		defer c.pool.gate.RUnlock()
	}
	return c.raw.Query(ctx, statement, params...)
}
