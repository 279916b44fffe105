package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/webquery"
)

// Default timeouts for the store worker client.
const (
	DefaultInitTimeout      = 10 * time.Second
	DefaultOperationTimeout = 30 * time.Second

	// closeDrainTimeout bounds how long Close polls for in-flight
	// operations to finish before force-terminating the worker.
	closeDrainTimeout  = 5 * time.Second
	closeDrainInterval = 10 * time.Millisecond
)

type state int

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
	stateClosing
	stateClosed
)

// outcome carries a response or a locally synthesized failure to the
// goroutine waiting on an envelope.
type outcome struct {
	resp Response
	err  error
}

// Client drives a store worker over a Transport. It owns the worker's
// lifecycle: lazy initialization on first use, request/response matching,
// per-operation timeouts, crash recovery, and shutdown. A Client is safe
// for concurrent use.
type Client struct {
	newTransport func() Transport
	initTimeout  time.Duration
	opTimeout    time.Duration
	restart      bool
	log          *slog.Logger

	mu        sync.Mutex
	st        state
	transport Transport
	initDone  chan struct{}
	initErr   error
	lastCrash error
	nextID    uint64
	inflight  map[uint64]chan outcome
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for worker lifecycle events.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithInitTimeout bounds worker initialization, independent of the
// per-operation timeout.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Client) { c.initTimeout = d }
}

// WithOperationTimeout bounds a single exec or query, measured from
// submission. On expiry the caller gets ETIMEOUT and the result, if it
// ever arrives, is dropped.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) { c.opTimeout = d }
}

// WithRestartOnCrash controls whether a crashed worker is respawned on
// the next call. When disabled, calls after a crash keep failing with the
// crash error.
func WithRestartOnCrash(restart bool) Option {
	return func(c *Client) { c.restart = restart }
}

// New returns a Client executing statements on engine in the given
// in-process mode. For ModeProcess use NewProcess.
func New(engine Engine, mode Mode, opts ...Option) (*Client, error) {
	switch mode {
	case ModeInline:
		return NewWithTransport(func() Transport { return newInlineTransport(engine) }, opts...), nil
	case ModeGoroutine:
		return NewWithTransport(func() Transport { return newGoroutineTransport(engine) }, opts...), nil
	case ModeProcess:
		return nil, webquery.Errorf(webquery.EINVALID, "process mode requires a worker command; use NewProcess")
	default:
		return nil, webquery.Errorf(webquery.EINVALID, "unknown store worker mode %q", mode)
	}
}

// NewProcess returns a Client that spawns command as a child process and
// speaks the worker protocol over its stdin/stdout. A fresh process is
// spawned per initialization, so crash recovery gets a clean slate.
func NewProcess(command []string, opts ...Option) (*Client, error) {
	if len(command) == 0 {
		return nil, webquery.Errorf(webquery.EINVALID, "store worker command required")
	}
	return NewWithTransport(func() Transport { return newProcessTransport(command) }, opts...), nil
}

// NewWithTransport returns a Client using transports from factory. Each
// initialization, including respawn after a crash, consumes one fresh
// transport.
func NewWithTransport(factory func() Transport, opts ...Option) *Client {
	c := &Client{
		newTransport: factory,
		initTimeout:  DefaultInitTimeout,
		opTimeout:    DefaultOperationTimeout,
		restart:      true,
		log:          slog.New(slog.DiscardHandler),
		inflight:     make(map[uint64]chan outcome),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, statement string, params ...any) (Result, error) {
	resp, err := c.do(ctx, KindExec, statement, params)
	if err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: resp.RowsAffected}, nil
}

// Query runs a statement and returns its rows.
func (c *Client) Query(ctx context.Context, statement string, params ...any) ([]Row, error) {
	resp, err := c.do(ctx, KindQuery, statement, params)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) do(ctx context.Context, kind Kind, statement string, params []any) (Response, error) {
	var t Transport
	var id uint64
	var ch chan outcome

	// A worker can crash between readiness and submission; one retry
	// covers that window without risking a spawn loop.
	for attempt := 0; ; attempt++ {
		if err := c.ensureReady(ctx); err != nil {
			return Response{}, err
		}
		c.mu.Lock()
		if c.st != stateReady {
			c.mu.Unlock()
			if attempt == 0 {
				continue
			}
			return Response{}, webquery.Errorf(webquery.EUNAVAILABLE, "store worker is unavailable")
		}
		t = c.transport
		c.nextID++
		id = c.nextID
		ch = make(chan outcome, 1)
		c.inflight[id] = ch
		c.mu.Unlock()
		break
	}

	env := Envelope{ID: id, Kind: kind, Statement: statement, Params: params}
	if err := t.Send(env); err != nil {
		c.forget(id)
		return Response{}, webquery.Errorf(webquery.EUNAVAILABLE, "store worker send: %v", err)
	}

	var timeout <-chan time.Time
	if c.opTimeout > 0 {
		timer := time.NewTimer(c.opTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return Response{}, out.err
		}
		if out.resp.Err != "" {
			return Response{}, webquery.Errorf(webquery.EINTERNAL, "store worker: %s", out.resp.Err)
		}
		return out.resp, nil
	case <-timeout:
		c.forget(id)
		return Response{}, webquery.Errorf(webquery.ETIMEOUT, "store worker: %s %d timed out after %s", kind, id, c.opTimeout)
	case <-ctx.Done():
		c.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, webquery.Errorf(webquery.ETIMEOUT, "store worker: %s %d timed out: %v", kind, id, ctx.Err())
		}
		return Response{}, ctx.Err()
	}
}

// forget removes an envelope from the in-flight table. Its result, if it
// ever arrives, is dropped by the receive loop.
func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// ensureReady makes the worker ready to accept envelopes, initializing it
// on first use. Concurrent callers share a single initialization attempt;
// its failure fails all of them.
func (c *Client) ensureReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.st {
		case stateReady:
			c.mu.Unlock()
			return nil

		case stateClosing, stateClosed:
			c.mu.Unlock()
			return webquery.Errorf(webquery.EUNAVAILABLE, "store worker is closed")

		case stateInitializing:
			done := c.initDone
			c.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return webquery.Errorf(webquery.ETIMEOUT, "store worker init wait: %v", ctx.Err())
				}
				return ctx.Err()
			}
			c.mu.Lock()
			err := c.initErr
			st := c.st
			c.mu.Unlock()
			if st == stateReady {
				return nil
			}
			if st == stateClosing || st == stateClosed {
				return webquery.Errorf(webquery.EUNAVAILABLE, "store worker is closed")
			}
			if err != nil {
				return err
			}
			// The attempt was lost to a crash; retry from scratch.
			continue

		case stateUninitialized:
			if c.lastCrash != nil && !c.restart {
				err := c.lastCrash
				c.mu.Unlock()
				return err
			}
			t := c.newTransport()
			done := make(chan struct{})
			c.st = stateInitializing
			c.transport = t
			c.initDone = done
			c.initErr = nil
			c.mu.Unlock()
			go c.runInit(t, done)
			// Loop back into the waiting branch.

		default:
			c.mu.Unlock()
			return webquery.Errorf(webquery.EINTERNAL, "store worker in unknown state")
		}
	}
}

// runInit performs one initialization attempt. It is bounded by the init
// timeout rather than any single waiter's context, so an impatient caller
// does not abort an attempt other callers are waiting on.
func (c *Client) runInit(t Transport, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), c.initTimeout)
	defer cancel()

	start := time.Now()
	err := t.Start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)

	if c.st == stateClosing || c.st == stateClosed {
		// Closed while initializing; discard the worker.
		if err == nil {
			_ = t.Kill()
		}
		c.initErr = webquery.Errorf(webquery.EUNAVAILABLE, "store worker is closed")
		return
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.initErr = webquery.Errorf(webquery.ETIMEOUT, "store worker init timed out after %s", c.initTimeout)
		} else {
			c.initErr = webquery.Errorf(webquery.EUNAVAILABLE, "store worker init: %v", err)
		}
		c.st = stateUninitialized
		c.transport = nil
		c.log.Warn("store worker init failed", "err", err)
		return
	}

	c.st = stateReady
	c.lastCrash = nil
	go c.receive(t)
	c.log.Debug("store worker ready", "duration", time.Since(start))
}

// receive dispatches responses to their waiting callers until the
// transport exits. An abnormal exit fails every in-flight operation and
// arms respawn-on-next-call.
func (c *Client) receive(t Transport) {
	for resp := range t.Responses() {
		c.mu.Lock()
		ch, ok := c.inflight[resp.ID]
		if ok {
			delete(c.inflight, resp.ID)
		}
		c.mu.Unlock()
		if !ok {
			c.log.Debug("dropping late store worker response", "id", resp.ID)
			continue
		}
		ch <- outcome{resp: resp}
	}

	<-t.Done()
	exitErr := t.Err()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != t || c.st == stateClosing || c.st == stateClosed {
		return
	}

	crash := webquery.Errorf(webquery.EUNAVAILABLE, "store worker exited unexpectedly")
	if exitErr != nil {
		crash = webquery.Errorf(webquery.EUNAVAILABLE, "store worker crashed: %v", exitErr)
	}
	n := len(c.inflight)
	for id, ch := range c.inflight {
		delete(c.inflight, id)
		ch <- outcome{err: crash}
	}
	c.lastCrash = crash
	c.st = stateUninitialized
	c.transport = nil
	c.log.Warn("store worker crashed",
		"err", exitErr,
		"inflight_failed", n,
		"restart_armed", c.restart)
}

// Close shuts the worker down. It waits, with bounded polling, for
// in-flight operations to drain, then asks the worker to exit and
// force-terminates it if it does not. Operations still in flight at
// force-termination fail with EUNAVAILABLE. Close is idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	switch c.st {
	case stateClosed:
		c.mu.Unlock()
		return nil
	case stateUninitialized:
		c.st = stateClosed
		c.mu.Unlock()
		return nil
	case stateInitializing:
		c.st = stateClosing
		done := c.initDone
		c.mu.Unlock()
		<-done
		c.mu.Lock()
		c.st = stateClosed
		c.transport = nil
		c.mu.Unlock()
		return nil
	}
	c.st = stateClosing
	t := c.transport
	c.mu.Unlock()

	c.drain(ctx)

	c.mu.Lock()
	c.nextID++
	closeID := c.nextID
	c.mu.Unlock()

	if err := t.Send(Envelope{ID: closeID, Kind: KindClose}); err == nil {
		select {
		case <-t.Done():
		case <-time.After(closeDrainTimeout):
			_ = t.Kill()
			<-t.Done()
		case <-ctx.Done():
			_ = t.Kill()
			<-t.Done()
		}
	} else {
		_ = t.Kill()
		<-t.Done()
	}

	c.mu.Lock()
	for id, ch := range c.inflight {
		delete(c.inflight, id)
		ch <- outcome{err: webquery.Errorf(webquery.EUNAVAILABLE, "store worker terminated during operation")}
	}
	c.st = stateClosed
	c.transport = nil
	c.mu.Unlock()
	return nil
}

// drain polls until no operations are in flight, the drain window closes,
// or ctx is done.
func (c *Client) drain(ctx context.Context) {
	deadline := time.NewTimer(closeDrainTimeout)
	defer deadline.Stop()
	for {
		c.mu.Lock()
		n := len(c.inflight)
		c.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-time.After(closeDrainInterval):
		}
	}
}
