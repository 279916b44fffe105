package worker

import (
	"context"
	"fmt"
	"sync"
)

// goroutineTransport runs the engine on a dedicated goroutine. Envelopes
// are handed over a channel, so callers never touch the engine directly
// and a panic inside it surfaces as a worker crash instead of taking the
// caller down.
type goroutineTransport struct {
	engine Engine

	in       chan Envelope
	out      chan Response
	done     chan struct{}
	ready    chan error
	quit     chan struct{}
	quitOnce sync.Once
	err      error
}

func newGoroutineTransport(engine Engine) *goroutineTransport {
	return &goroutineTransport{
		engine: engine,
		in:     make(chan Envelope, 16),
		out:    make(chan Response, 16),
		done:   make(chan struct{}),
		ready:  make(chan error, 1),
		quit:   make(chan struct{}),
	}
}

func (t *goroutineTransport) Start(ctx context.Context) error {
	go t.run(ctx)
	select {
	case err := <-t.ready:
		return err
	case <-t.done:
		// The goroutine died before reporting readiness.
		if t.err != nil {
			return t.err
		}
		return fmt.Errorf("store worker exited during init")
	case <-ctx.Done():
		_ = t.Kill()
		return ctx.Err()
	}
}

// run is the worker goroutine. It opens the engine, signals readiness,
// then executes envelopes until a close envelope, a kill, or a panic.
func (t *goroutineTransport) run(openCtx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("store worker panic: %v", r)
			_ = t.engine.Close()
		}
		close(t.out)
		close(t.done)
	}()

	if err := t.engine.Open(openCtx); err != nil {
		t.ready <- err
		return
	}
	t.ready <- nil

	for {
		select {
		case <-t.quit:
			_ = t.engine.Close()
			return
		case env := <-t.in:
			resp := execute(context.Background(), t.engine, env)
			select {
			case t.out <- resp:
			case <-t.quit:
				_ = t.engine.Close()
				return
			}
			if env.Kind == KindClose {
				return
			}
		}
	}
}

func (t *goroutineTransport) Send(env Envelope) error {
	select {
	case t.in <- env:
		return nil
	case <-t.done:
		return fmt.Errorf("store worker has exited")
	}
}

func (t *goroutineTransport) Responses() <-chan Response { return t.out }

func (t *goroutineTransport) Done() <-chan struct{} { return t.done }

func (t *goroutineTransport) Err() error {
	return t.err
}

// Kill stops the worker goroutine at the next statement boundary. A
// statement already executing runs to completion; its result is dropped.
func (t *goroutineTransport) Kill() error {
	t.quitOnce.Do(func() { close(t.quit) })
	return nil
}
