package worker

import (
	"context"
	"fmt"
	"sync"
)

// inlineTransport dispatches statements directly on the calling goroutine.
// It is the degenerate execution mode: no concurrency boundary, engine
// panics are converted into a transport exit. The mutex serializes access
// so the engine still sees one statement at a time.
type inlineTransport struct {
	engine Engine

	mu     sync.Mutex
	closed bool

	out      chan Response
	done     chan struct{}
	exitOnce sync.Once
	err      error
}

func newInlineTransport(engine Engine) *inlineTransport {
	return &inlineTransport{
		engine: engine,
		out:    make(chan Response, 16),
		done:   make(chan struct{}),
	}
}

func (t *inlineTransport) Start(ctx context.Context) error {
	return t.engine.Open(ctx)
}

func (t *inlineTransport) Send(env Envelope) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("store worker has exited")
	}

	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("store worker panic: %v", r)
			t.closed = true
			t.exit()
			err = fmt.Errorf("store worker panic: %v", r)
		}
	}()

	resp := execute(context.Background(), t.engine, env)
	if env.Kind == KindClose {
		t.closed = true
		t.out <- resp
		t.exit()
		return nil
	}
	t.out <- resp
	return nil
}

func (t *inlineTransport) Responses() <-chan Response { return t.out }

func (t *inlineTransport) Done() <-chan struct{} { return t.done }

func (t *inlineTransport) Err() error {
	return t.err
}

func (t *inlineTransport) Kill() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.engine.Close()
	t.exit()
	return err
}

// exit closes the response stream and the done signal, in that order.
// Callers must hold t.mu.
func (t *inlineTransport) exit() {
	t.exitOnce.Do(func() {
		close(t.out)
		close(t.done)
	})
}
