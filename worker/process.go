package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// processTransport spawns the store worker as a child process and speaks
// the protocol as newline-delimited JSON over its stdin/stdout. The child
// is expected to write an init response as its first line; see Serve.
// Crash isolation is complete: a dying child never takes the parent down.
type processTransport struct {
	command []string

	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex
	enc     *json.Encoder

	out      chan Response
	readDone chan struct{}
	done     chan struct{}
	exitOnce sync.Once
	err      error
}

func newProcessTransport(command []string) *processTransport {
	return &processTransport{
		command:  command,
		out:      make(chan Response, 16),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *processTransport) Start(ctx context.Context) error {
	cmd := exec.Command(t.command[0], t.command[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("store worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("store worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn store worker: %w", err)
	}
	t.cmd = cmd
	t.stdin = stdin
	t.enc = json.NewEncoder(stdin)

	dec := json.NewDecoder(stdout)
	dec.UseNumber()

	// The child acknowledges a successful engine open with an init
	// response before anything else.
	handshake := make(chan error, 1)
	go func() {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			handshake <- fmt.Errorf("store worker handshake: %w", err)
			return
		}
		if resp.Kind != KindInit {
			handshake <- fmt.Errorf("store worker handshake: unexpected %q response", resp.Kind)
			return
		}
		if resp.Err != "" {
			handshake <- fmt.Errorf("store worker init: %s", resp.Err)
			return
		}
		handshake <- nil
	}()

	select {
	case err := <-handshake:
		if err != nil {
			t.reap()
			return err
		}
	case <-ctx.Done():
		t.reap()
		return ctx.Err()
	}

	go t.read(dec)
	go t.wait()
	return nil
}

// reap kills a child that failed its handshake and collects its exit
// status so it does not linger as a zombie.
func (t *processTransport) reap() {
	_ = t.cmd.Process.Kill()
	go func() {
		_ = t.cmd.Wait()
		t.exit()
	}()
}

// read streams responses until the child's stdout closes. The response
// channel closes before readDone so Done always fires last.
func (t *processTransport) read(dec *json.Decoder) {
	defer close(t.readDone)
	defer close(t.out)
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			return
		}
		resp.Rows = decodeRows(resp.Rows)
		t.out <- resp
	}
}

// wait reaps the child after the reader has drained its output, so the
// exit status is known by the time Done fires.
func (t *processTransport) wait() {
	<-t.readDone
	err := t.cmd.Wait()
	if err != nil {
		t.err = fmt.Errorf("store worker process: %w", err)
	}
	t.exit()
}

func (t *processTransport) exit() {
	t.exitOnce.Do(func() { close(t.done) })
}

func (t *processTransport) Send(env Envelope) error {
	env.Params = encodeValues(env.Params)
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.done:
		return fmt.Errorf("store worker process has exited")
	default:
	}
	if err := t.enc.Encode(env); err != nil {
		return fmt.Errorf("write to store worker: %w", err)
	}
	return nil
}

func (t *processTransport) Responses() <-chan Response { return t.out }

func (t *processTransport) Done() <-chan struct{} { return t.done }

func (t *processTransport) Err() error {
	return t.err
}

// Kill force-terminates the child. The reader drains to EOF and Done
// fires once the exit status is collected.
func (t *processTransport) Kill() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}
