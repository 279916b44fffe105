package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Serve runs the child side of the process transport: it opens the
// engine, acknowledges with an init response, then executes envelopes
// from r until EOF or a close envelope, writing responses to w as
// newline-delimited JSON. A lost parent shows up as EOF on stdin, which
// shuts the worker down cleanly.
func Serve(ctx context.Context, r io.Reader, w io.Writer, engine Engine) error {
	enc := json.NewEncoder(w)

	if err := engine.Open(ctx); err != nil {
		_ = enc.Encode(Response{Kind: KindInit, Err: err.Error()})
		return err
	}
	if err := enc.Encode(Response{Kind: KindInit}); err != nil {
		_ = engine.Close()
		return err
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			_ = engine.Close()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read envelope: %w", err)
		}
		env.Params = decodeValues(env.Params)

		resp := execute(ctx, engine, env)
		resp.Rows = encodeRows(resp.Rows)
		if err := enc.Encode(resp); err != nil {
			_ = engine.Close()
			return fmt.Errorf("write response: %w", err)
		}
		if env.Kind == KindClose {
			return nil
		}
	}
}

// execute runs one envelope against the engine. Engine errors travel in
// the response; they never abort the worker loop.
func execute(ctx context.Context, engine Engine, env Envelope) Response {
	resp := Response{ID: env.ID, Kind: env.Kind}
	switch env.Kind {
	case KindExec:
		res, err := engine.Exec(ctx, env.Statement, env.Params)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		resp.RowsAffected = res.RowsAffected
	case KindQuery:
		rows, err := engine.Query(ctx, env.Statement, env.Params)
		if err != nil {
			resp.Err = err.Error()
			return resp
		}
		resp.Rows = rows
	case KindClose:
		if err := engine.Close(); err != nil {
			resp.Err = err.Error()
		}
	default:
		resp.Err = fmt.Sprintf("unknown envelope kind %q", env.Kind)
	}
	return resp
}
