// Package worker runs store statements on a dedicated execution unit and
// exposes them through a small RPC protocol. The same envelope/response
// protocol is spoken over three transports: direct dispatch on the caller
// (inline), a dedicated goroutine, and a child process speaking
// newline-delimited JSON over stdin/stdout.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/fwojciec/webquery"
)

// Mode selects how the store worker executes statements.
type Mode string

// Execution modes for the store worker.
const (
	ModeInline    Mode = "inline"
	ModeGoroutine Mode = "goroutine"
	ModeProcess   Mode = "process"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeInline, ModeGoroutine, ModeProcess:
		return Mode(s), nil
	default:
		return "", webquery.Errorf(webquery.EINVALID, "unknown store worker mode %q", s)
	}
}

// Kind identifies the operation an envelope requests.
type Kind string

// Envelope kinds.
const (
	KindInit  Kind = "init"
	KindExec  Kind = "exec"
	KindQuery Kind = "query"
	KindClose Kind = "close"
)

// Envelope is one request to the store worker. IDs are assigned by the
// client and strictly increase within a worker's lifetime.
type Envelope struct {
	ID        uint64 `json:"id"`
	Kind      Kind   `json:"kind"`
	Statement string `json:"statement,omitempty"`
	Params    []any  `json:"params,omitempty"`
}

// Response is the worker's reply to one envelope, matched by ID.
type Response struct {
	ID           uint64 `json:"id"`
	Kind         Kind   `json:"kind"`
	Rows         []Row  `json:"rows,omitempty"`
	RowsAffected int64  `json:"rowsAffected,omitempty"`
	Err          string `json:"error,omitempty"`
}

// Row is one result row keyed by lower-cased column name. Values are
// int64, float64, string, []byte, or nil.
type Row map[string]any

// Result reports the effect of a statement that returns no rows.
type Result struct {
	RowsAffected int64
}

// Engine executes statements against the underlying store. An engine is
// driven by exactly one worker at a time and need not be safe for
// concurrent use. Open may be called again after a crash to recover.
type Engine interface {
	Open(ctx context.Context) error
	Exec(ctx context.Context, statement string, params []any) (Result, error)
	Query(ctx context.Context, statement string, params []any) ([]Row, error)
	Close() error
}

// blobKey wraps []byte values crossing the JSON process boundary, where
// they would otherwise arrive as plain base64 strings.
const blobKey = "$blob"

// encodeValues prepares parameter or row values for JSON transport.
func encodeValues(vals []any) []any {
	for i, v := range vals {
		vals[i] = encodeValue(v)
	}
	return vals
}

func encodeValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return map[string]any{blobKey: base64.StdEncoding.EncodeToString(v)}
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// decodeValues undoes encodeValues after JSON decoding. Numbers arrive as
// json.Number (the decoder uses UseNumber) and are narrowed to int64 when
// integral so INTEGER columns keep their full range.
func decodeValues(vals []any) []any {
	for i, v := range vals {
		vals[i] = decodeValue(v)
	}
	return vals
}

func decodeValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case map[string]any:
		if len(v) == 1 {
			if s, ok := v[blobKey].(string); ok {
				if b, err := base64.StdEncoding.DecodeString(s); err == nil {
					return b
				}
			}
		}
		return v
	default:
		return v
	}
}

func encodeRows(rows []Row) []Row {
	for _, row := range rows {
		for k, v := range row {
			row[k] = encodeValue(v)
		}
	}
	return rows
}

func decodeRows(rows []Row) []Row {
	for _, row := range rows {
		for k, v := range row {
			row[k] = decodeValue(v)
		}
	}
	return rows
}
