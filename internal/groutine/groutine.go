// Package groutine labels long-lived goroutines so the engine's background
// workers (phase loop, aggregation tick, persistence drain, scan pump) are
// identifiable in pprof and stack dumps.
package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

type ctxKey string

const nameKey ctxKey = "goroutine_name"

// Go starts fn on a new goroutine carrying name as a pprof label. A nil
// parent context defaults to context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)
	go pprof.Do(parent, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey, name))
	})
}

// Name returns the label Go attached to this goroutine's context, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(nameKey).(string); ok {
		return s
	}
	return ""
}

// GID returns the numeric goroutine id parsed from the stack header. Only
// for log correlation while debugging.
func GID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	gid, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return gid
}
