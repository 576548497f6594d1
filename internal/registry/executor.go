// ABOUTME: Executor calling conventions for registered tools
// ABOUTME: Captures the argument-shaping convention once at registration time

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Executor runs a tool with the raw argument map supplied by the caller.
// Implementations must be safe for concurrent use; two calls to the same tool
// may execute at the same time.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ExecutorFunc is the general calling convention: the executor receives the
// whole argument map as one value.
type ExecutorFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Typed wraps a function taking a typed argument struct. The raw argument map
// is validated into T before the call; unknown or mistyped fields fail the
// invocation with an ExecutionFailure result rather than reaching the tool.
// The convention is captured here once, not re-inspected per call.
func Typed[T any](fn func(ctx context.Context, arg T) (any, error)) Executor {
	return ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
		var arg T
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encoding arguments: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&arg); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return fn(ctx, arg)
	})
}
