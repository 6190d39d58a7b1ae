package scripthost

import (
	"context"
	"fmt"
)

// IterationFunc is a Go-native iteration body, used by NativeHost in place
// of a real embedded-language script. The engine only ever sees the Host
// interface; NativeHost lets the runtime and executors be driven from Go
// code without an embedded scripting VM, which is
// explicitly out of scope (spec §1). vu gives the body access to group()
// and check() the same way a real script would.
type IterationFunc func(ctx context.Context, vu VUContext) error

// NativeHost is a minimal reference Host implementation whose scenarios are
// Go closures instead of script source. Nothing else in this module
// constructs one; the CLI runs scenario files through internal/declarative.
type NativeHost struct {
	result    ParseResult
	fns       map[string]IterationFunc
	setupFn   func(ctx context.Context) error
	teardownFn func(ctx context.Context) error
}

func NewNativeHost(result ParseResult) *NativeHost {
	return &NativeHost{
		result: result,
		fns:    make(map[string]IterationFunc),
	}
}

// Register binds a named entry function, referenced by ScenarioSpec.ExecFn.
func (h *NativeHost) Register(name string, fn IterationFunc) *NativeHost {
	h.fns[name] = fn
	return h
}

func (h *NativeHost) OnSetup(fn func(ctx context.Context) error) *NativeHost {
	h.setupFn = fn
	return h
}

func (h *NativeHost) OnTeardown(fn func(ctx context.Context) error) *NativeHost {
	h.teardownFn = fn
	return h
}

func (h *NativeHost) ParseOptions(ctx context.Context, scriptPath string) (ParseResult, error) {
	return h.result, nil
}

func (h *NativeHost) Setup(ctx context.Context) error {
	if h.setupFn == nil {
		return nil
	}
	return h.setupFn(ctx)
}

func (h *NativeHost) Teardown(ctx context.Context) error {
	if h.teardownFn == nil {
		return nil
	}
	return h.teardownFn(ctx)
}

func (h *NativeHost) Iteration(ctx context.Context, fnName string, vu VUContext) (IterationResult, error) {
	fn, ok := h.fns[fnName]
	if !ok {
		return IterationResult{}, fmt.Errorf("scripthost: no such exec function %q", fnName)
	}
	if err := fn(ctx, vu); err != nil {
		return IterationResult{ScriptErr: err}, nil
	}
	return IterationResult{}, nil
}

func (h *NativeHost) HandleSummary(ctx context.Context, summary Summary) (map[string][]byte, error) {
	return nil, nil
}
