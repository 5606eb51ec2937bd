package invoker

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted Invoker used by engine/executor tests to reproduce
// spec.md §8's end-to-end scenarios (trivial linear, retry-and-recover,
// idempotent replay, ...) without a live external service.
type Fake struct {
	mu       sync.Mutex
	scripts  map[string][]scriptedCall
	calls    []Request
}

type scriptedCall struct {
	result *Result
	err    *Error
}

// NewFake returns an empty Fake; use Script to queue responses per
// (tool, action) pair before invoking it.
func NewFake() *Fake {
	return &Fake{scripts: make(map[string][]scriptedCall)}
}

func scriptKey(tool, action string) string { return tool + ":" + action }

// Script queues one response for the given (tool, action). Successive
// calls to the same pair pop responses in the order scripted, letting a
// test express "fail twice, then succeed" (spec.md §8 scenario 2).
func (f *Fake) Script(tool, action string, result *Result, err *Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scriptKey(tool, action)
	f.scripts[key] = append(f.scripts[key], scriptedCall{result: result, err: err})
}

// Calls returns every request the Fake has seen, in order, for assertions
// like "invoker called twice with distinct idem_keys".
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Invoke(_ context.Context, req Request) (*Result, *Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	key := scriptKey(req.Tool, req.Action)
	queue := f.scripts[key]
	if len(queue) == 0 {
		return nil, &Error{Kind: Fatal, Message: fmt.Sprintf("invoker/fake: no script for %s", key)}
	}
	next := queue[0]
	f.scripts[key] = queue[1:]
	return next.result, next.err
}
