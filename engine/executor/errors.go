package executor

import "errors"

// Error kinds the Executor can raise internally, distinct from
// invoker.ErrorKind (which classifies an external invocation's outcome).
// These name the remaining kinds spec.md §7 assigns to the Executor:
// ExpressionEvalFailure, JoinDeadlock, LeaseLost. ValidationFailure belongs
// to engine/validator; RetriableInvocationFailure/FatalInvocationFailure
// are invoker.ErrorKind values consumed directly.
var (
	// ErrExpressionEval marks a node ERROR when a gateway/loop condition or
	// an action's rendered argument fails to evaluate within its CPU budget.
	// It never propagates past the enclosing node (spec.md §7).
	ErrExpressionEval = errors.New("executor: expression evaluation failed")

	// ErrJoinDeadlock marks a join ERROR (and finalizes the run) when a
	// required predecessor has finalized ERROR and no further arrivals to
	// that join are possible.
	ErrJoinDeadlock = errors.New("executor: join can never be satisfied")

	// ErrLeaseLost is logged by the dispatch loop when the run-ownership
	// lease is no longer held (its renewal failed); the worker then
	// abandons the run without finalizing or otherwise mutating it.
	ErrLeaseLost = errors.New("executor: run ownership lease lost")

	// ErrMaxIterations marks a loop_while node ERROR when its condition
	// stays true past max_iterations.
	ErrMaxIterations = errors.New("executor: loop exceeded max_iterations")

	// ErrCanceled/ErrTimeout name the two run-level abort causes. abortPending
	// does not wrap them: it records an aborted node's error as the plain
	// reason "cancelled" or "timeout".
	ErrCanceled = errors.New("executor: run canceled")
	ErrTimeout  = errors.New("executor: run timed out")
)
