// Package async runs blocking work on caller-supplied executors and hands
// results back through futures.
package async

// Executor runs tasks. Execute must not block on task completion; it
// returns an error when the task cannot be accepted.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(task func()) error { return f(task) }

// Go runs every task on its own goroutine.
var Go Executor = ExecutorFunc(func(task func()) error {
	go task()
	return nil
})

// Inline runs every task on the calling goroutine before returning.
var Inline Executor = ExecutorFunc(func(task func()) error {
	task()
	return nil
})
