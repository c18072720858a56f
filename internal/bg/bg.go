// Package bg decides whether post-commit work runs on its own goroutine or
// inline. Production uses Async; tests use Sync so side effects are visible
// as soon as the operation returns.
package bg

// Runner executes fn either synchronously or asynchronously.
type Runner interface {
	Do(fn func())
}

// Async runs each function in a new goroutine.
type Async struct{}

// Do executes fn in a new goroutine.
func (Async) Do(fn func()) {
	go fn()
}

// Sync runs each function in the calling goroutine.
type Sync struct{}

// Do executes fn immediately.
func (Sync) Do(fn func()) {
	fn()
}
