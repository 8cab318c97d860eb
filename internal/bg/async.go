package bg

// Async runs each function on its own goroutine. Used in production for
// work that must not delay a response.
type Async struct{}

// Do executes the function in a new goroutine.
func (Async) Do(fn func()) {
	go fn()
}
