package bg

// Sync runs each function on the calling goroutine. Tests use it so that
// background side effects have happened by the time a handler returns.
type Sync struct{}

// Do executes the function immediately in the current goroutine.
func (Sync) Do(fn func()) {
	fn()
}
