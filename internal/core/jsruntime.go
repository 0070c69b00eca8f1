package core

// JSRuntime abstracts the JavaScript engine behind the operations the job
// queue in internal/eventloop needs.
type JSRuntime interface {
	// HasPendingJob reports whether the runtime's job queue is non-empty.
	HasPendingJob() bool

	// RunPendingJob runs one queued job (Promise reactions, etc.). It
	// reports false when there was nothing to run.
	RunPendingJob() (bool, error)

	// Close frees the runtime.
	Close()
}
