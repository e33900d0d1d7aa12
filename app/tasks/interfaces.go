package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the admin API to queue background work.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
