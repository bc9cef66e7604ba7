package tasks

// TaskSchedulerInterface is the control surface the HTTP API drives. Start and
// Stop move the scheduler through its lifecycle; the trigger operations are
// valid only while it is running.
type TaskSchedulerInterface interface {
	Start() error
	Stop() error
	Status() SchedulerStatus
	TriggerAll() (int, error)
	TriggerSource(name string) error
	FetchOnce(name string, force bool) (*CycleResult, error)
	EnqueueTask(task TaskInterface) error
}
