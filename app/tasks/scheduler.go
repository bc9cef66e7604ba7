package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedspider/app/cfg"
	"feedspider/app/config"
	"feedspider/app/database"
	"feedspider/app/enrichment"
	"feedspider/app/feed"
)

var (
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNotRunning     = errors.New("scheduler is not running")
	ErrSourceBusy     = errors.New("source cycle already in flight")
	ErrSourceNotFound = errors.New("source not found")
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// SchedulerStatus is a point-in-time snapshot for the control API.
type SchedulerStatus struct {
	State    State `json:"state"`
	Workers  int   `json:"workers"`
	Queued   int   `json:"queued"`
	InFlight int   `json:"inFlight"`
}

const (
	taskQueueSize    = 300
	taskTimeout      = 5 * time.Minute
	stopGraceTimeout = 30 * time.Second
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler owns the worker pool and the periodic due scan. Per-source
// in-flight tracking is acquired at enqueue time so duplicate triggers for the
// same source coalesce instead of stacking up.
type Scheduler struct {
	sourceConfigs map[string]*config.SourceConfig
	sourceRepo    database.SourceRepository
	entryRepo     database.EntryRepository
	ruleRepo      database.RuleRepository
	fetcher       *feed.Fetcher
	parser        *feed.Parser
	filterer      *feed.Filterer
	extractor     *enrichment.Extractor

	interval    time.Duration
	minInterval time.Duration
	workerCount int

	mu        sync.Mutex
	cond      *sync.Cond // signals state leaving Stopping
	state     State
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

func NewScheduler(sourceConfigs map[string]*config.SourceConfig,
	sourceRepo database.SourceRepository, entryRepo database.EntryRepository,
	ruleRepo database.RuleRepository, fetcher *feed.Fetcher, parser *feed.Parser,
	filterer *feed.Filterer, extractor *enrichment.Extractor) *Scheduler {
	c := cfg.Get()

	s := &Scheduler{
		sourceConfigs: sourceConfigs,
		sourceRepo:    sourceRepo,
		entryRepo:     entryRepo,
		ruleRepo:      ruleRepo,
		fetcher:       fetcher,
		parser:        parser,
		filterer:      filterer,
		extractor:     extractor,
		interval:      time.Duration(c.SchedulerInterval) * time.Second,
		minInterval:   time.Duration(c.MinIntervalMinutes) * time.Minute,
		workerCount:   c.MaxWorkers,
		state:         StateStopped,
		inFlight:      make(map[string]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	return s
}

// Start brings the scheduler to Running: workers come up, source definitions
// are synced and the periodic due scan begins. A Start issued while a Stop is
// still draining waits for the stop to complete, then proceeds.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state == StateStopping {
		s.cond.Wait()
	}
	if s.state != StateStopped {
		return ErrAlreadyRunning
	}
	s.state = StateStarting

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.taskQueue = make(chan TaskInterface, taskQueueSize)
	s.inFlight = make(map[string]struct{})

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.dispatch()

	s.state = StateRunning
	slog.Info("Scheduler started", "workers", s.workerCount, "interval", s.interval.String())

	return nil
}

// Stop drains the scheduler gracefully: in-flight tasks get a bounded grace
// period to finish, then the scheduler reports Stopped either way. Stopping a
// scheduler that is not running is a no-op, not an error.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		slog.Warn("Scheduler is not running, nothing to stop")
		return nil
	}
	s.state = StateStopping
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGraceTimeout):
		slog.Warn("Scheduler stop grace period expired with tasks still in flight")
	}

	s.mu.Lock()
	s.state = StateStopped
	s.cond.Broadcast()
	s.mu.Unlock()

	slog.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	state := s.state
	queued := 0
	if s.taskQueue != nil {
		queued = len(s.taskQueue)
	}
	s.mu.Unlock()

	s.inFlightMu.Lock()
	inFlight := len(s.inFlight)
	s.inFlightMu.Unlock()

	return SchedulerStatus{
		State:    state,
		Workers:  s.workerCount,
		Queued:   queued,
		InFlight: inFlight,
	}
}

// TriggerAll enqueues an immediate cycle for every enabled source, skipping
// sources already in flight. Returns the number of cycles enqueued.
func (s *Scheduler) TriggerAll() (int, error) {
	if err := s.requireRunning(); err != nil {
		return 0, err
	}

	sources, err := s.sourceRepo.ListSources(true)
	if err != nil {
		return 0, fmt.Errorf("failed to list sources: %w", err)
	}

	triggered := 0
	for _, source := range sources {
		if s.enqueueProcess(source.ID, source.Name, false) == nil {
			triggered++
		}
	}
	return triggered, nil
}

// TriggerSource enqueues an immediate cycle for one source, bypassing its due
// time. A cycle already in flight is reported as ErrSourceBusy rather than
// enqueued twice.
func (s *Scheduler) TriggerSource(name string) error {
	if err := s.requireRunning(); err != nil {
		return err
	}

	source, err := s.sourceRepo.GetSource(name)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return ErrSourceNotFound
	}

	return s.enqueueProcess(source.ID, source.Name, false)
}

// FetchOnce runs one cycle for one source synchronously, bypassing the due
// time. With force set the stored validator tokens are ignored and the origin
// returns a full payload. In-flight exclusion still applies.
func (s *Scheduler) FetchOnce(name string, force bool) (*CycleResult, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}

	source, err := s.sourceRepo.GetSource(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return nil, ErrSourceNotFound
	}

	if !s.tryAcquire(source.ID) {
		return nil, ErrSourceBusy
	}

	task := NewProcessSourceTask(source.ID, source.Name, force,
		s.sourceRepo, s.entryRepo, s.ruleRepo, s.fetcher, s.parser, s.filterer,
		func() { s.release(source.ID) })

	task.Start()
	err = task.Execute(s.ctx)
	task.Release()
	return &task.Result, err
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) requireRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return ErrNotRunning
	}
	return nil
}

func (s *Scheduler) tryAcquire(key string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(key string) {
	s.inFlightMu.Lock()
	delete(s.inFlight, key)
	s.inFlightMu.Unlock()
}

// enqueueProcess acquires the source's in-flight slot and queues a cycle.
// The slot is given back via Release once the task will not run again.
func (s *Scheduler) enqueueProcess(sourceID, sourceName string, force bool) error {
	if !s.tryAcquire(sourceID) {
		return ErrSourceBusy
	}

	task := NewProcessSourceTask(sourceID, sourceName, force,
		s.sourceRepo, s.entryRepo, s.ruleRepo, s.fetcher, s.parser, s.filterer,
		func() { s.release(sourceID) })

	if err := s.EnqueueTask(task); err != nil {
		s.release(sourceID)
		return err
	}
	return nil
}

func (s *Scheduler) enqueueEnrich(sourceID, sourceName string) {
	key := "enrich:" + sourceID
	if !s.tryAcquire(key) {
		return
	}

	task := NewEnrichSourceTask(sourceID, sourceName, s.entryRepo, s.fetcher,
		s.extractor, func() { s.release(key) })

	if err := s.EnqueueTask(task); err != nil {
		s.release(key)
		slog.Warn("Failed to enqueue EnrichSourceTask", "source", sourceName, "error", err)
	}
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	s.enqueueSyncTasks()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.enqueueDueTasks()
		}
	}
}

func (s *Scheduler) enqueueSyncTasks() {
	if len(s.sourceConfigs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Syncing source configurations", "count", len(s.sourceConfigs))

	for _, sourceConfig := range s.sourceConfigs {
		task := NewSyncSourceTask(sourceConfig, s.sourceRepo, s.ruleRepo)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue SyncSourceTask", "source", sourceConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueDueTasks() {
	sources, err := s.sourceRepo.ListSources(true)
	if err != nil {
		slog.Warn("Failed to list sources for due scan", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, source := range sources {
		if s.isDue(&source, now) {
			if err := s.enqueueProcess(source.ID, source.Name, false); err != nil && !errors.Is(err, ErrSourceBusy) {
				slog.Warn("Failed to enqueue ProcessSourceTask", "source", source.Name, "error", err)
			}
		}

		s.enqueueEnrich(source.ID, source.Name)
	}
}

// isDue applies the effective interval: the source's own interval, floored by
// the process-wide minimum so misconfigured sources cannot hammer an origin.
func (s *Scheduler) isDue(source *database.Source, now time.Time) bool {
	if source.LastFetchedAt == nil {
		return true
	}

	interval := time.Duration(source.IntervalMinutes) * time.Minute
	if interval < s.minInterval {
		interval = s.minInterval
	}

	return !source.LastFetchedAt.Add(interval).After(now)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		task.Release()
		return
	}

	slog.Error("Worker task execution failed",
		"worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(),
		"retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		task.Release()
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled",
		"type", string(task.GetType()), "source", task.GetSourceName(),
		"retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(),
		"delay", retryDelay.String())

	// The task keeps its in-flight slot while a retry is pending so the due
	// scan cannot start a second cycle for the same source in the meantime.
	go func() {
		time.Sleep(retryDelay)
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry",
				"type", string(task.GetType()), "id", task.GetID())
			task.Release()
		default:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry",
					"type", string(task.GetType()), "id", task.GetID(), "error", retryErr)
				task.Release()
			}
		}
	}()
}
