// Package dispatch sits between task submitters and workers. It owns the
// task heap, remembers which worker is running what, and turns a worker's
// declared capacity into the budget map its claims pass to the heap.
package dispatch

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dodohome/dodo/common/stats"
	"github.com/dodohome/dodo/taskheap"
)

// WorkerCapacity declares what one worker can take on.
type WorkerCapacity struct {
	// MaxByType caps concurrently running tasks per type name. The
	// taskheap.TaskTypeAny key caps the total across types. Types without a
	// key are uncapped.
	MaxByType map[string]int

	// GroupPrefs lists group ids this worker prefers, most preferred first.
	GroupPrefs []int

	// ExcludedGroups lists group ids this worker must never run.
	ExcludedGroups map[int]bool
}

type taskRecord struct {
	taskType    string
	submitterID string
	// Id of the worker running the task, empty while it waits in the heap.
	workerID string
}

type workerState struct {
	caps          WorkerCapacity
	running       map[int64]bool
	runningByType map[string]int
}

// Dispatcher tracks every submitted task from Submit to TaskFinished.
// Claims are served straight from the heap under the worker's capacity
// budget; there is no per-worker queue. Safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	heap    *taskheap.TasksHeap
	tasks   map[int64]*taskRecord
	workers map[string]*workerState
	stat    stats.StatsReceiver
}

func NewDispatcher(heap *taskheap.TasksHeap, stat stats.StatsReceiver) *Dispatcher {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Dispatcher{
		heap:    heap,
		tasks:   map[int64]*taskRecord{},
		workers: map[string]*workerState{},
		stat:    stat,
	}
}

// Submit queues a task for dispatch. Ids must be positive and unique among
// tasks not yet finished; the type name must be set and not the reserved
// capacity key.
func (d *Dispatcher) Submit(taskID int64, taskType string, submitterID string) error {
	if taskID <= 0 {
		return errors.Errorf("taskID must be > 0, got %d", taskID)
	}
	if taskType == "" {
		return errors.New("taskType must not be empty")
	}
	if taskType == taskheap.TaskTypeAny {
		return errors.Errorf("task type %q is reserved for capacity declarations", taskType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tasks[taskID]; ok {
		return errors.Errorf("task %d is already tracked", taskID)
	}
	d.tasks[taskID] = &taskRecord{taskType: taskType, submitterID: submitterID}
	d.heap.InsertTask(taskID, taskType, submitterID)

	d.stat.Counter(stats.DispatchSubmittedTasksCounter).Inc(1)
	return nil
}

// RegisterWorker announces a worker and its capacity. The capacity maps are
// copied, callers can reuse theirs.
func (d *Dispatcher) RegisterWorker(workerID string, caps WorkerCapacity) error {
	if workerID == "" {
		return errors.New("workerID must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.workers[workerID]; ok {
		return errors.Errorf("worker %s is already registered", workerID)
	}
	d.workers[workerID] = &workerState{
		caps:          copyCapacity(caps),
		running:       map[int64]bool{},
		runningByType: map[string]int{},
	}

	log.WithFields(log.Fields{"workerID": workerID, "capacity": caps.MaxByType}).Info("worker registered")
	d.stat.Gauge(stats.DispatchRegisteredWorkersGauge).Update(int64(len(d.workers)))
	return nil
}

// DeregisterWorker forgets a worker. Tasks it was running go back into the
// heap so other workers can claim them.
func (d *Dispatcher) DeregisterWorker(workerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[workerID]
	if !ok {
		return
	}
	delete(d.workers, workerID)

	requeued := 0
	for taskID := range w.running {
		record := d.tasks[taskID]
		if record == nil {
			continue
		}
		record.workerID = ""
		d.heap.InsertTask(taskID, record.taskType, record.submitterID)
		requeued++
	}
	log.WithFields(log.Fields{"workerID": workerID, "requeued": requeued}).Info("worker deregistered")
	d.stat.Gauge(stats.DispatchRegisteredWorkersGauge).Update(int64(len(d.workers)))
	d.stat.Gauge(stats.DispatchRunningTasksGauge).Update(int64(d.runningCount()))
}

// NextTasks claims up to max tasks for a registered worker. The worker's
// remaining capacity, declared capacity minus what it is running, becomes
// the claim budget. An empty result means nothing claimable right now.
func (d *Dispatcher) NextTasks(workerID string, max int) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[workerID]
	if !ok {
		return nil, errors.Errorf("worker %s is not registered", workerID)
	}

	space := make(map[string]int, len(w.caps.MaxByType))
	for typeName, declared := range w.caps.MaxByType {
		if typeName == taskheap.TaskTypeAny {
			space[typeName] = declared - len(w.running)
		} else {
			space[typeName] = declared - w.runningByType[typeName]
		}
	}

	taken := d.heap.TakeTasks(max, w.caps.GroupPrefs, w.caps.ExcludedGroups, space)
	for _, taskID := range taken {
		record := d.tasks[taskID]
		if record == nil {
			// Heap entries always come from Submit, an untracked id would
			// mean the ledgers diverged.
			log.WithFields(log.Fields{"taskID": taskID, "workerID": workerID}).Error("claimed task has no record")
			continue
		}
		record.workerID = workerID
		w.running[taskID] = true
		w.runningByType[record.taskType]++
	}

	d.stat.Counter(stats.DispatchClaimRequestsCounter).Inc(1)
	if len(taken) == 0 {
		d.stat.Counter(stats.DispatchEmptyClaimsCounter).Inc(1)
	} else {
		d.stat.Histogram(stats.DispatchClaimBatchSizeHistogram).Update(int64(len(taken)))
	}
	d.stat.Gauge(stats.DispatchRunningTasksGauge).Update(int64(d.runningCount()))
	return taken, nil
}

// TaskFinished reports that a worker completed a task, successfully or not.
// The task leaves the ledger and its id becomes reusable.
func (d *Dispatcher) TaskFinished(workerID string, taskID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[workerID]
	if !ok {
		return errors.Errorf("worker %s is not registered", workerID)
	}
	if !w.running[taskID] {
		return errors.Errorf("task %d is not running on worker %s", taskID, workerID)
	}

	record := d.tasks[taskID]
	delete(w.running, taskID)
	if record != nil {
		w.runningByType[record.taskType]--
		delete(d.tasks, taskID)
	}

	d.stat.Counter(stats.DispatchFinishedTasksCounter).Inc(1)
	d.stat.Gauge(stats.DispatchRunningTasksGauge).Update(int64(d.runningCount()))
	return nil
}

// ExpireTasks drops the listed tasks if they are still waiting in the heap.
// Tasks already running are left alone, their workers will report them.
func (d *Dispatcher) ExpireTasks(taskIDs []int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, taskID := range taskIDs {
		record, ok := d.tasks[taskID]
		if !ok || record.workerID != "" {
			continue
		}
		// One call per id, the heap clears at most one slot per call.
		d.heap.RemoveExpiredTasks(map[int64]bool{taskID: true})
		delete(d.tasks, taskID)
		d.stat.Counter(stats.DispatchExpiredTasksCounter).Inc(1)
	}
}

// RefreshGroups reruns the heap's group mapper over every waiting task,
// for when the mapping policy reloads.
func (d *Dispatcher) RefreshGroups() {
	d.heap.RecomputeGroups()
}

// Status is a point-in-time summary for monitoring endpoints.
type Status struct {
	RegisteredWorkers int `json:"registeredWorkers"`
	PendingTasks      int `json:"pendingTasks"`
	RunningTasks      int `json:"runningTasks"`
	HeapSize          int `json:"heapSize"`
	HeapActualSize    int `json:"heapActualSize"`
	HeapFragmentation int `json:"heapFragmentation"`
}

func (d *Dispatcher) CurrentStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	running := d.runningCount()
	return Status{
		RegisteredWorkers: len(d.workers),
		PendingTasks:      len(d.tasks) - running,
		RunningTasks:      running,
		HeapSize:          d.heap.Size(),
		HeapActualSize:    d.heap.ActualSize(),
		HeapFragmentation: d.heap.Fragmentation(),
	}
}

// Lock held by caller.
func (d *Dispatcher) runningCount() int {
	running := 0
	for _, w := range d.workers {
		running += len(w.running)
	}
	return running
}

func copyCapacity(caps WorkerCapacity) WorkerCapacity {
	copied := WorkerCapacity{
		MaxByType:      make(map[string]int, len(caps.MaxByType)),
		GroupPrefs:     append([]int{}, caps.GroupPrefs...),
		ExcludedGroups: make(map[int]bool, len(caps.ExcludedGroups)),
	}
	for typeName, max := range caps.MaxByType {
		copied.MaxByType[typeName] = max
	}
	for group, excluded := range caps.ExcludedGroups {
		copied.ExcludedGroups[group] = excluded
	}
	return copied
}
