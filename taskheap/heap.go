package taskheap

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dodohome/dodo/common/log/hooks"
	"github.com/dodohome/dodo/common/stats"
)

// DefaultAutoGrowPercent is how much the backing array grows, relative to its
// current capacity, when an insert finds it full.
const DefaultAutoGrowPercent = 25

// Used to get proper logging from tests...
func init() {
	if loglevel := os.Getenv("DODO_LOGLEVEL"); loglevel != "" {
		level, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Error(err)
			return
		}
		log.SetLevel(level)
		log.AddHook(hooks.NewContextHook())
	} else {
		// growth and compaction log per event, which drowns test output
		log.SetLevel(log.ErrorLevel)
	}
}

// TasksHeap holds every waiting task in a flat array scanned in insertion
// order. Claimed and removed tasks leave zeroed slots behind instead of
// shifting the tail; the heap tracks those tombstones and compacts the array
// when they exceed maxFragmentation.
//
// All operations are safe for concurrent use. Writers block readers, so a
// steady claim load cannot starve inserts.
type TasksHeap struct {
	mu sync.RWMutex

	// entries[0:actualSize] is the active prefix; slots below
	// minValidPosition are known to be tombstones.
	entries          []TaskEntry
	size             int
	actualSize       int
	minValidPosition int

	fragmentation    int
	maxFragmentation int
	autoGrowPercent  int

	// Task type names intern to small ids, assigned in first-seen order
	// starting from 1. Interning is append-only.
	typeIDs    map[string]int
	typeNames  map[int]string
	lastTypeID int

	groupMapper GroupMapperFunction
	stat        stats.StatsReceiver
}

// NewTasksHeap returns a heap with the given initial capacity. The group
// mapper is consulted on every insert and recompute. maxFragmentation
// defaults to a quarter of the initial capacity, autoGrowPercent to
// DefaultAutoGrowPercent; both can be adjusted later.
func NewTasksHeap(size int, groupMapper GroupMapperFunction, stat stats.StatsReceiver) *TasksHeap {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	h := &TasksHeap{
		entries:          make([]TaskEntry, size),
		size:             size,
		maxFragmentation: size / 4,
		autoGrowPercent:  DefaultAutoGrowPercent,
		typeIDs:          map[string]int{},
		typeNames:        map[int]string{},
		groupMapper:      groupMapper,
		stat:             stat,
	}
	h.stat.Gauge(stats.HeapSizeGauge).Update(int64(size))
	return h
}

// InsertTask appends a task to the active prefix, growing the backing array
// first if it is full. The group mapper runs before the heap locks, so a slow
// mapper never stalls claims.
func (h *TasksHeap) InsertTask(taskID int64, taskType string, submitterID string) {
	groupID := h.groupMapper(taskID, taskType, submitterID)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.actualSize == h.size {
		h.grow()
	}
	typeID, ok := h.typeIDs[taskType]
	if !ok {
		h.lastTypeID++
		typeID = h.lastTypeID
		h.typeIDs[taskType] = typeID
		h.typeNames[typeID] = taskType
	}
	entry := &h.entries[h.actualSize]
	h.actualSize++
	entry.TaskID = taskID
	entry.TaskTypeID = typeID
	entry.SubmitterID = submitterID
	entry.GroupID = groupID

	h.stat.Counter(stats.HeapInsertedTasksCounter).Inc(1)
	h.stat.Gauge(stats.HeapActualSizeGauge).Update(int64(h.actualSize))
}

// Lock held by caller.
func (h *TasksHeap) grow() {
	delta := h.size * h.autoGrowPercent / 100
	if delta < 1 {
		delta = 1
	}
	newSize := h.size + delta
	log.WithFields(log.Fields{"size": h.size, "newSize": newSize}).Info("growing tasks heap")
	grown := make([]TaskEntry, newSize)
	copy(grown, h.entries)
	h.entries = grown
	h.size = newSize

	h.stat.Counter(stats.HeapGrowthCounter).Inc(1)
	h.stat.Gauge(stats.HeapSizeGauge).Update(int64(newSize))
}

// TakeTasks claims up to max tasks for one worker and returns their ids.
// groups lists the worker's preferred group ids, most preferred first; an
// empty list treats every group the same. Tasks in excludedGroups are never
// returned. availableSpace caps the claim per task type name, with the
// TaskTypeAny key capping the claim as a whole; types without a key are
// bounded only by max. Claimed slots become tombstones.
func (h *TasksHeap) TakeTasks(max int, groups []int, excludedGroups map[int]bool, availableSpace map[string]int) []int64 {
	defer h.stat.Latency(stats.HeapTakeLatency_ms).Time().Stop()

	// The "any" key is not interned, translate it before locking.
	spaceByTypeID := make(map[int]int, len(availableSpace))
	if forAny, ok := availableSpace[TaskTypeAny]; ok {
		spaceByTypeID[taskTypeAnyID] = forAny
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Types this heap has never seen have no live entries either, dropping
	// their keys loses nothing.
	for taskType, space := range availableSpace {
		if typeID, ok := h.typeIDs[taskType]; ok {
			spaceByTypeID[typeID] = space
		}
	}

	chooser := newTasksChooser(groups, excludedGroups, spaceByTypeID, max)
	for i := h.minValidPosition; i < h.actualSize; i++ {
		entry := &h.entries[i]
		if entry.live() {
			chooser.accept(i, entry)
		}
	}

	taken := []int64{}
	for _, chosen := range chooser.chosenTasks() {
		entry := &h.entries[chosen.position]
		if entry.TaskID != chosen.taskID {
			continue
		}
		// GroupID stays behind on the tombstone, nothing reads it once
		// TaskID is zero.
		entry.TaskID = 0
		entry.TaskTypeID = 0
		entry.SubmitterID = ""
		h.fragmentation++
		taken = append(taken, chosen.taskID)
		if chosen.position == h.minValidPosition {
			h.minValidPosition++
		}
	}

	h.stat.Counter(stats.HeapTakeCallsCounter).Inc(1)
	h.stat.Counter(stats.HeapClaimedTasksCounter).Inc(int64(len(taken)))
	if h.fragmentation > h.maxFragmentation {
		h.compact()
	}
	h.stat.Gauge(stats.HeapFragmentationGauge).Update(int64(h.fragmentation))
	return taken
}

// RemoveExpiredTasks drops the first entry whose id is in taskIDs, scanning
// the whole backing array. A task id is listed in at most one slot, so at
// most one entry is cleared per call. The slot is fully zeroed but not
// counted as fragmentation.
func (h *TasksHeap) RemoveExpiredTasks(taskIDs map[int64]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.entries {
		entry := &h.entries[i]
		if taskIDs[entry.TaskID] {
			if entry.live() {
				h.stat.Counter(stats.HeapExpiredTasksCounter).Inc(1)
			}
			entry.TaskID = 0
			entry.TaskTypeID = 0
			entry.SubmitterID = ""
			entry.GroupID = 0
			break
		}
	}
}

// Scan visits every live task in scan order. Entries are passed by value,
// mutations do not reach the heap.
func (h *TasksHeap) Scan(visit func(TaskEntry)) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := h.minValidPosition; i < h.actualSize; i++ {
		if h.entries[i].live() {
			visit(h.entries[i])
		}
	}
}

// ScanFull visits every slot of the active prefix, tombstones included.
// Meant for debugging and state dumps.
func (h *TasksHeap) ScanFull(visit func(TaskEntry)) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := 0; i < h.actualSize; i++ {
		visit(h.entries[i])
	}
}

// RecomputeGroups reruns the group mapper over every live task, for when
// mapping rules change while tasks wait. The mapper runs under the heap's
// write lock here, so it should be fast.
func (h *TasksHeap) RecomputeGroups() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := h.minValidPosition; i < h.actualSize; i++ {
		entry := &h.entries[i]
		if !entry.live() {
			continue
		}
		newGroup := h.groupMapper(entry.TaskID, h.typeNames[entry.TaskTypeID], entry.SubmitterID)
		if entry.GroupID != newGroup {
			// limit writes on memory, groups rarely change
			entry.GroupID = newGroup
		}
	}
}

// RunCompaction squeezes the tombstones out of the backing array on demand.
// Claims trigger the same pass automatically past maxFragmentation.
func (h *TasksHeap) RunCompaction() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.compact()
}

// Lock held by caller.
func (h *TasksHeap) compact() {
	start := time.Now()
	log.WithFields(log.Fields{
		"fragmentation":    h.fragmentation,
		"actualSize":       h.actualSize,
		"size":             h.size,
		"minValidPosition": h.minValidPosition,
	}).Info("running tasks heap compaction")

	// Positions are stored +1 so that 0 can mark the end of the list.
	nonEmptyPositions := make([]int, h.size)
	insertPos := 0
	for pos := range h.entries {
		if h.entries[pos].live() {
			nonEmptyPositions[insertPos] = pos + 1
			insertPos++
		}
	}
	writePos := 0
	for _, nextNonEmpty := range nonEmptyPositions {
		if nextNonEmpty == 0 {
			break
		}
		h.entries[writePos] = h.entries[nextNonEmpty-1]
		writePos++
	}
	for j := writePos; j < h.size; j++ {
		h.entries[j] = TaskEntry{}
	}

	h.minValidPosition = 0
	// Leave one empty slot of headroom before the next grow, but never point
	// past the allocated array.
	h.actualSize = writePos + 1
	if h.actualSize > h.size {
		h.actualSize = h.size
	}
	h.fragmentation = 0

	h.stat.Counter(stats.HeapCompactionsCounter).Inc(1)
	h.stat.Gauge(stats.HeapActualSizeGauge).Update(int64(h.actualSize))
	h.stat.Gauge(stats.HeapFragmentationGauge).Update(0)
	log.WithFields(log.Fields{
		"actualSize": h.actualSize,
		"elapsed":    time.Since(start),
	}).Info("tasks heap compaction done")
}

// ResolveTaskType returns the task type name interned under the given id, or
// the empty string for ids the heap has never assigned.
func (h *TasksHeap) ResolveTaskType(taskTypeID int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.typeNames[taskTypeID]
}

// Size returns the allocated capacity of the backing array.
func (h *TasksHeap) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// ActualSize returns the length of the active prefix, tombstones included.
func (h *TasksHeap) ActualSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.actualSize
}

// Fragmentation returns the tombstones left by claims since the last
// compaction.
func (h *TasksHeap) Fragmentation() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fragmentation
}

func (h *TasksHeap) MaxFragmentation() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxFragmentation
}

// SetMaxFragmentation adjusts the compaction threshold. Takes effect on the
// next claim.
func (h *TasksHeap) SetMaxFragmentation(max int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxFragmentation = max
}

func (h *TasksHeap) AutoGrowPercent() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.autoGrowPercent
}

// SetAutoGrowPercent adjusts how much the backing array grows when full.
func (h *TasksHeap) SetAutoGrowPercent(pct int) error {
	if pct <= 0 {
		return errors.Errorf("autoGrowPercent must be > 0, got %d", pct)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoGrowPercent = pct
	return nil
}
