package taskheap

import "fmt"

// TaskTypeAny is the capacity key that applies to tasks of any type.
// Workers use it to cap their total load across types in one claim map.
const TaskTypeAny = "any"

// Task types intern from 1, so id 0 is free to stand for TaskTypeAny in
// translated capacity maps. It is never assigned to a stored task.
const taskTypeAnyID = 0

// GroupMapperFunction assigns a task to a scheduling group at insert time.
// It is invoked before the heap takes its lock on insert, so implementations
// may consult outside state, but they must be safe for concurrent use.
type GroupMapperFunction func(taskID int64, taskType string, submitterID string) int

// TaskEntry is one slot of the heap's backing array. A TaskID of zero marks
// a slot that is unused or whose task has been claimed or removed.
type TaskEntry struct {
	TaskID      int64
	TaskTypeID  int
	SubmitterID string
	GroupID     int
}

func (e TaskEntry) live() bool {
	return e.TaskID > 0
}

func (e TaskEntry) String() string {
	return fmt.Sprintf("TaskEntry{taskID:%d taskTypeID:%d submitterID:%q groupID:%d}",
		e.TaskID, e.TaskTypeID, e.SubmitterID, e.GroupID)
}
