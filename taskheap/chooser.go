package taskheap

// chosenTask records one selection made by a chooser. The position is kept
// so the heap can re-check the slot before tombstoning it.
type chosenTask struct {
	position   int
	taskID     int64
	taskTypeID int
}

// tasksChooser picks which live entries one TakeTasks call should claim.
//
// Candidates are bucketed by group preference rank during the scan and
// decided in a final pass, so that tasks from unlisted groups are handed out
// only with whatever budget the preferred groups left over. Budgets are keyed
// by interned task type id, with taskTypeAnyID capping the claim as a whole.
// A chooser is used for a single scan and is not safe for concurrent use.
type tasksChooser struct {
	rankByGroup    map[int]int
	unlistedRank   int
	excludedGroups map[int]bool
	availableSpace map[int]int
	max            int
	buckets        [][]chosenTask
}

// newTasksChooser sets up a chooser for one scan. groups lists preferred
// group ids from most to least preferred; an empty list ranks every group
// equally. The chooser owns availableSpace and decrements it as it selects.
func newTasksChooser(groups []int, excludedGroups map[int]bool, availableSpace map[int]int, max int) *tasksChooser {
	c := &tasksChooser{
		rankByGroup:    make(map[int]int, len(groups)),
		unlistedRank:   len(groups),
		excludedGroups: excludedGroups,
		availableSpace: availableSpace,
		max:            max,
		buckets:        make([][]chosenTask, len(groups)+1),
	}
	for i, group := range groups {
		if _, ok := c.rankByGroup[group]; !ok {
			c.rankByGroup[group] = i
		}
	}
	return c
}

// accept offers one live entry in scan order. Entries that can never be
// chosen are dropped here, the rest are bucketed by rank for chosenTasks.
func (c *tasksChooser) accept(position int, entry *TaskEntry) {
	if c.max <= 0 {
		return
	}
	if c.excludedGroups[entry.GroupID] {
		return
	}
	// Budgets only shrink after accept, so a budget that starts exhausted
	// stays exhausted.
	if space, ok := c.availableSpace[entry.TaskTypeID]; ok && space <= 0 {
		return
	}
	if anySpace, ok := c.availableSpace[taskTypeAnyID]; ok && anySpace <= 0 {
		return
	}

	rank := c.unlistedRank
	if r, ok := c.rankByGroup[entry.GroupID]; ok {
		rank = r
	}
	c.buckets[rank] = append(c.buckets[rank], chosenTask{
		position:   position,
		taskID:     entry.TaskID,
		taskTypeID: entry.TaskTypeID,
	})
}

// chosenTasks decides the claim: buckets are drained most preferred rank
// first, scan order within a rank, charging the per-type and overall budgets
// until one of them or max runs out.
func (c *tasksChooser) chosenTasks() []chosenTask {
	chosen := []chosenTask{}
	remaining := c.max
	for _, bucket := range c.buckets {
		for _, candidate := range bucket {
			if remaining <= 0 {
				return chosen
			}
			if anySpace, ok := c.availableSpace[taskTypeAnyID]; ok && anySpace <= 0 {
				return chosen
			}
			if space, ok := c.availableSpace[candidate.taskTypeID]; ok {
				if space <= 0 {
					continue
				}
				c.availableSpace[candidate.taskTypeID] = space - 1
			}
			if _, ok := c.availableSpace[taskTypeAnyID]; ok {
				c.availableSpace[taskTypeAnyID]--
			}
			chosen = append(chosen, candidate)
			remaining--
		}
	}
	return chosen
}
