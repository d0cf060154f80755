package taskheap

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func Test_TakeTasks_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated takes drain the heap in insertion order", prop.ForAll(
		func(numTasks int, takeMax int) bool {
			h := NewTasksHeap(4, fixedGroup(1), nil)
			expected := []int64{}
			for id := int64(1); id <= int64(numTasks); id++ {
				h.InsertTask(id, "build", "alice")
				expected = append(expected, id)
			}
			drained := []int64{}
			for {
				got := h.TakeTasks(takeMax, nil, nil, nil)
				if len(got) == 0 {
					break
				}
				drained = append(drained, got...)
			}
			return reflect.DeepEqual(drained, expected)
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 10),
	))

	properties.Property("every task is claimed exactly once whatever the preferences", prop.ForAll(
		func(taskGroups []int, prefs []int, takeMax int) bool {
			mapper := func(taskID int64, taskType string, submitterID string) int {
				return taskGroups[taskID-1]
			}
			h := NewTasksHeap(8, mapper, nil)
			for i := range taskGroups {
				h.InsertTask(int64(i+1), "build", "alice")
			}
			claims := map[int64]int{}
			for {
				got := h.TakeTasks(takeMax, prefs, nil, nil)
				if len(got) == 0 {
					break
				}
				for _, id := range got {
					claims[id]++
				}
			}
			if len(claims) != len(taskGroups) {
				return false
			}
			for _, n := range claims {
				if n != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.IntRange(0, 7)),
		gen.IntRange(1, 7),
	))

	properties.Property("fragmentation never exceeds the compaction threshold", prop.ForAll(
		func(numTasks, takeMax, maxFrag int) bool {
			h := NewTasksHeap(16, fixedGroup(1), nil)
			h.SetMaxFragmentation(maxFrag)
			for id := int64(1); id <= int64(numTasks); id++ {
				h.InsertTask(id, "build", "alice")
			}
			for {
				got := h.TakeTasks(takeMax, nil, nil, nil)
				if h.Fragmentation() > maxFrag {
					return false
				}
				if len(got) == 0 {
					return true
				}
			}
		},
		gen.IntRange(0, 200),
		gen.IntRange(1, 9),
		gen.IntRange(0, 10),
	))

	properties.Property("per-type budgets are never exceeded in one take", prop.ForAll(
		func(taskTypes []int, buildBudget int) bool {
			names := []string{"build", "test", "bench"}
			h := NewTasksHeap(8, fixedGroup(1), nil)
			for i, ti := range taskTypes {
				h.InsertTask(int64(i+1), names[ti], "alice")
			}
			got := h.TakeTasks(len(taskTypes)+1, nil, nil, map[string]int{"build": buildBudget})
			builds := 0
			for _, id := range got {
				if names[taskTypes[int(id)-1]] == "build" {
					builds++
				}
			}
			return builds <= buildBudget
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
