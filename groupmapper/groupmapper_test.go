package groupmapper

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/dodohome/dodo/taskheap"
)

func TestFixed(t *testing.T) {
	mapper := Fixed(7)
	if g := mapper(1, "build", "alice"); g != 7 {
		t.Fatalf("Unexpected group %v (expected 7)", g)
	}
	if g := mapper(2, "test", "bob"); g != 7 {
		t.Fatalf("Unexpected group %v (expected 7)", g)
	}
}

func TestHashBySubmitterIsStableAndInRange(t *testing.T) {
	mapper := HashBySubmitter(4)
	for i := 0; i < 20; i++ {
		submitter := fmt.Sprintf("submitter-%d", i)
		g := mapper(int64(i), "build", submitter)
		if g < 0 || g >= 4 {
			t.Fatalf("Unexpected group %v for %v (expected 0..3)", g, submitter)
		}
		if again := mapper(int64(i+100), "test", submitter); again != g {
			t.Fatalf("Unexpected group %v for %v (expected stable %v)", again, submitter, g)
		}
	}
}

func TestHashBySubmitterSpreadsSubmitters(t *testing.T) {
	mapper := HashBySubmitter(4)
	used := map[int]bool{}
	for i := 0; i < 100; i++ {
		used[mapper(0, "build", fmt.Sprintf("submitter-%d", i))] = true
	}
	if len(used) != 4 {
		t.Fatalf("Unexpected group spread %v (expected all 4 groups used)", used)
	}
}

func TestConsistentHashKeepsMostGroupsOnResize(t *testing.T) {
	small := ConsistentHashBySubmitter(8)
	large := ConsistentHashBySubmitter(9)

	moved := 0
	const submitters = 200
	for i := 0; i < submitters; i++ {
		submitter := fmt.Sprintf("submitter-%d", i)
		g := small(0, "build", submitter)
		if g < 0 || g >= 8 {
			t.Fatalf("Unexpected group %v for %v (expected 0..7)", g, submitter)
		}
		if large(0, "build", submitter) != g {
			moved++
		}
	}
	// Adding one group should remap roughly 1/9th of submitters, not most.
	if moved > submitters/2 {
		t.Fatalf("Unexpected churn %v of %v submitters moved groups", moved, submitters)
	}
}

func TestSubmitterTable(t *testing.T) {
	table := NewSubmitterTable(0)
	table.Load(map[string]int{"alice": 1, "bob": 2})

	if g := table.GetGroup(1, "build", "alice"); g != 1 {
		t.Fatalf("Unexpected group %v (expected 1)", g)
	}
	if g := table.GetGroup(2, "build", "carol"); g != 0 {
		t.Fatalf("Unexpected group %v (expected default 0)", g)
	}
}

func TestSubmitterTableReloadWithRecompute(t *testing.T) {
	table := NewSubmitterTable(0)
	table.Load(map[string]int{"alice": 1})

	h := taskheap.NewTasksHeap(8, table.GetGroup, nil)
	h.InsertTask(1, "build", "alice")
	h.InsertTask(2, "build", "carol")

	table.Load(map[string]int{"alice": 5, "carol": 6})
	h.RecomputeGroups()

	groups := []int{}
	h.Scan(func(e taskheap.TaskEntry) {
		groups = append(groups, e.GroupID)
	})
	if !reflect.DeepEqual(groups, []int{5, 6}) {
		t.Fatalf("Unexpected groups %v (expected [5 6])", groups)
	}
}
