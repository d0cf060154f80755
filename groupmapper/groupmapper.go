// Package groupmapper provides ready made group mapping policies for the
// task heap. A policy decides which scheduling group a task belongs to from
// its id, type, and submitter.
package groupmapper

import (
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/twitter/groupcache/consistenthash"

	"github.com/dodohome/dodo/taskheap"
)

// Fixed puts every task in the same group. The zero group is the usual
// choice when group scheduling is not in play.
func Fixed(groupID int) taskheap.GroupMapperFunction {
	return func(taskID int64, taskType string, submitterID string) int {
		return groupID
	}
}

// HashBySubmitter spreads submitters uniformly over numGroups groups, so one
// submitter's tasks always land in the same group.
func HashBySubmitter(numGroups int) taskheap.GroupMapperFunction {
	if numGroups < 1 {
		numGroups = 1
	}
	return func(taskID int64, taskType string, submitterID string) int {
		h := fnv.New32a()
		h.Write([]byte(submitterID))
		return int(h.Sum32() % uint32(numGroups))
	}
}

// Nodes per group on the hash ring, same weighting groupcache uses for its
// peer ring.
const hashRingReplicas = 50

// ConsistentHashBySubmitter is HashBySubmitter on a consistent hash ring:
// when deployments change numGroups, most submitters keep their old group,
// which keeps RecomputeGroups churn low.
func ConsistentHashBySubmitter(numGroups int) taskheap.GroupMapperFunction {
	if numGroups < 1 {
		numGroups = 1
	}
	ring := consistenthash.New(hashRingReplicas, nil)
	for g := 0; g < numGroups; g++ {
		ring.Add(strconv.Itoa(g))
	}
	return func(taskID int64, taskType string, submitterID string) int {
		group, _ := strconv.Atoi(ring.Get(submitterID))
		return group
	}
}

// SubmitterTable maps listed submitters to assigned groups and everyone else
// to a default. The table can be swapped at runtime; pair a swap with
// TasksHeap.RecomputeGroups so waiting tasks pick up the new mapping.
type SubmitterTable struct {
	mu           sync.RWMutex
	groups       map[string]int
	defaultGroup int
}

func NewSubmitterTable(defaultGroup int) *SubmitterTable {
	return &SubmitterTable{
		groups:       map[string]int{},
		defaultGroup: defaultGroup,
	}
}

// Load replaces the whole mapping. The given map is copied.
func (t *SubmitterTable) Load(groups map[string]int) {
	copied := make(map[string]int, len(groups))
	for submitter, group := range groups {
		copied[submitter] = group
	}
	t.mu.Lock()
	t.groups = copied
	t.mu.Unlock()
}

// GetGroup satisfies taskheap.GroupMapperFunction as a method value.
func (t *SubmitterTable) GetGroup(taskID int64, taskType string, submitterID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if group, ok := t.groups[submitterID]; ok {
		return group
	}
	return t.defaultGroup
}
