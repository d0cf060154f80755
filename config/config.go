// Package config holds the named JSON configurations for the dodo binaries
// and the factories that turn them into live components.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dodohome/dodo/common/stats"
	"github.com/dodohome/dodo/groupmapper"
	"github.com/dodohome/dodo/taskheap"
)

// Default address the status server listens on.
const DefaultStatusAddr = "localhost:9091"

// JSONConfigs is the top level config structure holding the original json
// sections.
type JSONConfigs struct {
	Heap     HeapJSONConfig     `json:"Heap"`
	GroupMap GroupMapJSONConfig `json:"GroupMap"`
	Sim      SimJSONConfig      `json:"Sim"`
}

func (c JSONConfigs) String() string {
	return fmt.Sprintf("\n%s\n%s\n%s", c.Heap, c.GroupMap, c.Sim)
}

type HeapJSONConfig struct {
	Size             int `json:"Size"`             // initial capacity, default 1000
	AutoGrowPercent  int `json:"AutoGrowPercent"`  // 0 means the heap default
	MaxFragmentation int `json:"MaxFragmentation"` // 0 means the heap default (Size/4)
}

func (c HeapJSONConfig) String() string {
	return fmt.Sprintf("HeapJSONConfig: Size: %d, AutoGrowPercent: %d, MaxFragmentation: %d",
		c.Size, c.AutoGrowPercent, c.MaxFragmentation)
}

// Create builds the heap described by this section.
func (c HeapJSONConfig) Create(mapper taskheap.GroupMapperFunction, stat stats.StatsReceiver) (*taskheap.TasksHeap, error) {
	if c.Size <= 0 {
		return nil, fmt.Errorf("heap size must be > 0, got %d", c.Size)
	}
	heap := taskheap.NewTasksHeap(c.Size, mapper, stat)
	if c.AutoGrowPercent != 0 {
		if err := heap.SetAutoGrowPercent(c.AutoGrowPercent); err != nil {
			return nil, err
		}
	}
	if c.MaxFragmentation != 0 {
		heap.SetMaxFragmentation(c.MaxFragmentation)
	}
	return heap, nil
}

type GroupMapJSONConfig struct {
	Policy       string         `json:"Policy"`       // fixed, hash, consistent, table
	NumGroups    int            `json:"NumGroups"`    // for hash and consistent
	FixedGroup   int            `json:"FixedGroup"`   // for fixed
	DefaultGroup int            `json:"DefaultGroup"` // for table
	Table        map[string]int `json:"Table"`        // for table
}

func (c GroupMapJSONConfig) String() string {
	return fmt.Sprintf("GroupMapJSONConfig: Policy: %s, NumGroups: %d, FixedGroup: %d, DefaultGroup: %d, Table: %v",
		c.Policy, c.NumGroups, c.FixedGroup, c.DefaultGroup, c.Table)
}

// CreateMapper builds the group mapping policy described by this section.
func (c GroupMapJSONConfig) CreateMapper() (taskheap.GroupMapperFunction, error) {
	switch c.Policy {
	case "fixed":
		return groupmapper.Fixed(c.FixedGroup), nil
	case "hash":
		return groupmapper.HashBySubmitter(c.NumGroups), nil
	case "consistent":
		return groupmapper.ConsistentHashBySubmitter(c.NumGroups), nil
	case "table":
		table := groupmapper.NewSubmitterTable(c.DefaultGroup)
		table.Load(c.Table)
		return table.GetGroup, nil
	default:
		return nil, fmt.Errorf("invalid group map policy %s, supported values are [fixed hash consistent table]", c.Policy)
	}
}

type SimJSONConfig struct {
	Submitters      int            `json:"Submitters"`      // concurrent task submitters
	SubmitRate      int            `json:"SubmitRate"`      // tasks per second per submitter
	Workers         int            `json:"Workers"`         // concurrent claiming workers
	ClaimMax        int            `json:"ClaimMax"`        // max tasks per claim
	TaskTypes       []string       `json:"TaskTypes"`       // type names submitters draw from
	WorkerMaxByType map[string]int `json:"WorkerMaxByType"` // capacity declared by each worker
	DurationSec     int            `json:"DurationSec"`     // how long the sim runs, 0 means until signalled
}

func (c SimJSONConfig) String() string {
	return fmt.Sprintf("SimJSONConfig: Submitters: %d, SubmitRate: %d, Workers: %d, ClaimMax: %d, TaskTypes: %v, WorkerMaxByType: %v, DurationSec: %d",
		c.Submitters, c.SubmitRate, c.Workers, c.ClaimMax, c.TaskTypes, c.WorkerMaxByType, c.DurationSec)
}

// GetConfigText returns the JSON text for one configuration: the embedded
// text when the selector names one, otherwise the selector itself when it is
// literal JSON.
func GetConfigText(configSelector string) ([]byte, error) {
	if configText, ok := DispatchConfigs[configSelector]; ok {
		return []byte(configText), nil
	}
	if strings.HasPrefix(strings.TrimSpace(configSelector), "{") {
		log.Infof("using -config as literal JSON config: %v", configSelector)
		return []byte(configSelector), nil
	}
	keys := make([]string, 0, len(DispatchConfigs))
	for k := range DispatchConfigs {
		keys = append(keys, k)
	}
	return nil, fmt.Errorf("invalid configuration %s, supported values are %v or literal JSON", configSelector, keys)
}

// GetConfigs parses the named configuration, filling sections the selection
// leaves unset from the default configuration.
func GetConfigs(configName string) (*JSONConfigs, error) {
	defaultConfigText, _ := GetConfigText("default")
	defaultConfig := &JSONConfigs{}
	err := json.Unmarshal(defaultConfigText, defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse the default config: %v", err)
	}

	configText, err := GetConfigText(configName)
	if err != nil {
		return nil, err
	}
	parsed := &JSONConfigs{}
	err = json.Unmarshal(configText, parsed)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse top-level config: %v", err)
	}

	if parsed.Heap.Size == 0 {
		log.Infof("using default Heap config")
		parsed.Heap = defaultConfig.Heap
	}
	if parsed.GroupMap.Policy == "" {
		log.Infof("using default GroupMap config")
		parsed.GroupMap = defaultConfig.GroupMap
	}
	if parsed.Sim.Workers == 0 {
		log.Infof("using default Sim config")
		parsed.Sim = defaultConfig.Sim
	}
	return parsed, nil
}
