package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dodohome/dodo/groupmapper"
)

var tests = []string{"demo", "bench"}

// Tests to ensure configs are properly specified and that they parse correctly.
func TestGettingConfigurations(t *testing.T) {
	for _, configSelector := range tests {
		_, err := GetConfigs(configSelector)
		assert.Nil(t, err, fmt.Sprintf("error getting dispatch config. %s", err))
	}

	selector := "invalid.selector"
	config, err := GetConfigs(selector)
	assert.NotNil(t, err, fmt.Sprintf("configuration returned for %s: %s", selector, config))
}

// TestLiteralJSONConfig tests passing config text instead of a config name.
func TestLiteralJSONConfig(t *testing.T) {
	config, err := GetConfigs(`{"Heap": {"Size": 7}}`)
	assert.Nil(t, err)
	assert.Equal(t, 7, config.Heap.Size)

	// Sections the literal config leaves unset still come from the default.
	assert.Equal(t, "fixed", config.GroupMap.Policy)
	assert.Equal(t, 2, config.Sim.Workers)
}

// TestDefaultSectionMerging tests filling unset sections with default values.
func TestDefaultSectionMerging(t *testing.T) {
	config, err := GetConfigs("demo")
	assert.Nil(t, err)
	assert.Equal(t, "table", config.GroupMap.Policy)
	assert.Equal(t, 100, config.Heap.Size)
	assert.Equal(t, 10, config.Heap.MaxFragmentation)

	config, err = GetConfigs("default")
	assert.Nil(t, err)
	assert.Equal(t, 1000, config.Heap.Size)
	assert.Equal(t, "fixed", config.GroupMap.Policy)
	assert.Equal(t, 2, config.Sim.Workers)
}

func TestCreateHeap(t *testing.T) {
	config, err := GetConfigs("bench")
	assert.Nil(t, err)

	heap, err := config.Heap.Create(groupmapper.Fixed(0), nil)
	assert.Nil(t, err)
	assert.Equal(t, 5000, heap.Size())
	assert.Equal(t, 50, heap.AutoGrowPercent())
	assert.Equal(t, 500, heap.MaxFragmentation())

	_, err = HeapJSONConfig{Size: 0}.Create(groupmapper.Fixed(0), nil)
	assert.NotNil(t, err, "expected error for zero heap size")
}

func TestCreateMapper(t *testing.T) {
	mapper, err := GroupMapJSONConfig{Policy: "fixed", FixedGroup: 3}.CreateMapper()
	assert.Nil(t, err)
	assert.Equal(t, 3, mapper(1, "build", "alice"))

	mapper, err = GroupMapJSONConfig{
		Policy:       "table",
		DefaultGroup: 9,
		Table:        map[string]int{"alice": 1},
	}.CreateMapper()
	assert.Nil(t, err)
	assert.Equal(t, 1, mapper(1, "build", "alice"))
	assert.Equal(t, 9, mapper(2, "build", "carol"))

	_, err = GroupMapJSONConfig{Policy: "nope"}.CreateMapper()
	assert.NotNil(t, err, "expected error for unknown policy")
}
