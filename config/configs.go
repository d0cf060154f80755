package config

// DispatchConfigs is the map of available configurations.
var DispatchConfigs = map[string]string{
	"default": defaultConfig,
	"demo":    demoConfig,
	"bench":   benchConfig,
}

// defaultConfig supplies the values used for sections a selected
// configuration leaves unset.
const defaultConfig = `{
  "Heap": {
    "Size": 1000
  },
  "GroupMap": {
    "Policy": "fixed",
    "FixedGroup": 0
  },
  "Sim": {
    "Submitters": 2,
    "SubmitRate": 50,
    "Workers": 2,
    "ClaimMax": 5,
    "TaskTypes": ["build", "test"],
    "WorkerMaxByType": {"any": 10},
    "DurationSec": 10
  }
}`

// demoConfig is a small setup with a hand written submitter table, handy for
// watching group preferences do their thing.
const demoConfig = `{
  "Heap": {
    "Size": 100,
    "MaxFragmentation": 10
  },
  "GroupMap": {
    "Policy": "table",
    "DefaultGroup": 0,
    "Table": {"alice": 1, "bob": 2}
  },
  "Sim": {
    "Submitters": 3,
    "SubmitRate": 10,
    "Workers": 2,
    "ClaimMax": 3,
    "TaskTypes": ["build", "test", "bench"],
    "WorkerMaxByType": {"build": 2, "any": 5},
    "DurationSec": 15
  }
}`

// benchConfig drives enough load to make growth and compaction visible in
// the rendered stats.
const benchConfig = `{
  "Heap": {
    "Size": 5000,
    "AutoGrowPercent": 50,
    "MaxFragmentation": 500
  },
  "GroupMap": {
    "Policy": "consistent",
    "NumGroups": 16
  },
  "Sim": {
    "Submitters": 8,
    "SubmitRate": 500,
    "Workers": 6,
    "ClaimMax": 20,
    "TaskTypes": ["build", "test", "bench", "deploy"],
    "WorkerMaxByType": {"any": 100},
    "DurationSec": 30
  }
}`
