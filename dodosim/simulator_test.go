package dodosim

import (
	"testing"
)

func TestSimRunsToCompletion(t *testing.T) {
	sim, err := MakeSimulator(&Args{
		ConfigName:  "default",
		HTTPAddr:    "localhost:0",
		DurationSec: 1,
	})
	if err != nil {
		t.Fatalf("Unexpected error making simulator: %v", err)
	}
	if err := sim.RunSim(); err != nil {
		t.Fatalf("Unexpected error running sim: %v", err)
	}

	status := sim.dispatcher.CurrentStatus()
	if status.RegisteredWorkers != 0 {
		t.Fatalf("Unexpected workers still registered after sim: %d", status.RegisteredWorkers)
	}
	if status.RunningTasks != 0 {
		t.Fatalf("Unexpected tasks still running after sim: %d", status.RunningTasks)
	}
	if sim.nextTaskID == 0 {
		t.Fatalf("Expected the sim to submit at least one task")
	}
}

func TestBenchDrainsAllTasks(t *testing.T) {
	sim, err := MakeSimulator(&Args{
		ConfigName: "default",
		HTTPAddr:   "localhost:0",
		NumTasks:   500,
	})
	if err != nil {
		t.Fatalf("Unexpected error making simulator: %v", err)
	}
	if err := sim.RunBench(); err != nil {
		t.Fatalf("Unexpected error running bench: %v", err)
	}

	status := sim.dispatcher.CurrentStatus()
	if status.PendingTasks != 0 {
		t.Fatalf("Unexpected tasks still pending after bench: %d", status.PendingTasks)
	}
	if status.RunningTasks != 0 {
		t.Fatalf("Unexpected tasks still running after bench: %d", status.RunningTasks)
	}
	if sim.nextTaskID < 500 {
		t.Fatalf("Expected the bench to submit all tasks, got %d", sim.nextTaskID)
	}
}

func TestBenchRejectsZeroTasks(t *testing.T) {
	sim, err := MakeSimulator(&Args{ConfigName: "default", HTTPAddr: "localhost:0"})
	if err != nil {
		t.Fatalf("Unexpected error making simulator: %v", err)
	}
	if err := sim.RunBench(); err == nil {
		t.Fatalf("Expected an error for a bench without a task count")
	}
}

func TestMakeSimulatorRejectsUnknownConfig(t *testing.T) {
	_, err := MakeSimulator(&Args{ConfigName: "no_such_config", HTTPAddr: "localhost:0"})
	if err == nil {
		t.Fatalf("Expected an error for an unknown config name")
	}
}

func TestCLIConfigsCommand(t *testing.T) {
	cli, err := NewSimpleCLIClient()
	if err != nil {
		t.Fatalf("Unexpected error creating CLI: %v", err)
	}
	c := cli.(*simpleCLIClient)
	c.rootCmd.SetArgs([]string{"configs", "--name", "demo"})
	if err := c.rootCmd.Execute(); err != nil {
		t.Fatalf("Unexpected error running configs command: %v", err)
	}

	c.rootCmd.SetArgs([]string{"configs", "--name", "no_such_config"})
	if err := c.rootCmd.Execute(); err == nil {
		t.Fatalf("Expected an error for an unknown config name")
	}
}
