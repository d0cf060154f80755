package dodosim

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dodohome/dodo/config"
)

type benchCmd struct {
	logLevel   string
	configName string
	httpAddr   string
	numTasks   int
}

func (c *benchCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "bench",
		Short: "submit a fixed batch of tasks and report drain throughput",
	}
	r.Flags().StringVar(&c.logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	r.Flags().StringVar(&c.configName, "config", "bench", fmt.Sprintf("configuration to run, one of %v or literal JSON", configNames()))
	r.Flags().StringVar(&c.httpAddr, "http_addr", config.DefaultStatusAddr, "address to serve health and stats on")
	r.Flags().IntVar(&c.numTasks, "num_tasks", 100000, "how many tasks to submit and drain")
	return r
}

func (c *benchCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	sim, err := MakeSimulator(&Args{
		ConfigName: c.configName,
		HTTPAddr:   c.httpAddr,
		NumTasks:   c.numTasks,
	})
	if err != nil {
		return err
	}
	return sim.RunBench()
}
