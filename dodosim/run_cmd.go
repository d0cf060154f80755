package dodosim

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dodohome/dodo/config"
)

type runCmd struct {
	logLevel    string
	configName  string
	httpAddr    string
	durationSec int
}

func (c *runCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "run",
		Short: "run the dispatch simulation",
	}
	r.Flags().StringVar(&c.logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	r.Flags().StringVar(&c.configName, "config", "default", fmt.Sprintf("configuration to run, one of %v or literal JSON", configNames()))
	r.Flags().StringVar(&c.httpAddr, "http_addr", config.DefaultStatusAddr, "address to serve health and stats on")
	r.Flags().IntVar(&c.durationSec, "duration_sec", 0, "how long the sim runs, 0 uses the configured value")
	return r
}

func (c *runCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	sim, err := MakeSimulator(&Args{
		ConfigName:  c.configName,
		HTTPAddr:    c.httpAddr,
		DurationSec: c.durationSec,
	})
	if err != nil {
		return err
	}
	return sim.RunSim()
}
