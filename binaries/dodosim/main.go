package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/dodohome/dodo/common/log/hooks"
	"github.com/dodohome/dodo/dodosim"
)

// A command-line simulator that runs a task dispatcher under synthetic load
func main() {
	log.AddHook(hooks.NewContextHook())

	cli, err := dodosim.NewSimpleCLIClient()
	if err != nil {
		log.Fatal("cannot initialize dodosim CLI: ", err)
	}
	err = cli.Exec()
	if err != nil {
		log.Fatal("error running dodosim ", err)
	}
}
