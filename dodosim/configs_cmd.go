package dodosim

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dodohome/dodo/config"
)

type configsCmd struct {
	name string
}

func (c *configsCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "configs",
		Short: "list the available simulation configurations",
	}
	r.Flags().StringVar(&c.name, "name", "", "print the full text of the named configuration")
	return r
}

func (c *configsCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	if c.name != "" {
		text, err := config.GetConfigText(c.name)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", text)
		return nil
	}
	for _, name := range configNames() {
		fmt.Println(name)
	}
	return nil
}

func configNames() []string {
	names := []string{}
	for name := range config.DispatchConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
