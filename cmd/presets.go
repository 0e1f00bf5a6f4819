package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	inversion "github.com/seoyhaein/inversion-go"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Print the built-in scenarios as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			presets := inversion.Presets()
			names := make([]string, 0, len(presets))
			for n := range presets {
				names = append(names, n)
			}
			sort.Strings(names)

			scenarios := make([]inversion.ScenarioConfig, 0, len(names))
			for _, n := range names {
				scenarios = append(scenarios, presets[n]())
			}
			out, err := yaml.Marshal(map[string]interface{}{
				"trials":    1,
				"scenarios": scenarios,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
