package main

import (
	"github.com/spf13/cobra"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
)

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:   "vcsim",
		Short: "Simulate vehicle possession against an in-process runtime.",
		Long: `vcsim runs the override coordinator and possession lifecycle ` +
			`against a simulated runtime, and inspects the resolved layouts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configDir == "" {
				config.SetDefaults()
				return nil
			}
			return config.Load(configDir)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config", "",
		"directory containing "+config.FileName+" (defaults when empty)")

	root.AddCommand(newRunCmd(), newLayoutCmd())
	return root
}
