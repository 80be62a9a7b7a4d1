package main

import (
	"github.com/spf13/cobra"

	"order_pacer/internal/config"
)

type rootFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "order-pacer",
		Short:         "Submit web-form orders at randomized times across the day",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "./config.yaml", "path to config.yaml")
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env", []string{".env"}, "env files loaded before overrides")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newImportSamplesCmd(flags))
	cmd.AddCommand(newPreviewCmd(flags))
	return cmd
}

func (f *rootFlags) load() (config.Config, error) {
	return config.Load(f.configPath, f.envFiles...)
}
