package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"memoryd/internal/di"
	"memoryd/internal/structures"
)

var flags = &structures.CliFlags{}

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Per fan-creator conversational memory service.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is fine; the environment may already be set.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cleanup, err := di.InitApp(flags)
		if cleanup != nil {
			defer cleanup()
		}
		return err
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "config/memoryd.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.DebugMode, "debug", "d", false, "mirror logs to the console")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
