package cmd

import (
	"fmt"
	"notifyme-backend/internal/config"
	"notifyme-backend/lib/telemetry"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "notifyme",
	Short: "notifyme watches ticketing sites and emails subscribers when a movie opens for booking.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		var err error
		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Path to the configuration file.")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Dotenv file holding secrets.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
