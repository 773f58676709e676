package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"herald/internal/gateway"
	"herald/internal/onboarding"
)

func main() {
	// .env must be in the environment before the flag defaults read it.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "herald",
		Short: "Calendar watcher that announces events to Telegram",
	}
	defaultConfig := "~/.herald/config.yaml"
	if v := os.Getenv("HERALD_CONFIG"); v != "" {
		defaultConfig = v
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to the config file")

	run := &cobra.Command{
		Use:   "run",
		Short: "Start the bot and the polling engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, cleanup, err := gateway.Init(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			g.Run(ctx)
			return nil
		},
	}

	var plain bool
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if plain {
				_, err := onboarding.NewWizard().Run(configPath)
				return err
			}
			return onboarding.RunTUI(configPath)
		},
	}
	setup.Flags().BoolVar(&plain, "plain", false, "use the plain prompt wizard instead of the TUI")

	root.AddCommand(run, setup)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
