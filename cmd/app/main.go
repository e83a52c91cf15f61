package main

import (
	"fmt"
	"os"

	"FinPeer/internal/di"
	"FinPeer/pkg/config"
	"FinPeer/pkg/server"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "finpeer",
	Short:         "Industry-relative valuation of listed companies",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path (empty for defaults)")
	rootCmd.AddCommand(serveCmd, exchangeCmd, tickerCmd, recomputeCmd, exportCmd, historyCmd)
}

// buildApp loads the configuration and wires the application.
func buildApp(mutate ...func(*config.Config)) (*server.App, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	for _, m := range mutate {
		m(cfg)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
