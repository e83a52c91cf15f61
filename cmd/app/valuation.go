package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"FinPeer/pkg/config"
	"FinPeer/pkg/util"

	"github.com/spf13/cobra"
)

var workers int

var exchangeCmd = &cobra.Command{
	Use:   "exchange EXCHANGE",
	Short: "Value every common stock listed on an exchange",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(func(c *config.Config) {
			if workers > 0 {
				c.Valuation.Workers = workers
			}
		})
		if err != nil {
			return err
		}
		defer app.Close()

		sum, err := app.RunExchange(cmd.Context(), strings.ToUpper(args[0]))
		if sum != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d listed, %d skipped, %d valued, %d admitted, %d failed in %s\n",
				sum.RunID, sum.Listed, sum.Skipped, sum.Processed, sum.Admitted, sum.Failed, sum.Duration.Round(time.Millisecond))
		}
		return err
	},
}

var tickerCmd = &cobra.Command{
	Use:   "ticker CODE[.EXCHANGE]",
	Short: "Value one company and print its encodings as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, exchange := util.SplitTicker(strings.ToUpper(args[0]), "US")
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		v, err := app.Ticker(cmd.Context(), code, exchange)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

func init() {
	exchangeCmd.Flags().IntVarP(&workers, "workers", "w", 0, "companies valued concurrently (overrides config)")
}
