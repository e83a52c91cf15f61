package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"FinPeer/internal/domain/models"

	"github.com/spf13/cobra"
)

var (
	exportDir    string
	historyLimit int
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute EXCHANGE",
	Short: "Rebuild the snapshot of every bucket of an exchange",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.Recompute(cmd.Context(), strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d snapshots rebuilt\n", n)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export EXCHANGE",
	Short: "Export the buckets of an exchange as Parquet files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		paths, err := app.Export(cmd.Context(), strings.ToUpper(args[0]), exportDir)
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history EXCHANGE INDUSTRY CODE RATIO",
	Short: "Print archived values of one ratio for a company",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		key := models.BucketKey{Exchange: strings.ToUpper(args[0]), Industry: args[1]}
		points, err := app.History(cmd.Context(), key, strings.ToUpper(args[2]), models.Ratio(args[3]), historyLimit)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(points)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "data/export", "output directory")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of points")
}
