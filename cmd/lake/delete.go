package main

import (
	"context"
	"fmt"

	"github.com/marketlake/lake/layout"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete stored partitions for an identity",
	Long: `Removes every on-disk partition (and its manifest row) matching
the given exchange/market/symbol, optionally narrowed by data type and
period.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		exchangeName, _ := cmd.Flags().GetString("exchange")
		market, _ := cmd.Flags().GetString("market")
		symbol, _ := cmd.Flags().GetString("symbol")
		dataType, _ := cmd.Flags().GetString("data-type")
		period, _ := cmd.Flags().GetString("timeframe")

		if exchangeName == "" || symbol == "" {
			return fmt.Errorf("--exchange and --symbol are required")
		}
		if market == "" {
			market = "SPOT"
		}

		id := layout.Identity{Exchange: exchangeName, Market: market, Symbol: symbol}
		n, err := e.writer.Delete(context.Background(), id, dataType, period)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d partition(s)\n", n)
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("exchange", "", "exchange name (required)")
	deleteCmd.Flags().String("market", "SPOT", "market segment")
	deleteCmd.Flags().String("symbol", "", "symbol (required)")
	deleteCmd.Flags().String("data-type", "", "raw | funding (empty matches both)")
	deleteCmd.Flags().String("timeframe", "", "candle period (empty matches any)")
}
