package main

import (
	"context"
	"fmt"

	"github.com/marketlake/lake/ingest"
	"github.com/marketlake/lake/layout"
	"github.com/spf13/cobra"
)

var downloadSymbolsCmd = &cobra.Command{
	Use:   "download-symbols",
	Short: "List tradeable symbols for an exchange and market",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		exchangeName, _ := cmd.Flags().GetString("exchange")
		market, _ := cmd.Flags().GetString("market")
		if exchangeName == "" {
			return fmt.Errorf("--exchange is required")
		}

		conn, err := e.registry.Get(exchangeName)
		if err != nil {
			return err
		}
		if market == "" && len(conn.Markets()) > 0 {
			market = conn.Markets()[0]
		}
		symbols, err := conn.Symbols(context.Background(), market)
		if err != nil {
			return err
		}
		for _, s := range symbols {
			fmt.Println(s)
		}
		return nil
	},
}

func init() {
	downloadSymbolsCmd.Flags().String("exchange", "", "exchange name (required)")
	downloadSymbolsCmd.Flags().String("market", "", "market segment (defaults to the exchange's first market)")
}

var downloadHistoryCmd = &cobra.Command{
	Use:   "download-history",
	Short: "Download OHLCV or funding-rate history for one symbol",
	Long: `Runs a single ingest pass against the configured exchange connector,
writing results to the data root and updating the manifest. Equivalent to
one task the REST adapter's /ingest/download endpoint would enqueue.`,
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
		fullHistory, _ := cmd.Flags().GetBool("full-history")
		startMs, _ := cmd.Flags().GetInt64("start")

		if exchangeName == "" || symbol == "" {
			return fmt.Errorf("--exchange and --symbol are required")
		}
		if market == "" {
			market = "SPOT"
		}

		kind := ingest.KindOHLCV
		if dataType == "funding" {
			kind = ingest.KindFunding
			period = ""
		}

		opts := ingest.Options{
			Identity:    layout.Identity{Exchange: exchangeName, Market: market, Symbol: symbol},
			Kind:        kind,
			Period:      period,
			FullHistory: fullHistory,
			Progress:    func(msg string) { fmt.Println(msg) },
		}
		if startMs > 0 {
			opts.Start = &startMs
		}

		result, err := e.pipeline.Run(context.Background(), opts)
		if err != nil {
			return err
		}
		fmt.Printf("rows written: %d\n", result.RowsWritten)
		return nil
	},
}

func init() {
	downloadHistoryCmd.Flags().String("exchange", "", "exchange name (required)")
	downloadHistoryCmd.Flags().String("market", "SPOT", "market segment")
	downloadHistoryCmd.Flags().String("symbol", "", "symbol (required)")
	downloadHistoryCmd.Flags().String("data-type", "raw", "raw | funding")
	downloadHistoryCmd.Flags().String("timeframe", "1m", "candle period (ignored for funding)")
	downloadHistoryCmd.Flags().Bool("full-history", false, "download from the symbol's listing date")
	downloadHistoryCmd.Flags().Int64("start", 0, "explicit start timestamp (ms); ignored if --full-history is set")
}
