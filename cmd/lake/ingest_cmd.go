package main

import (
	"context"
	"fmt"

	"github.com/marketlake/lake/csvingest"
	"github.com/marketlake/lake/layout"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a local CSV file of OHLCV or funding rows",
	Long: `Reads a CSV file from disk and writes it through the same columnar
writer the exchange pipeline uses, in chunkRows-sized batches. A header row
must include a ts column; a file whose first field is an integer is read as
headerless ts,open,high,low,close,volume rows. Use this to backfill data
obtained outside the exchange connectors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		path, _ := cmd.Flags().GetString("file")
		exchangeName, _ := cmd.Flags().GetString("exchange")
		market, _ := cmd.Flags().GetString("market")
		symbol, _ := cmd.Flags().GetString("symbol")
		dataType, _ := cmd.Flags().GetString("data-type")
		period, _ := cmd.Flags().GetString("timeframe")
		chunkRows, _ := cmd.Flags().GetInt("chunk-rows")

		if path == "" || exchangeName == "" || symbol == "" {
			return fmt.Errorf("--file, --exchange, and --symbol are required")
		}
		if market == "" {
			market = "SPOT"
		}
		if dataType == "funding" {
			period = ""
		}

		id := layout.Identity{Exchange: exchangeName, Market: market, Symbol: symbol}
		result, err := csvingest.IngestFile(context.Background(), path, id, dataType, period, e.writer, chunkRows)
		if err != nil {
			return err
		}
		fmt.Printf("rows ingested: %d\n", result.RowsRead)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "path to the CSV file (required)")
	ingestCmd.Flags().String("exchange", "", "exchange name (required)")
	ingestCmd.Flags().String("market", "SPOT", "market segment")
	ingestCmd.Flags().String("symbol", "", "symbol (required)")
	ingestCmd.Flags().String("data-type", "raw", "raw | funding")
	ingestCmd.Flags().String("timeframe", "1m", "candle period (ignored for funding)")
	ingestCmd.Flags().Int("chunk-rows", 10_000, "rows per write batch")
}
