package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marketlake/lake/manifest"
	"github.com/spf13/cobra"
)

var uploadFeatureCmd = &cobra.Command{
	Use:   "upload-feature",
	Short: "Register a precomputed feature file in the feature store",
	Long: `Copies a local file into <feature-root>/<feature-set>/<version>/
and upserts a manifest row keyed by the user-supplied feature_set name,
mirroring the REST adapter's /features/upload endpoint. No dedicated
feature storage logic — this is a file copy plus a catalog insert.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		path, _ := cmd.Flags().GetString("file")
		featureSet, _ := cmd.Flags().GetString("feature-set")
		version, _ := cmd.Flags().GetString("version")
		exchangeName, _ := cmd.Flags().GetString("exchange")
		market, _ := cmd.Flags().GetString("market")
		symbol, _ := cmd.Flags().GetString("symbol")

		if path == "" || featureSet == "" || version == "" {
			return fmt.Errorf("--file, --feature-set, and --version are required")
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		destDir := filepath.Join(e.cfg.FeatureRoot, featureSet, version)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return err
		}
		destPath := filepath.Join(destDir, filepath.Base(path))

		dst, err := os.Create(destPath)
		if err != nil {
			return err
		}
		hasher := sha256.New()
		size, err := io.Copy(dst, io.TeeReader(src, hasher))
		dst.Close()
		if err != nil {
			return err
		}

		entry := manifest.Entry{
			Exchange: exchangeName, Market: market, Symbol: symbol,
			Type: featureSet, Version: version, Path: destPath,
			FileSize: size, Checksum: hex.EncodeToString(hasher.Sum(nil)),
		}
		stored, err := e.mf.Upsert(context.Background(), entry)
		if err != nil {
			return err
		}
		fmt.Printf("feature stored: id=%d path=%s size=%d\n", stored.ID, stored.Path, stored.FileSize)
		return nil
	},
}

func init() {
	uploadFeatureCmd.Flags().String("file", "", "path to the feature file (required)")
	uploadFeatureCmd.Flags().String("feature-set", "", "feature set name (required)")
	uploadFeatureCmd.Flags().String("version", "", "feature version (required)")
	uploadFeatureCmd.Flags().String("exchange", "", "exchange the feature applies to, if any")
	uploadFeatureCmd.Flags().String("market", "", "market the feature applies to, if any")
	uploadFeatureCmd.Flags().String("symbol", "", "symbol the feature applies to, if any")
}
