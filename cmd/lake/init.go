package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data root and manifest database",
	Long: `Creates the data root directory (and export/feature subdirectories)
if missing, opens the manifest database (creating its schema on first
run), and reconciles the manifest against the filesystem.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		for _, dir := range []string{e.cfg.DataRoot, e.cfg.ExportDir, e.cfg.FeatureRoot} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}

		report, err := e.mf.Reconcile(context.Background(), e.cfg.DataRoot)
		if err != nil {
			return err
		}

		fmt.Printf("data root:    %s\n", e.cfg.DataRoot)
		fmt.Printf("manifest db:  %s\n", e.cfg.ManifestDB)
		fmt.Printf("export dir:   %s\n", e.cfg.ExportDir)
		fmt.Printf("feature root: %s\n", e.cfg.FeatureRoot)
		if len(report.Orphans) > 0 {
			fmt.Printf("orphan files (on disk, not in manifest): %d\n", len(report.Orphans))
		}
		if len(report.DeadLinks) > 0 {
			fmt.Printf("dead manifest rows (missing file): %d\n", len(report.DeadLinks))
		}
		fmt.Println("lake initialized")
		return nil
	},
}
