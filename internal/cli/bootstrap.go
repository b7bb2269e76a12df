package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"locscout/internal/auth"
	"locscout/internal/catalog"
	"locscout/internal/scraper"
)

func init() {
	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the catalog from the marketplace app list",
		Long: `Downloads the full app list and inserts every named listing that is
not in the catalog yet. Existing rows are left untouched.`,
		Args: cobra.NoArgs,
		RunE: runBootstrap,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show scan coverage of the catalog",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	hashCmd := &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for auth.operator_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export-csv",
		Short: "Write the catalog to a CSV file",
		Args:  cobra.NoArgs,
		RunE:  runExportCSV,
	}
	exportCmd.Flags().String("out", "data/catalog.csv", "output CSV path")

	importCmd := &cobra.Command{
		Use:   "import-csv <path>",
		Short: "Seed the catalog from an offline app list CSV (app_id,name)",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCSV,
	}

	rootCmd.AddCommand(bootstrapCmd, statsCmd, hashCmd, exportCmd, importCmd)
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := runUntilSignal(cmd.Context())
	defer stop()

	src := scraper.NewAppListSource(a.client, a.cfg.Steam.AppListURL, a.cfg.Steam.AppListTimeout)
	apps, err := src.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch app list: %w", err)
	}
	added, err := a.repo.InsertNew(ctx, apps)
	if err != nil {
		return err
	}
	a.log.Info("bootstrap done", "listed", len(apps), "added", added)
	fmt.Fprintf(cmd.OutOrStdout(), "listed %d, added %d new item(s)\n", len(apps), added)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.repo.Stats(cmd.Context(), time.Now().Add(-a.cfg.Scanner.StaleAfter))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total: %d\nnever scanned: %d\nstale: %d\n", s.Total, s.NeverScanned, s.Stale)
	return nil
}

func runExportCSV(cmd *cobra.Command, _ []string) error {
	outPath, _ := cmd.Flags().GetString("out")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := a.repo.ExportCSV(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("export catalog: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d item(s) to %s\n", n, outPath)
	return nil
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	apps, err := catalog.ReadAppListCSV(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	added, err := a.repo.InsertNew(cmd.Context(), apps)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "read %d, added %d new item(s)\n", len(apps), added)
	return nil
}
