package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"locscout/internal/ingest"
	"locscout/internal/scraper"
)

func init() {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the staleness scheduler until interrupted",
		Long: `Refreshes never-scanned listings first, then listings older than
scanner.stale_after (oldest first), and idles when the catalog is fresh.
SIGINT or SIGTERM stops it between items.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Process a single batch and exit",
		Args:  cobra.NoArgs,
		RunE:  runTick,
	}

	scanOneCmd := &cobra.Command{
		Use:   "scan-one <app-id>",
		Short: "Force a refresh of one listing and save it",
		Long: `Forces a detail fetch for one listing, rescans its review counts and
commits the result.

  --language   Rescan only this language (default: the core set)
  --api-key    Marketplace API key forwarded to the review API`,
		Args: cobra.ExactArgs(1),
		RunE: runScanOne,
	}
	scanOneCmd.Flags().String("language", "", "language code to rescan")
	scanOneCmd.Flags().String("api-key", "", "marketplace api key")

	rootCmd.AddCommand(scanCmd, tickCmd, scanOneCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := runUntilSignal(cmd.Context())
	defer stop()
	return a.scheduler(nil).Run(ctx)
}

func runTick(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := runUntilSignal(cmd.Context())
	defer stop()

	queue, n, err := a.scheduler(nil).Tick(ctx)
	if err != nil {
		return err
	}
	if queue == ingest.QueueNone {
		fmt.Fprintln(cmd.OutOrStdout(), "catalog is fresh, nothing to do")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d item(s) from the %s queue\n", n, queue)
	return nil
}

func runScanOne(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid app id %q", args[0])
	}
	language, _ := cmd.Flags().GetString("language")
	apiKey, _ := cmd.Flags().GetString("api-key")
	if language != "" && !scraper.IsKnownLanguage(language) {
		return fmt.Errorf("unknown language code %q", language)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := runUntilSignal(cmd.Context())
	defer stop()

	item, err := a.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load %d: %w", id, err)
	}
	opts := ingest.RefreshOptions{ForceDetails: true, Credential: apiKey}
	if language != "" {
		opts.Languages = []string{language}
	}
	updated, outcome, err := a.refresher().Refresh(ctx, *item, opts)
	if err != nil {
		return err
	}
	if err := a.repo.Save(ctx, updated); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d %q: %s\n", updated.ID, updated.Name, outcome)
	fmt.Fprintf(out, "  type:      %s\n", updated.Type)
	fmt.Fprintf(out, "  tags:      %s\n", scraper.JoinList(updated.Tags))
	fmt.Fprintf(out, "  languages: %s\n", scraper.JoinList(updated.SupportedLanguages))
	fmt.Fprintf(out, "  reviews:   %d (store %d)\n", updated.TotalReviewsAll, updated.TotalReviewsStore)
	for code, n := range updated.LanguageReviews {
		fmt.Fprintf(out, "  %-10s %d\n", code+":", n)
	}
	if updated.LastScanned != nil {
		fmt.Fprintf(out, "  scanned:   %s\n", updated.LastScanned.Format(time.RFC3339))
	}
	return nil
}
