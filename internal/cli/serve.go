package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"locscout/internal/auth"
	"locscout/internal/catalog"
	"locscout/internal/compare"
	"locscout/internal/feed"
	"locscout/internal/ingest"
	"locscout/internal/scraper"
	"locscout/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Runs the HTTP API: catalog search, comparison queries, operator login,
the on-demand refresh endpoint and the /ws scan feed.

  --scan     Also run the staleness scheduler in this process`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	serveCmd.Flags().Bool("scan", false, "run the scheduler alongside the API")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.HTTP.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}
	withScan, _ := cmd.Flags().GetBool("scan")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	hub := feed.NewHub(a.log)
	defer hub.Close()
	sched := a.scheduler(hub)

	tokens := auth.TokenService{
		Secret:   []byte(a.cfg.Auth.JWTSecret),
		Issuer:   a.cfg.Auth.JWTIssuer,
		Duration: a.cfg.Auth.JWTDuration,
	}
	keys := &scraper.KeyValidator{Client: a.client, URL: a.cfg.Steam.ValidateKeyURL, Timeout: a.cfg.Steam.ReviewTimeout}

	router := server.NewRouter(server.Deps{
		DB:             a.db,
		Catalog:        catalog.NewHandler(a.repo, keys, a.cfg.Scanner.StaleAfter, a.log),
		Compare:        compare.NewHandler(compare.NewEngine(a.repo, sched, a.log)),
		Refresh:        ingest.NewHandler(sched),
		Auth:           auth.NewHandler(a.cfg.Auth.OperatorPasswordHash, tokens),
		Tokens:         tokens,
		Hub:            hub,
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
		Log:            a.log,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	if withScan {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx, addr, router, a.log); err != nil {
			errCh <- err
		}
	}()

	var firstErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case firstErr = <-errCh:
		a.log.Error("server error", "err", firstErr)
		stop()
	}
	wg.Wait()
	return firstErr
}

// runUntilSignal is the cancellation scope of the batch commands.
func runUntilSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
