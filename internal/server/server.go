package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"locscout/internal/auth"
	"locscout/internal/catalog"
	"locscout/internal/compare"
	"locscout/internal/feed"
	"locscout/internal/httpx"
	"locscout/internal/ingest"
	"locscout/internal/logging"
	"locscout/pkg/database"
)

// Deps is everything the HTTP surface is assembled from.
type Deps struct {
	DB             *database.DB
	Catalog        *catalog.Handler
	Compare        *compare.Handler
	Refresh        *ingest.Handler
	Auth           *auth.Handler
	Tokens         auth.TokenService
	Hub            *feed.Hub
	AllowedOrigins []string
	Log            *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	log := logging.OrDefault(d.Log)

	router := gin.New()
	router.Use(gin.Recovery(), httpx.RequestLogger(log), httpx.CORS(d.AllowedOrigins))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "driver": d.DB.Driver})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		clients := 0
		if d.Hub != nil {
			clients = d.Hub.Stats().Clients
		}
		if err := d.DB.PingContext(ctx); err != nil {
			log.Error("readiness ping failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "feed_clients": clients})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "db": "ok", "feed_clients": clients})
	})

	public := router.Group("")
	d.Catalog.RegisterRoutes(public)
	d.Compare.RegisterRoutes(public)

	if d.Hub != nil {
		router.GET("/ws", feed.WSHandler(d.Hub, d.AllowedOrigins))
	}

	d.Auth.RegisterRoutes(router.Group("/auth"))

	admin := router.Group("/admin")
	admin.Use(auth.RequireOperator(d.Tokens))
	d.Refresh.RegisterRoutes(admin)

	return router
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	log = logging.OrDefault(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
