package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"locscout/internal/catalog"
	"locscout/internal/ingest"
	"locscout/internal/logging"
	"locscout/internal/scraper"
	"locscout/pkg/database"
	"locscout/pkg/utils"
)

var configure = utils.Configure

// app is the wiring shared by every subcommand.
type app struct {
	cfg       utils.Config
	log       *slog.Logger
	logCloser io.Closer
	db        *database.DB
	repo      *catalog.Repo
	client    *scraper.Client
}

func newApp(cmd *cobra.Command) (*app, error) {
	v, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newAppFromViper(v)
}

func newAppFromViper(v *viper.Viper) (*app, error) {
	cfg, err := utils.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(log)

	dbCfg := database.Config{Driver: cfg.Database.Driver, Path: cfg.Database.Path, DSN: cfg.Database.DSN}
	if dbCfg.Driver == database.DriverSQLite && dbCfg.Path == "" {
		dbCfg.Path = database.DefaultConfig().Path
	}
	db, err := database.Open(dbCfg)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		_ = closer.Close()
		return nil, fmt.Errorf("db migrate failed: %w", err)
	}
	log.Debug("catalog opened", "driver", db.Driver)

	return &app{
		cfg:       cfg,
		log:       log,
		logCloser: closer,
		db:        db,
		repo:      catalog.NewRepo(db),
		client:    scraper.NewClient(cfg.Steam.UserAgent, cfg.Steam.RequestsPerSecond),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("db close", "err", err)
	}
	_ = a.logCloser.Close()
}

func (a *app) refresher() *ingest.Refresher {
	st := a.cfg.Steam
	details := scraper.NewDetailFetcher(a.client, scraper.DetailOptions{
		BaseURL:     st.DetailsURL,
		Timeout:     st.DetailTimeout,
		MaxAttempts: st.MaxAttempts,
		Cooldown:    st.RateLimitCooldown,
		BackoffStep: st.BackoffStep,
	}, a.log)
	reviews := scraper.NewReviewAggregator(a.client, st.ReviewsURL, st.ReviewTimeout, st.RateLimitCooldown, a.log)

	r := ingest.NewRefresher(details, reviews, a.log)
	sc := a.cfg.Scanner
	if len(sc.CoreLanguages) > 0 {
		r.CoreLanguages = sc.CoreLanguages
	}
	r.ReviewPause = sc.ReviewPause
	r.LanguagePause = sc.LanguagePause
	return r
}

func (a *app) scheduler(events ingest.Publisher) *ingest.Scheduler {
	s := ingest.NewScheduler(a.repo, a.refresher(), a.log)
	sc := a.cfg.Scanner
	if sc.BatchSize > 0 {
		s.BatchSize = sc.BatchSize
	}
	if sc.StaleAfter > 0 {
		s.StaleAfter = sc.StaleAfter
	}
	if sc.IdleInterval > 0 {
		s.IdleInterval = sc.IdleInterval
	}
	s.ItemPause = sc.ItemPause
	s.StopOnPersistError = sc.StopOnPersistError
	if sc.MaxSaveFailures > 0 {
		s.MaxSaveFailures = sc.MaxSaveFailures
	}
	if sc.FailurePause > 0 {
		s.FailurePause = sc.FailurePause
	}
	s.Events = events
	return s
}
