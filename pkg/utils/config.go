package utils

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SteamConfig covers the upstream marketplace endpoints and the retry policy
// of the detail fetcher.
type SteamConfig struct {
	DetailsURL        string        `mapstructure:"details_url"`
	ReviewsURL        string        `mapstructure:"reviews_url"`
	AppListURL        string        `mapstructure:"applist_url"`
	ValidateKeyURL    string        `mapstructure:"validate_key_url"`
	DetailTimeout     time.Duration `mapstructure:"detail_timeout"`
	ReviewTimeout     time.Duration `mapstructure:"review_timeout"`
	AppListTimeout    time.Duration `mapstructure:"applist_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	BackoffStep       time.Duration `mapstructure:"backoff_step"`
	UserAgent         string        `mapstructure:"user_agent"`
}

type ScannerConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`
	IdleInterval       time.Duration `mapstructure:"idle_interval"`
	ItemPause          time.Duration `mapstructure:"item_pause"`
	LanguagePause      time.Duration `mapstructure:"language_pause"`
	ReviewPause        time.Duration `mapstructure:"review_pause"`
	CoreLanguages      []string      `mapstructure:"core_languages"`
	StopOnPersistError bool          `mapstructure:"stop_on_persist_error"`
	MaxSaveFailures    int           `mapstructure:"max_save_failures"`
	FailurePause       time.Duration `mapstructure:"failure_pause"`
}

type AuthConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret"`
	JWTIssuer            string        `mapstructure:"jwt_issuer"`
	JWTDuration          time.Duration `mapstructure:"jwt_ttl"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config holds all runtime configuration. Values come from locscout.yaml,
// LOCSCOUT_* env vars and CLI flags, in viper's usual precedence.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Steam    SteamConfig    `mapstructure:"steam"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost", "http://127.0.0.1", "null"})

	v.SetDefault("steam.details_url", "https://store.steampowered.com/api/appdetails")
	v.SetDefault("steam.reviews_url", "https://store.steampowered.com/appreviews")
	v.SetDefault("steam.applist_url", "https://api.steampowered.com/ISteamApps/GetAppList/v2/")
	v.SetDefault("steam.validate_key_url", "https://api.steampowered.com/ISteamWebAPIUtil/GetServerInfo/v1/")
	v.SetDefault("steam.detail_timeout", 20*time.Second)
	v.SetDefault("steam.review_timeout", 10*time.Second)
	v.SetDefault("steam.applist_timeout", 30*time.Second)
	v.SetDefault("steam.requests_per_second", 0)
	v.SetDefault("steam.max_attempts", 3)
	v.SetDefault("steam.rate_limit_cooldown", 300*time.Second)
	v.SetDefault("steam.backoff_step", 5*time.Second)
	v.SetDefault("steam.user_agent", "locscout/1.0")

	v.SetDefault("scanner.batch_size", 100)
	v.SetDefault("scanner.stale_after", 7*24*time.Hour)
	v.SetDefault("scanner.idle_interval", time.Hour)
	v.SetDefault("scanner.item_pause", 1500*time.Millisecond)
	v.SetDefault("scanner.language_pause", 1500*time.Millisecond)
	v.SetDefault("scanner.review_pause", 200*time.Millisecond)
	v.SetDefault("scanner.core_languages", []string{"schinese", "japanese", "french", "koreana"})
	v.SetDefault("scanner.stop_on_persist_error", false)
	v.SetDefault("scanner.max_save_failures", 20)
	v.SetDefault("scanner.failure_pause", time.Minute)

	// dev default (change for production)
	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")
	v.SetDefault("auth.jwt_issuer", "locscout")
	v.SetDefault("auth.jwt_ttl", 12*time.Hour)
	v.SetDefault("auth.operator_password_hash", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Configure wires defaults, env binding and the optional config file into v.
// A missing config file is not an error.
func Configure(v *viper.Viper, cfgFile string) error {
	setDefaults(v)

	v.SetEnvPrefix("LOCSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.driver")
	_ = v.BindEnv("database.dsn", "LOCSCOUT_DATABASE_DSN", "DATABASE_URL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return v.ReadInConfig()
	}
	v.SetConfigName("locscout")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Load unmarshals v into a Config. Without an explicit driver a DSN selects
// postgres, otherwise sqlite.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite3"
		if cfg.Database.DSN != "" {
			cfg.Database.Driver = "pgx"
		}
	}
	return cfg, nil
}
