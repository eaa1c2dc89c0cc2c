package config

import (
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	// Target court website
	PageURL       string `mapstructure:"PAGE_URL"`
	SearchURL     string `mapstructure:"SEARCH_RESULTS_URL"`
	CaseInfoPath  string `mapstructure:"CASE_INFORMATION_PATH"`
	County        string `mapstructure:"COUNTY"`
	UseBrowser    bool   `mapstructure:"USE_BROWSER_FETCH"`
	FetchRetries  int    `mapstructure:"FETCH_RETRIES"`
	FetchTimeout  int    `mapstructure:"FETCH_TIMEOUT"`
	ScrapeWorkers int    `mapstructure:"SCRAPE_WORKERS"`

	// Rate limiting toward the target site
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// reCAPTCHA / solving service
	RecaptchaSiteKey  string  `mapstructure:"RECAPTCHA_SITE_KEY"`
	RecaptchaAction   string  `mapstructure:"RECAPTCHA_ACTION"`
	RecaptchaMinScore float64 `mapstructure:"RECAPTCHA_MIN_SCORE"`
	SolverAPIKey      string  `mapstructure:"CAPMONSTER_API_KEY"`
	SolverBaseURL     string  `mapstructure:"CAPMONSTER_BASE_URL"`
	SolverPollSeconds int     `mapstructure:"SOLVER_POLL_SECONDS"`
	SolverMaxPolls    int     `mapstructure:"SOLVER_MAX_POLLS"`

	DeduplicationDays int `mapstructure:"DEDUPLICATION_DAYS"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables in production
	_ = viper.ReadInConfig()

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CASE_INFORMATION_PATH", "/Helpers/caseInformation.aspx")
	viper.SetDefault("COUNTY", "Montgomery")
	viper.SetDefault("USE_BROWSER_FETCH", false)
	viper.SetDefault("FETCH_RETRIES", 3)
	viper.SetDefault("FETCH_TIMEOUT", 30) // in seconds
	viper.SetDefault("SCRAPE_WORKERS", 4)
	viper.SetDefault("RATE_LIMIT_RPS", 1.0)
	viper.SetDefault("RATE_LIMIT_BURST", 2)
	viper.SetDefault("RECAPTCHA_ACTION", "search")
	viper.SetDefault("RECAPTCHA_MIN_SCORE", 0.5)
	viper.SetDefault("CAPMONSTER_BASE_URL", "https://api.capmonster.cloud")
	viper.SetDefault("SOLVER_POLL_SECONDS", 2)
	viper.SetDefault("SOLVER_MAX_POLLS", 30)
	viper.SetDefault("DEDUPLICATION_DAYS", 2)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
