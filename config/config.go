// Package config loads service-level settings from the environment (an
// optional .env file is honored for local runs). Domain parameters such as
// the fee schedule or term lengths are not here: they live in the on-ledger
// config row and are changed only through the admin actions.
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the binary needs to boot.
type Config struct {
	ListenAddr         string `mapstructure:"LISTEN_ADDR"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	JWTSecret          string `mapstructure:"JWT_SECRET"`
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	OutboxExchange     string `mapstructure:"OUTBOX_EXCHANGE"`
	RedisURL           string `mapstructure:"REDIS_URL"`
	OracleBaseURL      string `mapstructure:"ORACLE_BASE_URL"`
	OraclePair         string `mapstructure:"ORACLE_PAIR"`
	BallotBaseURL      string `mapstructure:"BALLOT_BASE_URL"`
	BallotAPIKey       string `mapstructure:"BALLOT_API_KEY"`
	WebhookToken       string `mapstructure:"WEBHOOK_TOKEN"`
	AuthorityBaseURL   string `mapstructure:"AUTHORITY_BASE_URL"`
	AuthorityAPIKey    string `mapstructure:"AUTHORITY_API_KEY"`
	DepositToken       string `mapstructure:"DEPOSIT_TOKEN"`
	OfferRatePerMinute int    `mapstructure:"OFFER_RATE_LIMIT_PER_MINUTE"`
	RunMigrations      bool   `mapstructure:"RUN_MIGRATIONS"`
}

// Load reads configuration from the environment, with an optional .env file
// in path. Missing .env is fine; other read errors are logged and ignored.
func Load(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("OUTBOX_EXCHANGE", "arbflow.events")
	viper.SetDefault("ORACLE_PAIR", "tlosusd")
	viper.SetDefault("DEPOSIT_TOKEN", "TLOS")
	viper.SetDefault("OFFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("RUN_MIGRATIONS", true)

	for _, key := range []string{
		"LISTEN_ADDR", "DATABASE_URL", "JWT_SECRET", "RABBITMQ_URL",
		"OUTBOX_EXCHANGE", "REDIS_URL", "ORACLE_BASE_URL", "ORACLE_PAIR",
		"BALLOT_BASE_URL", "BALLOT_API_KEY", "WEBHOOK_TOKEN",
		"AUTHORITY_BASE_URL", "AUTHORITY_API_KEY", "DEPOSIT_TOKEN",
		"OFFER_RATE_LIMIT_PER_MINUTE", "RUN_MIGRATIONS",
	} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
