package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	API       APIConfig
	Trigger   TriggerConfig
	Alert     AlertConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type APIConfig struct {
	Key string
}

// TriggerConfig holds the environment-level generation endpoints used when a
// client carries no per-client override.
type TriggerConfig struct {
	PrimaryURL  string
	FallbackURL string
	Timeout     time.Duration
}

// AlertConfig configures the operator alert channel. Empty token disables alerts.
type AlertConfig struct {
	BotToken string
	ChatID   string
}

type SchedulerConfig struct {
	PollInterval time.Duration // delay-queue polling cadence
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("TRIGGER_TIMEOUT", "45s")
	viper.SetDefault("DELAY_POLL_INTERVAL", "5s")

	timeout, err := time.ParseDuration(viper.GetString("TRIGGER_TIMEOUT"))
	if err != nil {
		timeout = 45 * time.Second
	}
	poll, err := time.ParseDuration(viper.GetString("DELAY_POLL_INTERVAL"))
	if err != nil {
		poll = 5 * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Trigger: TriggerConfig{
			PrimaryURL:  viper.GetString("TRIGGER_PRIMARY_URL"),
			FallbackURL: viper.GetString("TRIGGER_FALLBACK_URL"),
			Timeout:     timeout,
		},
		Alert: AlertConfig{
			BotToken: viper.GetString("ALERT_BOT_TOKEN"),
			ChatID:   viper.GetString("ALERT_CHAT_ID"),
		},
		Scheduler: SchedulerConfig{
			PollInterval: poll,
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Trigger.PrimaryURL == "" {
		log.Println("WARNING: TRIGGER_PRIMARY_URL is not set; clients without an endpoint override cannot be triggered")
	}

	return cfg, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
