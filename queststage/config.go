package queststage

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/pelletier/go-toml/v2"

	"github.com/queststage/queststage/queststage/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log       LogConfig         `toml:"log"`
	Bot       BotConfig         `toml:"bot"`
	DB        database.DBConfig `toml:"db"`
	Scheduler SchedulerConfig   `toml:"scheduler"`
	WebApp    WebAppConfig      `toml:"webapp"`
	Spaces    SpacesConfig      `toml:"spaces"`
}

type BotConfig struct {
	Token string `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type SchedulerConfig struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	Cron            string `toml:"cron"`
}

func (c SchedulerConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

type WebAppConfig struct {
	BaseURL string `toml:"base_url"`
}

type SpacesConfig struct {
	Key       string `toml:"key"`
	Secret    string `toml:"secret"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	MediaRoot string `toml:"mediaroot"`
}

func (c *Config) Validate() error {
	if c.Scheduler.Cron != "" && !gronx.IsValid(c.Scheduler.Cron) {
		return fmt.Errorf("invalid scheduler cron expression: %q", c.Scheduler.Cron)
	}
	return nil
}
