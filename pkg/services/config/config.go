package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type GP51Config struct {
	BaseURL string `mapstructure:"base_url" validate:"required"`
	Profile string `mapstructure:"profile"`
}

type ConsistencyConfig struct {
	MaxVehiclesPerOwner  int           `mapstructure:"max_vehicles_per_owner"`
	RecentActivityWindow time.Duration `mapstructure:"recent_activity_window"`
	MonitorInterval      time.Duration `mapstructure:"monitor_interval"`
}

type ReconcileConfig struct {
	MetadataBatchLimit int           `mapstructure:"metadata_batch_limit"`
	ScheduleInterval   time.Duration `mapstructure:"schedule_interval"`
}

type AppConfig struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	GP51        GP51Config        `mapstructure:"gp51"`
	Consistency ConsistencyConfig `mapstructure:"consistency"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
}

func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("gp51.profile", "DEFAULT")
	v.SetDefault("consistency.max_vehicles_per_owner", 100)
	v.SetDefault("consistency.recent_activity_window", 24*time.Hour)
	v.SetDefault("consistency.monitor_interval", 5*time.Minute)
	v.SetDefault("reconcile.metadata_batch_limit", 50)
	v.SetDefault("reconcile.schedule_interval", 6*time.Hour)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse app config: %w", err)
	}
	return &cfg, nil
}
