package literecord

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the settings of the literecord tooling.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	List     ListConfig     `mapstructure:"list"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Schemas  []string       `mapstructure:"schemas"`
}

// DatabaseConfig selects the driver, DSN and pool limits.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// LogConfig controls NewLogger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ListConfig holds list defaults.
type ListConfig struct {
	PageSize uint64 `mapstructure:"page_size"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Log: LogConfig{
			Level: "info",
		},
		List: ListConfig{
			PageSize: DefaultPageSize,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// EnvPrefix prefixes every environment variable read by LoadConfig,
// e.g. LITERECORD_DATABASE_DSN.
const EnvPrefix = "LITERECORD"

// LoadConfig reads configuration from path (optional), then the
// environment. A .env file in the working directory is loaded first when
// present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	d := Defaults()
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("list.page_size", d.List.PageSize)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("schemas", d.Schemas)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.List.PageSize == 0 {
		cfg.List.PageSize = DefaultPageSize
	}
	return cfg, nil
}
