// Package config loads settings from defaults, an optional YAML file and
// BOARD_-prefixed environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultFile is read when neither --config nor BOARD_CONFIG_FILE is set.
const DefaultFile = "board.yaml"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Client ClientConfig `mapstructure:"client"`
	UI     UIConfig     `mapstructure:"ui"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr     string   `mapstructure:"addr"`
	Token    string   `mapstructure:"token"`
	BoardIDs []string `mapstructure:"board_ids"`
	// MetricsAddr serves /metrics on its own listener when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type StoreConfig struct {
	// Driver is one of json, sqlite3, postgres, redis or memory.
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

type ClientConfig struct {
	URL             string `mapstructure:"url"`
	Board           string `mapstructure:"board"`
	VersionCheck    bool   `mapstructure:"version_check"`
	SerializeWrites bool   `mapstructure:"serialize_writes"`
	Live            bool   `mapstructure:"live"`
}

type UIConfig struct {
	Theme              string `mapstructure:"theme"`
	NotifyFailures     bool   `mapstructure:"notify_failures"`
	SectionPlaceholder string `mapstructure:"section_placeholder"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

var drivers = map[string]bool{"json": true, "sqlite3": true, "postgres": true, "redis": true, "memory": true}

// Load reads configuration. An empty path falls back to BOARD_CONFIG_FILE and
// then DefaultFile; a missing file is not an error unless it was named
// explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if path == "" {
		path = os.Getenv("BOARD_CONFIG_FILE")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || explicit {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.token", "")
	v.SetDefault("server.board_ids", []string{"1"})
	v.SetDefault("server.metrics_addr", "")

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", "board.sqlite3")
	v.SetDefault("store.dir", ".")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "board:")

	v.SetDefault("client.url", "http://localhost:8080")
	v.SetDefault("client.board", "1")
	v.SetDefault("client.version_check", false)
	v.SetDefault("client.serialize_writes", false)
	v.SetDefault("client.live", true)

	v.SetDefault("ui.theme", "classic")
	v.SetDefault("ui.notify_failures", false)
	v.SetDefault("ui.section_placeholder", "New section")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

func (c *Config) Validate() error {
	if !drivers[c.Store.Driver] {
		return fmt.Errorf("store.driver %q: want one of json, sqlite3, postgres, redis, memory", c.Store.Driver)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q: want json or console", c.Log.Format)
	}
	return nil
}
