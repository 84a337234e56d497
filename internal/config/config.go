// Package config loads the application configuration from an optional
// YAML file, a .env file and ZAPQUIZ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/httpapi"
	"github.com/abhisek/zapquiz/internal/leaderboard"
	"github.com/abhisek/zapquiz/internal/llm"
	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/scheduler"
	"github.com/abhisek/zapquiz/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. ZAPQUIZ_STORE_DSN.
const EnvPrefix = "ZAPQUIZ"

// Config is the complete application configuration.
type Config struct {
	Log         LogConfig           `mapstructure:"log"`
	Store       store.Config        `mapstructure:"store"`
	Economy     economy.Config      `mapstructure:"economy"`
	Content     content.Config      `mapstructure:"content"`
	Judge       content.JudgeConfig `mapstructure:"judge"`
	LLM         llm.Config          `mapstructure:"llm"`
	Session     orchestrator.Config `mapstructure:"session"`
	Leaderboard leaderboard.Config  `mapstructure:"leaderboard"`
	HTTP        httpapi.Config      `mapstructure:"http"`
	Scheduler   scheduler.Config    `mapstructure:"scheduler"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log:       DefaultLogConfig(),
		Store:     store.Config{Driver: store.DriverSQLite},
		Economy:   economy.DefaultConfig(),
		Content:   content.DefaultConfig(),
		Judge:     content.DefaultJudgeConfig(),
		LLM:       llm.DefaultConfig(),
		Session:   orchestrator.DefaultConfig(),
		HTTP:      httpapi.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load reads the configuration. A .env file in the working directory is
// loaded into the environment first without overriding variables already
// set. path names a config file; when empty, config.yaml in the working
// directory is used if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, "", reflect.ValueOf(Default()))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM.DiscoverKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// setDefaults registers every leaf of def under its mapstructure key so
// that AutomaticEnv can override keys missing from the config file.
func setDefaults(v *viper.Viper, prefix string, def reflect.Value) {
	t := def.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := def.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type().PkgPath() != "time" {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
