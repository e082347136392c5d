package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type MongoConfig struct {
	URI            string        `mapstructure:"uri" validate:"required"`
	Database       string        `mapstructure:"database" default:"ibc_tracker" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" default:"10s"`
}

// GatewayConfig points a chain id at its REST (LCD) gateway.
type GatewayConfig struct {
	ChainID string `mapstructure:"chain_id" validate:"required"`
	LCDUrl  string `mapstructure:"lcd_url" validate:"required,url"`
}

type APIConfig struct {
	Host         string        `mapstructure:"host" default:"0.0.0.0"`
	Port         int           `mapstructure:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" default:"15s"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" default:"10s"`
}

type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled" default:"true"`
	Interval  time.Duration `mapstructure:"interval" default:"1m"`
	BatchSize int64         `mapstructure:"batch_size" default:"100" validate:"gt=0"`
}

type GatewayClientConfig struct {
	Timeout time.Duration `mapstructure:"timeout" default:"10s"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl" default:"24h"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name" default:"ibc-tracker"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Environment   string              `mapstructure:"env" default:"local"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Gateways      []GatewayConfig     `mapstructure:"gateways" validate:"dive"`
	GatewayClient GatewayClientConfig `mapstructure:"gateway_client"`
	API           APIConfig           `mapstructure:"api"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Log           LogConfig           `mapstructure:"log"`
}

// GatewayURLs maps chain ids to their LCD base url.
func (c *Config) GatewayURLs() map[string]string {
	urls := make(map[string]string, len(c.Gateways))
	for _, gw := range c.Gateways {
		urls[gw.ChainID] = strings.TrimRight(gw.LCDUrl, "/")
	}
	return urls
}

var GlobalConfig *Config

// LoadEnv loads .env files into the process environment and lets viper read it.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("error loading env file %s: %w", file, err)
		}
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return nil
}

// Load reads the config file at path (json or yaml), applies environment
// overrides such as MONGO_URI, fills defaults and validates the result.
func Load(path string) error {
	cfg, err := Read(viper.GetViper(), path)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

func Read(v *viper.Viper, path string) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{"env", "mongo.uri", "mongo.database", "redis.addr", "redis.password", "tracing.endpoint", "log.level"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("error applying config defaults: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
