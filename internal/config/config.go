package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type IdentityConfig struct {
	Issuer   string        `mapstructure:"issuer"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Scopes   []string      `mapstructure:"scopes"`
}

type RateLimitConfig struct {
	Joins  int           `mapstructure:"joins"`
	Window time.Duration `mapstructure:"window"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type CallConfig struct {
	SignalURL  string   `mapstructure:"signal_url"`
	ICEServers []string `mapstructure:"ice_servers"`
}

type Config struct {
	Mode            string          `mapstructure:"mode"`
	Port            int             `mapstructure:"port"`
	StaticPath      string          `mapstructure:"static_path"`
	Secret          string          `mapstructure:"secret"`
	LogLevel        string          `mapstructure:"log_level"`
	RoomTTL         time.Duration   `mapstructure:"room_ttl"`
	JanitorInterval time.Duration   `mapstructure:"janitor_interval"`
	Admission       string          `mapstructure:"admission"`
	Identity        IdentityConfig  `mapstructure:"identity"`
	RateLimit       RateLimitConfig `mapstructure:"ratelimit"`
	Poll            PollConfig      `mapstructure:"poll"`
	Call            CallConfig      `mapstructure:"call"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("room_ttl", "24h")
	v.SetDefault("janitor_interval", "1m")
	v.SetDefault("admission", "host_bypass")
	v.SetDefault("identity.issuer", "meet")
	v.SetDefault("identity.secret", "")
	v.SetDefault("identity.token_ttl", "1h")
	v.SetDefault("identity.scopes", []string{"voip"})
	v.SetDefault("ratelimit.joins", 10)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("poll.interval", "2s")
	v.SetDefault("call.signal_url", "")
	v.SetDefault("call.ice_servers", []string{"stun:stun.l.google.com:19302"})
}

// Load reads config/config.<CONFIG_ENV>.yaml. Any key can be overridden
// from the environment with the MEET_ prefix, e.g. MEET_IDENTITY_SECRET.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Defaults returns the built-in configuration with MEET_ overrides applied
// and no file read.
func Defaults() *Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		log.Warn().Err(err).Str("module", "config").Msg("bad environment override")
	}
	return &cfg
}

func LoadFile(fileName string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		// Environment-only deployments have no file.
		log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("admission", cfg.Admission).
		Dur("room_ttl", cfg.RoomTTL).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RoomTTL <= 0 {
		errs = append(errs, errors.New("room_ttl must be positive"))
	}
	if c.JanitorInterval <= 0 {
		errs = append(errs, errors.New("janitor_interval must be positive"))
	}
	if c.RateLimit.Joins <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.joins and ratelimit.window must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
