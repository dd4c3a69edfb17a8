package vizsession

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by LoadServerConfig,
// e.g. BOKEH_SECRET_KEY.
const EnvPrefix = "BOKEH"

// ServerConfig is the process-wide session policy. It is read once at startup
// and never changes afterwards.
type ServerConfig struct {
	GenerateSessionIDs bool   `mapstructure:"generate_session_ids"`
	SignSessions       bool   `mapstructure:"sign_sessions"`
	SecretKey          string `mapstructure:"secret_key"`
}

// DefaultServerConfig mints unsigned session ids.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		GenerateSessionIDs: true,
	}
}

// Validate checks the policy is usable.
func (c ServerConfig) Validate() error {
	if c.SignSessions && c.SecretKey == "" {
		return ErrSecretKeyRequired
	}
	return nil
}

// LoadServerConfig reads the session policy from the optional config file at
// path and from BOKEH_* environment variables, which take precedence.
func LoadServerConfig(path string) (ServerConfig, error) {
	def := DefaultServerConfig()

	v := viper.New()
	v.SetDefault("generate_session_ids", def.GenerateSessionIDs)
	v.SetDefault("sign_sessions", def.SignSessions)
	v.SetDefault("secret_key", def.SecretKey)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Config configures a Manager.
type Config struct {
	Server          ServerConfig
	Store           Store
	Factory         Factory // defaults to StoreFactory(Store, TTL)
	TTL             time.Duration
	CookieName      string
	CookiePath      string
	CookieDomain    string
	CleanupInterval time.Duration
	SaveTimeout     time.Duration
	HttpOnly        *bool
	Secure          *bool
	SameSite        http.SameSite
	MaxSessionBytes int // Maximum size in bytes of the serialized session data. 0 means unlimited.
	Logger          *zerolog.Logger
	Metrics         *Metrics
}
