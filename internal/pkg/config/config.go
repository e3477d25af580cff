package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Charger     ChargerConfig     `mapstructure:"charger"`
	Viewport    ViewportConfig    `mapstructure:"viewport"`
	Geolocation GeolocationConfig `mapstructure:"geolocation"`
	Bootstrap   BootstrapConfig   `mapstructure:"bootstrap"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// BackendConfig points at the REST backend serving POI lists.
type BackendConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	PlacesPath   string `mapstructure:"places_path"`
	StationsPath string `mapstructure:"stations_path"`
	TimeoutMS    int    `mapstructure:"timeout_ms"` // 0 = no client timeout
}

// Timeout returns the per-request timeout, zero meaning none.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// ChargerConfig configures the public EV charger status API.
type ChargerConfig struct {
	StatusURL  string `mapstructure:"status_url"`
	ServiceKey string `mapstructure:"service_key"`
	Period     int    `mapstructure:"period"`
	TimeoutMS  int    `mapstructure:"timeout_ms"`
}

func (c ChargerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type ViewportConfig struct {
	ThresholdKm      float64 `mapstructure:"threshold_km"`
	AdvanceOnFailure bool    `mapstructure:"advance_on_failure"`
}

// GeolocationConfig selects how a session obtains its initial position.
type GeolocationConfig struct {
	Provider   string  `mapstructure:"provider"` // client | geoclue | static | none
	TimeoutMS  int     `mapstructure:"timeout_ms"`
	DefaultLat float64 `mapstructure:"default_lat"`
	DefaultLng float64 `mapstructure:"default_lng"`
	StaticLat  float64 `mapstructure:"static_lat"`
	StaticLng  float64 `mapstructure:"static_lng"`
	DesktopID  string  `mapstructure:"desktop_id"`
}

func (g GeolocationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

type BootstrapConfig struct {
	RetryAtDefault bool `mapstructure:"retry_at_default"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"` // empty disables NATS
}

type ValkeyConfig struct {
	Addr     string `mapstructure:"addr"` // empty keeps tokens in memory
	TokenTTL int    `mapstructure:"token_ttl"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var geolocationProviders = map[string]bool{
	"client":  true,
	"geoclue": true,
	"static":  true,
	"none":    true,
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("backend.base_url", "http://localhost:8081")
	v.SetDefault("backend.places_path", "/api/load_location")
	v.SetDefault("backend.stations_path", "/api/load_char_location")
	v.SetDefault("backend.timeout_ms", 0)
	v.SetDefault("charger.status_url", "http://apis.data.go.kr/B552584/EvCharger/getChargerStatus")
	v.SetDefault("charger.service_key", "")
	v.SetDefault("charger.period", 5)
	v.SetDefault("charger.timeout_ms", 5000)
	v.SetDefault("viewport.threshold_km", 30.0)
	v.SetDefault("viewport.advance_on_failure", true)
	v.SetDefault("geolocation.provider", "client")
	v.SetDefault("geolocation.timeout_ms", 5000)
	v.SetDefault("geolocation.default_lat", 37.5665)
	v.SetDefault("geolocation.default_lng", 126.9780)
	v.SetDefault("geolocation.static_lat", 37.5665)
	v.SetDefault("geolocation.static_lng", 126.9780)
	v.SetDefault("geolocation.desktop_id", "poimap.desktop")
	v.SetDefault("bootstrap.retry_at_default", false)
	v.SetDefault("nats.url", "")
	v.SetDefault("valkey.addr", "")
	v.SetDefault("valkey.token_ttl", 3600)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: POIMAP_BACKEND_BASE_URL → backend.base_url
	v.SetEnvPrefix("POIMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.base_url must be an absolute URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.PlacesPath == "" || c.Backend.StationsPath == "" {
		errs = append(errs, "backend.places_path and backend.stations_path are required")
	}
	if c.Backend.TimeoutMS < 0 {
		errs = append(errs, "backend.timeout_ms must not be negative")
	}
	if c.Charger.TimeoutMS <= 0 {
		errs = append(errs, "charger.timeout_ms must be positive")
	}
	if c.Viewport.ThresholdKm <= 0 {
		errs = append(errs, fmt.Sprintf("viewport.threshold_km must be positive, got %v", c.Viewport.ThresholdKm))
	}
	if !geolocationProviders[c.Geolocation.Provider] {
		errs = append(errs, fmt.Sprintf("geolocation.provider must be one of client, geoclue, static, none; got %q", c.Geolocation.Provider))
	}
	if c.Geolocation.TimeoutMS <= 0 {
		errs = append(errs, "geolocation.timeout_ms must be positive")
	}
	if !validLatLng(c.Geolocation.DefaultLat, c.Geolocation.DefaultLng) {
		errs = append(errs, "geolocation.default_lat/default_lng out of range")
	}
	if c.Geolocation.Provider == "static" && !validLatLng(c.Geolocation.StaticLat, c.Geolocation.StaticLng) {
		errs = append(errs, "geolocation.static_lat/static_lng out of range")
	}
	if c.Valkey.Addr != "" && c.Valkey.TokenTTL <= 0 {
		errs = append(errs, "valkey.token_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
