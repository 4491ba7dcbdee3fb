// Package config loads, validates, and renders the gateway's typed
// configuration: a YAML file (sigs.k8s.io/yaml) layered with environment
// variable overrides (kelseyhightower/envconfig).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"

	"github.com/opencast/mediagate/internal/log"
)

// ConfigPathEnv names the environment variable that overrides the config
// file search path.
const ConfigPathEnv = "MEDIAGATE_CONFIG_PATH"

// DefaultPaths are searched, in order, when ConfigPathEnv is unset.
var DefaultPaths = []string{"./config.yaml", "/etc/mediagate/config.yaml"}

// SourceConfig names one place to look for a bearer token.
type SourceConfig struct {
	// Query names a query parameter to read; mutually exclusive with Header.
	Query string `json:"query,omitempty"`
	// Header names a request header to read.
	Header string `json:"header,omitempty"`
	// Prefix is stripped from the header value when present.
	Prefix string `json:"prefix,omitempty"`
}

// HTTPConfig configures the listener and response-shape policy.
type HTTPConfig struct {
	Port               uint16         `json:"port" envconfig:"HTTP_PORT"`
	Address            string         `json:"address" envconfig:"HTTP_ADDRESS"`
	ShutdownTimeout    Duration       `json:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
	OnAllow            string         `json:"on_allow" envconfig:"HTTP_ON_ALLOW"`
	OnDeny             string         `json:"on_deny" envconfig:"HTTP_ON_DENY"`
	CORSAllowedOrigins []string       `json:"cors_allowed_origins"`
	JWTSources         []SourceConfig `json:"jwt_sources"`
}

// JWTConfig configures the trust anchor and clock tolerance.
type JWTConfig struct {
	TrustedKeys          []string `json:"trusted_keys"`
	BackgroundKeyRefresh bool     `json:"background_key_refresh" envconfig:"JWT_BACKGROUND_KEY_REFRESH"`
	KeyCacheDuration     Duration `json:"key_cache_duration" envconfig:"JWT_KEY_CACHE_DURATION"`
	AllowedClockSkew     Duration `json:"allowed_clock_skew" envconfig:"JWT_ALLOWED_CLOCK_SKEW"`
}

// OpencastConfig configures the upstream media platform.
type OpencastConfig struct {
	Host          string   `json:"host" envconfig:"OPENCAST_HOST"`
	Fallback      string   `json:"fallback" envconfig:"OPENCAST_FALLBACK"`
	PathPrefixes  []string `json:"path_prefixes"`
	DownloadsPath string   `json:"downloads_path" envconfig:"OPENCAST_DOWNLOADS_PATH"`
}

// Config is the gateway's complete, validated configuration.
type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	JWT      JWTConfig      `json:"jwt"`
	Opencast OpencastConfig `json:"opencast"`
	Log      log.Config     `json:"log"`
}

// LeadTime is the background key refresh loop's fixed lead time ahead of a
// source's computed expiry (key_cache_duration after its last fetch).
const LeadTime = 3 * time.Second

// Default returns the gateway's configuration with every field set to the
// defaults named in its external reference.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            4050,
			Address:         "127.0.0.1",
			ShutdownTimeout: Duration{3 * time.Second},
			OnAllow:         "empty",
			OnDeny:          "empty",
			JWTSources: []SourceConfig{
				{Header: "Authorization", Prefix: "Bearer "},
				{Query: "jwt"},
			},
		},
		JWT: JWTConfig{
			BackgroundKeyRefresh: true,
			KeyCacheDuration:     Duration{10 * time.Minute},
			AllowedClockSkew:     Duration{3 * time.Second},
		},
		Opencast: OpencastConfig{
			Fallback:     "head",
			PathPrefixes: []string{"/static"},
		},
		Log: log.DefaultConfig(),
	}
}

// Load reads and parses a YAML config file from path, starting from
// Default() and layering environment variable overrides with the
// MEDIAGATE_ prefix on top via envconfig.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	// Each section is processed on its own so that a field tagged
	// "HTTP_PORT" is read from MEDIAGATE_HTTP_PORT; processing the whole
	// Config would nest the section name into the key a second time.
	for _, section := range []any{&cfg.HTTP, &cfg.JWT, &cfg.Opencast, &cfg.Log} {
		if err := envconfig.Process("mediagate", section); err != nil {
			return Config{}, fmt.Errorf("config: applying environment overrides: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolvePath returns the config file path to load: the MEDIAGATE_CONFIG_PATH
// environment variable if set, otherwise the first of DefaultPaths that
// exists on disk. It returns an error if none can be found.
func ResolvePath() (string, error) {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config: no config file found in %v (set %s to override)", DefaultPaths, ConfigPathEnv)
}

// LoadResolved resolves the config path via ResolvePath and loads it.
func LoadResolved() (Config, error) {
	path, err := ResolvePath()
	if err != nil {
		return Config{}, err
	}
	return Load(path)
}

// Template renders an annotated YAML configuration template seeded with
// Default()'s values, suitable for `mediagate gen-config-template`.
func Template() ([]byte, error) {
	cfg := Default()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: rendering template: %w", err)
	}
	header := "# mediagate configuration template.\n" +
		"# jwt.trusted_keys must name at least one JWKS source URL before this\n" +
		"# file is usable; opencast.downloads_path is required when\n" +
		"# http.on_allow is \"file\".\n"
	return append([]byte(header), out...), nil
}

