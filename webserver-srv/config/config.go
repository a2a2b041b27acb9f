package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// ServerConfig defines the general web server instance.
type ServerConfig struct {
	ListenAddress  string   // Address to listen on (e.g., 0.0.0.0:8000)
	TimeoutSeconds int      // Read/write timeout for served connections
	PublicDir      string   // Optional directory served at the application root
	PermittedHosts []string // Host-authorization allow-list; empty disables the check
}

// ProxyConfig defines the transparent reverse-proxy server instance.
type ProxyConfig struct {
	Enabled        bool    // Whether the proxy server runs
	ListenAddress  string  // Address to listen on (e.g., 0.0.0.0:8080)
	TimeoutSeconds int     // Connect/read timeout for upstream requests
	Socks5Forward  string  // Optional SOCKS5 proxy for all upstream dials
	Socks5Username *string // Optional SOCKS5 credentials
	Socks5Password *string
	InsecureTLS    bool // Skip certificate verification on TLS upstreams
}

// BasicAuthConfig wraps the whole application in a Basic challenge.
type BasicAuthConfig struct {
	Username string
	Password string
	Realm    string
}

// StatisticsConfig selects the request-statistics backend.
type StatisticsConfig struct {
	Enabled              bool
	Backend              string // "sqlite", "postgres" or "dummy"
	SQLitePath           string
	PostgresDSN          string
	BufferSize           int
	FlushIntervalSeconds int
}

// PortalConfig configures the management portal mounted into the server app.
type PortalConfig struct {
	Enabled    bool
	PathPrefix string // Mount prefix, default /_portal
	Username   string
	Password   string
}

// Config represents the main configuration structure for the web server.
type Config struct {
	Server     ServerConfig
	Proxy      ProxyConfig
	BasicAuth  *BasicAuthConfig
	Statistics StatisticsConfig
	Portal     PortalConfig
	LogLevel   string
}

// LoadConfig loads configuration from the specified file path.
// Supported formats are .json and .hcl; an empty path loads defaults
// plus environment overrides only.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddress:  "0.0.0.0:8000",
			TimeoutSeconds: 30,
		},
		Proxy: ProxyConfig{
			ListenAddress:  "0.0.0.0:8080",
			TimeoutSeconds: 30,
		},
		Statistics: StatisticsConfig{
			Backend:              "dummy",
			BufferSize:           256,
			FlushIntervalSeconds: 5,
		},
		Portal: PortalConfig{
			PathPrefix: "/_portal",
		},
		LogLevel: "INFO",
	}

	// Apply environment variables
	loadConfigFromEnv(cfg)

	// If a config file is given, load it on top
	if configPath != "" {
		data, err := readConfigMap(configPath)
		if err != nil {
			return nil, err
		}
		if err := applyConfigMap(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// readConfigMap decodes a config file into a generic map according to its
// extension. Both JSON and HCL feed the same map-based loader.
func readConfigMap(configPath string) (map[string]any, error) {
	cleanPath := filepath.Clean(configPath)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config file path: %w", err)
		}
		cleanPath = absPath
	}

	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json":
		return readJSONConfig(cleanPath)
	case ".hcl":
		return readHCLConfig(cleanPath)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func readJSONConfig(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error("Error closing config file: %v", closeErr)
		}
	}()

	var data map[string]any
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode JSON config: %w", err)
	}
	return data, nil
}

// applyConfigMap maps values from the decoded config map onto cfg.
func applyConfigMap(data map[string]any, cfg *Config) error {
	if val, exists := data["server"]; exists {
		m, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("server must be an object")
		}
		if err := applyServerMap(m, &cfg.Server); err != nil {
			return err
		}
	}

	if val, exists := data["proxy"]; exists {
		m, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("proxy must be an object")
		}
		if err := applyProxyMap(m, &cfg.Proxy); err != nil {
			return err
		}
	}

	if val, exists := data["basic-auth"]; exists {
		m, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("basic-auth must be an object")
		}
		auth := &BasicAuthConfig{Realm: "Restricted"}
		if err := applyBasicAuthMap(m, auth); err != nil {
			return err
		}
		cfg.BasicAuth = auth
	}

	if val, exists := data["statistics"]; exists {
		m, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("statistics must be an object")
		}
		if err := applyStatisticsMap(m, &cfg.Statistics); err != nil {
			return err
		}
	}

	if val, exists := data["portal"]; exists {
		m, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("portal must be an object")
		}
		if err := applyPortalMap(m, &cfg.Portal); err != nil {
			return err
		}
	}

	if val, exists := data["log-level"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("log-level must be a string: %w", err)
		}
		cfg.LogLevel = *ptr
	}

	return nil
}

func applyServerMap(m map[string]any, server *ServerConfig) error {
	if val, exists := m["listen-address"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("server listen-address must be a string: %w", err)
		}
		server.ListenAddress = *ptr
	}
	if val, exists := m["timeout-seconds"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			return fmt.Errorf("server timeout-seconds must be an integer: %w", err)
		}
		server.TimeoutSeconds = *ptr
	}
	if val, exists := m["public-dir"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("server public-dir must be a string: %w", err)
		}
		server.PublicDir = *ptr
	}
	if val, exists := m["permitted-hosts"]; exists {
		hosts, err := parseStringList(val)
		if err != nil {
			return fmt.Errorf("server permitted-hosts: %w", err)
		}
		server.PermittedHosts = hosts
	}
	return nil
}

func applyProxyMap(m map[string]any, proxy *ProxyConfig) error {
	if val, exists := m["enabled"]; exists {
		ptr, err := parseValue[bool](val)
		if err != nil {
			return fmt.Errorf("proxy enabled must be a boolean: %w", err)
		}
		proxy.Enabled = *ptr
	}
	if val, exists := m["listen-address"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("proxy listen-address must be a string: %w", err)
		}
		proxy.ListenAddress = *ptr
	}
	if val, exists := m["timeout-seconds"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			return fmt.Errorf("proxy timeout-seconds must be an integer: %w", err)
		}
		proxy.TimeoutSeconds = *ptr
	}
	if val, exists := m["socks5-forward"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("proxy socks5-forward must be a string: %w", err)
		}
		proxy.Socks5Forward = *ptr
	}
	if val, exists := m["socks5-username"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("proxy socks5-username must be a string: %w", err)
		}
		proxy.Socks5Username = ptr
	}
	if val, exists := m["socks5-password"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("proxy socks5-password must be a string: %w", err)
		}
		proxy.Socks5Password = ptr
	}
	if val, exists := m["insecure-tls"]; exists {
		ptr, err := parseValue[bool](val)
		if err != nil {
			return fmt.Errorf("proxy insecure-tls must be a boolean: %w", err)
		}
		proxy.InsecureTLS = *ptr
	}
	return nil
}

func applyBasicAuthMap(m map[string]any, auth *BasicAuthConfig) error {
	if val, exists := m["username"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("basic-auth username must be a string: %w", err)
		}
		auth.Username = *ptr
	}
	if val, exists := m["password"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("basic-auth password must be a string: %w", err)
		}
		auth.Password = *ptr
	}
	if val, exists := m["realm"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("basic-auth realm must be a string: %w", err)
		}
		auth.Realm = *ptr
	}
	return nil
}

func applyStatisticsMap(m map[string]any, stats *StatisticsConfig) error {
	if val, exists := m["enabled"]; exists {
		ptr, err := parseValue[bool](val)
		if err != nil {
			return fmt.Errorf("statistics enabled must be a boolean: %w", err)
		}
		stats.Enabled = *ptr
	}
	if val, exists := m["backend"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("statistics backend must be a string: %w", err)
		}
		backend := strings.ToLower(*ptr)
		switch backend {
		case "sqlite", "postgres", "dummy":
		default:
			return fmt.Errorf("invalid statistics backend: %s", backend)
		}
		stats.Backend = backend
	}
	if val, exists := m["sqlite-path"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("statistics sqlite-path must be a string: %w", err)
		}
		stats.SQLitePath = *ptr
	}
	if val, exists := m["postgres-dsn"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("statistics postgres-dsn must be a string: %w", err)
		}
		stats.PostgresDSN = *ptr
	}
	if val, exists := m["buffer-size"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			return fmt.Errorf("statistics buffer-size must be an integer: %w", err)
		}
		stats.BufferSize = *ptr
	}
	if val, exists := m["flush-interval-seconds"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			return fmt.Errorf("statistics flush-interval-seconds must be an integer: %w", err)
		}
		stats.FlushIntervalSeconds = *ptr
	}
	return nil
}

func applyPortalMap(m map[string]any, portal *PortalConfig) error {
	if val, exists := m["enabled"]; exists {
		ptr, err := parseValue[bool](val)
		if err != nil {
			return fmt.Errorf("portal enabled must be a boolean: %w", err)
		}
		portal.Enabled = *ptr
	}
	if val, exists := m["path-prefix"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("portal path-prefix must be a string: %w", err)
		}
		portal.PathPrefix = *ptr
	}
	if val, exists := m["username"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("portal username must be a string: %w", err)
		}
		portal.Username = *ptr
	}
	if val, exists := m["password"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("portal password must be a string: %w", err)
		}
		portal.Password = *ptr
	}
	return nil
}

// parseValue converts a decoded config value to the requested scalar type.
// JSON numbers arrive as float64 and are narrowed for integer targets.
func parseValue[T any](val any) (*T, error) {
	if typed, ok := val.(T); ok {
		return &typed, nil
	}

	var zero T
	switch any(zero).(type) {
	case int:
		switch n := val.(type) {
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("value %v is not an integer", val)
			}
			converted := any(int(n)).(T)
			return &converted, nil
		case int64:
			converted := any(int(n)).(T)
			return &converted, nil
		}
	}

	return nil, fmt.Errorf("unexpected value type %T", val)
}

// parseStringList converts a decoded list value to []string.
func parseStringList(val any) ([]string, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("must be a list of strings")
	}
	result := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d must be a string, got %T", i, item)
		}
		result = append(result, s)
	}
	return result, nil
}

// loadConfigFromEnv applies RONINWEB_* environment variable overrides.
func loadConfigFromEnv(cfg *Config) {
	if v := os.Getenv("RONINWEB_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("RONINWEB_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.TimeoutSeconds = n
		} else {
			logger.Warn("Invalid RONINWEB_TIMEOUT_SECONDS value: %s", v)
		}
	}
	if v := os.Getenv("RONINWEB_PUBLIC_DIR"); v != "" {
		cfg.Server.PublicDir = v
	}
	if v := os.Getenv("RONINWEB_PROXY_ENABLED"); v != "" {
		cfg.Proxy.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RONINWEB_PROXY_LISTEN_ADDRESS"); v != "" {
		cfg.Proxy.ListenAddress = v
	}
	if v := os.Getenv("RONINWEB_BASIC_AUTH_USERNAME"); v != "" {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{Realm: "Restricted"}
		}
		cfg.BasicAuth.Username = v
	}
	if v := os.Getenv("RONINWEB_BASIC_AUTH_PASSWORD"); v != "" {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{Realm: "Restricted"}
		}
		cfg.BasicAuth.Password = v
	}
	if v := os.Getenv("RONINWEB_STATISTICS_BACKEND"); v != "" {
		cfg.Statistics.Enabled = true
		cfg.Statistics.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("RONINWEB_SQLITE_PATH"); v != "" {
		cfg.Statistics.SQLitePath = v
	}
	if v := os.Getenv("RONINWEB_POSTGRES_DSN"); v != "" {
		cfg.Statistics.PostgresDSN = v
	}
	if v := os.Getenv("RONINWEB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
