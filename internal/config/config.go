package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vertextoedge/download-controller/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. DLCTL_PROXY_HOST
const EnvPrefix = "DLCTL"

// Config represents the entire application configuration
type Config struct {
	Client          ClientConfig          `mapstructure:"client"`
	DownloadManager DownloadManagerConfig `mapstructure:"download_manager"`
	Proxy           ProxyConfig           `mapstructure:"proxy"`
	Page            PageConfig            `mapstructure:"page"`
	HTTP            HTTPConfig            `mapstructure:"http"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Maintenance     MaintenanceConfig     `mapstructure:"maintenance"`
	Telemetry       TelemetryConfig       `mapstructure:"telemetry"`
}

// ClientConfig identifies the embedding client to the session manager
type ClientConfig struct {
	ID string `mapstructure:"id"`
}

// DownloadManagerConfig contains session manager settings.
// Enabled=false selects the degraded backend.
type DownloadManagerConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	DownloadDir           string `mapstructure:"download_dir"`
	ConcurrentDownloads   int    `mapstructure:"concurrent_downloads"`
	ProgressInterval      string `mapstructure:"progress_interval"`
	RateLimitKBps         int    `mapstructure:"rate_limit_kbps"`
	ConnectTimeout        string `mapstructure:"connect_timeout"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	UserAgent             string `mapstructure:"user_agent"`
}

// ProxyConfig contains the optional HTTP proxy
type ProxyConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PageConfig contains page host settings
type PageConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	RenderableTypes []string `mapstructure:"renderable_types"`
	MaxPageBytes    int64    `mapstructure:"max_page_bytes"`
}

// HTTPConfig contains control API configuration
type HTTPConfig struct {
	BindAddr          string `mapstructure:"bind_addr"`
	EnableFileBrowser bool   `mapstructure:"enable_file_browser"`
	AdminUsername     string `mapstructure:"admin_username"`
	AdminPassword     string `mapstructure:"admin_password"`
	ReadTimeout       string `mapstructure:"read_timeout"`
	WriteTimeout      string `mapstructure:"write_timeout"`
	IdleTimeout       string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains history database settings; an empty path disables history
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MaintenanceConfig contains periodic cleanup settings
type MaintenanceConfig struct {
	CleanupInterval   string  `mapstructure:"cleanup_interval"`
	HistoryRetention  string  `mapstructure:"history_retention"`
	TempFileMaxAge    string  `mapstructure:"temp_file_max_age"`
	DiskCheckInterval string  `mapstructure:"disk_check_interval"`
	DiskWarnPercent   float64 `mapstructure:"disk_warn_percent"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.id", "download-controller")
	v.SetDefault("download_manager.enabled", true)
	v.SetDefault("download_manager.download_dir", "./downloads")
	v.SetDefault("download_manager.concurrent_downloads", 3)
	v.SetDefault("download_manager.progress_interval", "500ms")
	v.SetDefault("download_manager.rate_limit_kbps", 0)
	v.SetDefault("download_manager.connect_timeout", "30s")
	v.SetDefault("download_manager.response_header_timeout", "1m")
	v.SetDefault("download_manager.user_agent", "download-controller/1.0")
	v.SetDefault("proxy.host", "")
	v.SetDefault("proxy.port", 0)
	v.SetDefault("page.enabled", true)
	v.SetDefault("page.renderable_types", []string{"text/html", "text/plain", "application/xhtml+xml", "image/*"})
	v.SetDefault("page.max_page_bytes", 8<<20)
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.enable_file_browser", false)
	v.SetDefault("http.admin_username", "admin")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.history_retention", "720h")
	v.SetDefault("maintenance.temp_file_max_age", "168h")
	v.SetDefault("maintenance.disk_check_interval", "5m")
	v.SetDefault("maintenance.disk_warn_percent", 90)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "download-controller")
}

// Load loads configuration from the specified file path.
// An empty path uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DownloadManager.Enabled {
		if c.DownloadManager.DownloadDir == "" {
			return fmt.Errorf("download_manager.download_dir is required")
		}
		if c.DownloadManager.ConcurrentDownloads < 1 || c.DownloadManager.ConcurrentDownloads > 16 {
			return fmt.Errorf("download_manager.concurrent_downloads must be between 1 and 16")
		}
		if c.DownloadManager.RateLimitKBps < 0 {
			return fmt.Errorf("download_manager.rate_limit_kbps must not be negative")
		}
	}

	if c.Proxy.Host != "" && (c.Proxy.Port < 1 || c.Proxy.Port > 65535) {
		return fmt.Errorf("proxy.port must be between 1 and 65535")
	}

	durations := map[string]string{
		"download_manager.progress_interval":       c.DownloadManager.ProgressInterval,
		"download_manager.connect_timeout":         c.DownloadManager.ConnectTimeout,
		"download_manager.response_header_timeout": c.DownloadManager.ResponseHeaderTimeout,
		"maintenance.cleanup_interval":             c.Maintenance.CleanupInterval,
		"maintenance.history_retention":            c.Maintenance.HistoryRetention,
		"maintenance.temp_file_max_age":            c.Maintenance.TempFileMaxAge,
		"maintenance.disk_check_interval":          c.Maintenance.DiskCheckInterval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.HTTP.EnableFileBrowser && c.HTTP.AdminPassword == "" {
		return fmt.Errorf("http.admin_password is required when the file browser is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(value)
	if d <= 0 {
		return fallback
	}
	return d
}

// Proxy returns the configured proxy, nil when no host is set
func (c *ProxyConfig) Proxy() *domain.Proxy {
	if c.Host == "" {
		return nil
	}
	return &domain.Proxy{Host: c.Host, Port: c.Port}
}

// GetProgressInterval returns the progress interval as time.Duration
func (c *DownloadManagerConfig) GetProgressInterval() time.Duration {
	return durationOr(c.ProgressInterval, 500*time.Millisecond)
}

// GetConnectTimeout returns the connect timeout as time.Duration
func (c *DownloadManagerConfig) GetConnectTimeout() time.Duration {
	return durationOr(c.ConnectTimeout, 30*time.Second)
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *DownloadManagerConfig) GetResponseHeaderTimeout() time.Duration {
	return durationOr(c.ResponseHeaderTimeout, time.Minute)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return durationOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return durationOr(c.IdleTimeout, 60*time.Second)
}

// GetCleanupInterval returns the cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return durationOr(c.CleanupInterval, time.Hour)
}

// GetHistoryRetention returns the history retention as time.Duration
func (c *MaintenanceConfig) GetHistoryRetention() time.Duration {
	return durationOr(c.HistoryRetention, 30*24*time.Hour)
}

// GetTempFileMaxAge returns the temp file max age as time.Duration
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	return durationOr(c.TempFileMaxAge, 7*24*time.Hour)
}

// GetDiskCheckInterval returns the disk check interval as time.Duration
func (c *MaintenanceConfig) GetDiskCheckInterval() time.Duration {
	return durationOr(c.DiskCheckInterval, 5*time.Minute)
}
