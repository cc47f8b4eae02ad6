// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	APIPrefix   string   `mapstructure:"apiprefix"`

	// Visitor session window: a fingerprint with activity inside this many
	// seconds keeps its current session.
	SessionTimeoutSeconds int `mapstructure:"sessiontimeoutseconds"`

	// Shared secret for the read-side API. Either a plain key or a bcrypt hash.
	AdminKey string `mapstructure:"adminkey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Geolocation
	GeoDBPath          string `mapstructure:"geodbpath"`
	GeoAPIURL          string `mapstructure:"geoapiurl"`
	GeoAPITimeoutMs    int    `mapstructure:"geoapitimeoutms"`
	GeoLiteLicenseKey  string `mapstructure:"geolitelicensekey"`
	GeoLiteDownloadURL string `mapstructure:"geolitedownloadurl"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Raw analytics records older than this are purged. 0 keeps everything.
	RetentionDays int `mapstructure:"retentiondays"`
}

// option binds a config key to its environment variable and default.
type option struct {
	key   string
	env   string
	value any
}

var options = []option{
	{"appname", "HAYZEDD_APP_NAME", "hayzedd"},
	{"appport", "HAYZEDD_APP_PORT", "3000"},
	{"environment", "HAYZEDD_ENV", Development},
	{"loglevel", "HAYZEDD_LOG_LEVEL", string(LogLevelDebug)},
	{"privatekey", "HAYZEDD_PRIVATE_KEY", defaultPrivateKey},
	{"apiprefix", "HAYZEDD_API_PREFIX", "/api/analytics"},
	{"sessiontimeoutseconds", "HAYZEDD_SESSION_TIMEOUT_SECONDS", 1800},
	{"adminkey", "HAYZEDD_ADMIN_KEY", ""},
	{"storagepath", "HAYZEDD_STORAGE_PATH", "storage"},
	{"publicdir", "HAYZEDD_PUBLIC_DIR", "public"},
	{"publicassetsurlprefix", "HAYZEDD_PUBLIC_ASSETS_URL_PREFIX", "/"},
	{"geodbpath", "HAYZEDD_GEO_DB_PATH", "storage/GeoLite2-City.mmdb"},
	{"geoapiurl", "HAYZEDD_GEO_API_URL", "https://ipapi.co"},
	{"geoapitimeoutms", "HAYZEDD_GEO_API_TIMEOUT_MS", 3000},
	{"geolitelicensekey", "HAYZEDD_GEOLITE_LICENSE_KEY", ""},
	{"geolitedownloadurl", "HAYZEDD_GEOLITE_DOWNLOAD_URL", "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz"},
	{"logsdir", "HAYZEDD_LOGS_DIR", "logs"},
	{"logsmaxsizeinmb", "HAYZEDD_LOGS_MAX_SIZE_IN_MB", 20},
	{"logsmaxbackups", "HAYZEDD_LOGS_MAX_BACKUPS", 10},
	{"logsmaxageindays", "HAYZEDD_LOGS_MAX_AGE_IN_DAYS", 30},
	{"dbtype", "HAYZEDD_DB_TYPE", SQLiteDatabase},
	{"dbmaxopenconns", "HAYZEDD_DB_MAX_OPEN_CONNS", 0},
	{"dbmaxidleconns", "HAYZEDD_DB_MAX_IDLE_CONNS", 0},
	{"jobintervalseconds", "HAYZEDD_JOB_INTERVAL_SECONDS", 300},
	{"retentiondays", "HAYZEDD_RETENTION_DAYS", 0},
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig loads the configuration once from HAYZEDD_* variables.
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()
		for _, opt := range options {
			v.SetDefault(opt.key, opt.value)
			if err := v.BindEnv(opt.key, opt.env); err != nil {
				log.Fatalf("config: failed to bind %s: %v", opt.env, err)
			}
		}

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique HAYZEDD_PRIVATE_KEY (cannot use default)")
		}
		if cfg.IsProduction() && cfg.AdminKey == "" {
			log.Println("config: HAYZEDD_ADMIN_KEY is empty, read-side analytics endpoints will reject every request")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.DatabaseType != SQLiteDatabase {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}

	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive, got %d", c.SessionTimeoutSeconds)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative, got %d", c.RetentionDays)
	}

	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("api prefix must start with '/': %q", c.APIPrefix)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the visitor session window in seconds.
func (c *Config) GetSessionTimeout() int {
	return c.SessionTimeoutSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// Explicit values win; otherwise tests get 1 and everything else 10 so the
// stats queries can run in parallel.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
