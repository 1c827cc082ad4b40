package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
	yaml "gopkg.in/yaml.v2"
)

const (
	CacheRootPathPrefixDefault string = "/tmp/betterplayer_cache"
	LogFilePathPrefixDefault   string = "/tmp/betterplayer"
)

var (
	instanceID string
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// GetDefaultLogFilePath returns default log file path
func GetDefaultLogFilePath() string {
	return fmt.Sprintf("%s_%s.log", LogFilePathPrefixDefault, getInstanceID())
}

// GetDefaultCacheRootPath returns default cache root path.
// Unlike the log path, it is stable across restarts so that the cache index survives.
func GetDefaultCacheRootPath() string {
	return CacheRootPathPrefixDefault
}

// Config holds the parameters list which can be configured
type Config struct {
	ServicePort int `envconfig:"BETTERPLAYER_SERVICE_PORT" yaml:"service_port"`

	CacheRootPath    string `envconfig:"BETTERPLAYER_CACHE_ROOT" yaml:"cache_root_path"`
	CacheSizeMax     int64  `envconfig:"BETTERPLAYER_CACHE_SIZE_MAX" yaml:"cache_size_max"`
	CacheFileSizeMax int64  `envconfig:"BETTERPLAYER_CACHE_FILE_SIZE_MAX" yaml:"cache_file_size_max"`
	PreCacheSize     int64  `envconfig:"BETTERPLAYER_PRE_CACHE_SIZE" yaml:"pre_cache_size"`
	PrefetchWorkers  int    `envconfig:"BETTERPLAYER_PREFETCH_WORKERS" yaml:"prefetch_workers"`

	LicenseServerURL string `envconfig:"BETTERPLAYER_LICENSE_SERVER_URL" yaml:"license_server_url,omitempty"`
	UserAgent        string `envconfig:"BETTERPLAYER_USER_AGENT" yaml:"user_agent,omitempty"`

	SessionTimeout     time.Duration `envconfig:"BETTERPLAYER_SESSION_TIMEOUT" yaml:"session_timeout,omitempty"`
	StallCheckInterval time.Duration `yaml:"stall_check_interval,omitempty"`

	LogPath string `envconfig:"BETTERPLAYER_LOG_PATH" yaml:"log_path,omitempty"`

	Profile                bool `yaml:"profile,omitempty"`
	ProfileServicePort     int  `yaml:"profile_service_port,omitempty"`
	PrometheusExporterPort int  `envconfig:"BETTERPLAYER_PROMETHEUS_EXPORTER_PORT" yaml:"prometheus_exporter_port,omitempty"`

	Debug bool `envconfig:"BETTERPLAYER_DEBUG" yaml:"debug,omitempty"`

	InstanceID string `yaml:"instanceid,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		ServicePort: ServicePortDefault,

		CacheRootPath:    GetDefaultCacheRootPath(),
		CacheSizeMax:     CacheSizeMaxDefault,
		CacheFileSizeMax: CacheFileSizeMaxDefault,
		PreCacheSize:     PreCacheSizeDefault,
		PrefetchWorkers:  PrefetchWorkersDefault,

		LicenseServerURL: LicenseServerURLDefault,
		UserAgent:        UserAgentDefault,

		SessionTimeout:     SessionTimeoutDefault,
		StallCheckInterval: StallCheckInterval,

		LogPath: "",

		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: PrometheusExporterPortDefault,

		Debug: false,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal YAML: %w", err)
	}

	return config, nil
}

// NewConfigFromENV creates Config from Environmental Variables
func NewConfigFromENV() (*Config, error) {
	config := NewDefaultConfig()

	err := envconfig.Process("", config)
	if err != nil {
		return nil, xerrors.Errorf("failed to read environmental variables: %w", err)
	}

	return config, nil
}

// GetLogFilePath returns log file path
func (config *Config) GetLogFilePath() string {
	if config.LogPath == "-" {
		return ""
	}
	return config.LogPath
}

// MakeWorkDirs makes dirs required
func (config *Config) MakeWorkDirs() error {
	if len(config.CacheRootPath) > 0 {
		err := os.MkdirAll(config.CacheRootPath, 0o755)
		if err != nil {
			return xerrors.Errorf("failed to make cache root dir %q: %w", config.CacheRootPath, err)
		}
	}

	logFilePath := config.GetLogFilePath()
	if len(logFilePath) > 0 {
		err := os.MkdirAll(filepath.Dir(logFilePath), 0o755)
		if err != nil {
			return xerrors.Errorf("failed to make log dir for %q: %w", logFilePath, err)
		}
	}

	return nil
}

// Validate validates configuration
func (config *Config) Validate() error {
	if config.ServicePort <= 0 {
		return xerrors.Errorf("service port must be given")
	}

	if len(config.CacheRootPath) == 0 {
		return xerrors.Errorf("cache root path must be given")
	}

	if config.CacheSizeMax <= 0 {
		return xerrors.Errorf("cache size max must be positive")
	}

	if config.CacheFileSizeMax > config.CacheSizeMax {
		return xerrors.Errorf("cache file size max %d must not exceed cache size max %d", config.CacheFileSizeMax, config.CacheSizeMax)
	}

	if config.PrefetchWorkers <= 0 {
		return xerrors.Errorf("prefetch workers must be positive")
	}

	if config.SessionTimeout < 0 {
		return xerrors.Errorf("session timeout must not be negative")
	}

	if config.Profile && config.ProfileServicePort <= 0 {
		return xerrors.Errorf("profile service port must be given")
	}

	return nil
}

// ParsePlayerServiceEndpoint parses an endpoint string and returns the scheme and the grpc dial target.
// Accepts "unix:///path", "tcp://host:port", "host:port" and ":port".
func ParsePlayerServiceEndpoint(endpoint string) (string, string, error) {
	switch {
	case strings.HasPrefix(endpoint, "unix://"):
		path := strings.TrimPrefix(endpoint, "unix://")
		if len(path) == 0 {
			return "", "", xerrors.Errorf("unix socket path is empty in %q", endpoint)
		}
		return "unix", "unix://" + path, nil
	case strings.HasPrefix(endpoint, "tcp://"):
		endpoint = strings.TrimPrefix(endpoint, "tcp://")
	case strings.Contains(endpoint, "://"):
		return "", "", xerrors.Errorf("unsupported scheme in %q", endpoint)
	}

	if !strings.Contains(endpoint, ":") {
		return "", "", xerrors.Errorf("port is not given in %q", endpoint)
	}

	if strings.HasPrefix(endpoint, ":") {
		endpoint = "localhost" + endpoint
	}
	return "tcp", endpoint, nil
}
