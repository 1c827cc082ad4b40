package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

// SetCommonFlags sets flags shared by all commands
func SetCommonFlags(command *cobra.Command) {
	command.PersistentFlags().BoolP("version", "v", false, "Print version")
	command.PersistentFlags().BoolP("debug", "d", false, "Enable debug mode")
}

// SetServeFlags sets flags of the serve command
func SetServeFlags(command *cobra.Command) {
	command.Flags().BoolP("profile", "", false, "Enable profiling")

	command.Flags().StringP("config", "", "", "Set config file (yaml), environmental variables are used if not given")
	command.Flags().IntP("port", "p", commons.ServicePortDefault, "Set service port")
	command.Flags().StringP("log", "", "", "Set log file path, '-' for stderr only")
	command.Flags().StringP("cache_root", "", commons.GetDefaultCacheRootPath(), "Set media cache root path")
	command.Flags().Int64P("cache_size_max", "", commons.CacheSizeMaxDefault, "Set media cache max size")
	command.Flags().Int64P("cache_file_size_max", "", commons.CacheFileSizeMaxDefault, "Set media cache max size per file")
	command.Flags().Int64P("pre_cache_size", "", commons.PreCacheSizeDefault, "Set default pre-cache size")
	command.Flags().IntP("prefetch_workers", "", commons.PrefetchWorkersDefault, "Set the number of concurrent pre-cache jobs")
	command.Flags().StringP("license_server_url", "", commons.LicenseServerURLDefault, "Set default DRM license server url")
	command.Flags().DurationP("session_timeout", "", commons.SessionTimeoutDefault, "Release sessions idle for the duration, 0 to disable")

	command.Flags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
	command.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port, 0 to disable")
}

// SetClientFlags sets flags of commands talking to a running service
func SetClientFlags(command *cobra.Command) {
	command.PersistentFlags().StringP("endpoint", "", commons.ServiceEndpointDefault, "Set service endpoint (host:port or unix:///file.sock)")
	command.PersistentFlags().DurationP("timeout", "", 30*time.Second, "Set operation timeout")
}

func getBoolFlag(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	value, err := strconv.ParseBool(flag.Value.String())
	if err != nil {
		return false
	}
	return value
}

// ProcessCommonFlags handles flags shared by all commands, returns false if the command should stop
func ProcessCommonFlags(command *cobra.Command) (bool, error) {
	if getBoolFlag(command, "debug") {
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "version") {
		err := PrintVersion(command)
		return false, err // stop here
	}

	return true, nil // continue
}

// ProcessServeFlags builds the service config from the config file or environmental variables,
// then applies flags given explicitly
func ProcessServeFlags(command *cobra.Command) (*commons.Config, io.WriteCloser, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessServeFlags",
	})

	var config *commons.Config

	configPath, _ := command.Flags().GetString("config")
	if len(configPath) > 0 {
		yamlBytes, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error(err)
			return nil, nil, xerrors.Errorf("failed to read config file %q: %w", configPath, err)
		}

		serverConfig, err := commons.NewConfigFromYAML(yamlBytes)
		if err != nil {
			logger.Error(err)
			return nil, nil, err
		}

		config = serverConfig
	} else {
		envConfig, err := commons.NewConfigFromENV()
		if err != nil {
			logger.Error(err)
			return nil, nil, err
		}

		config = envConfig
	}

	// prioritize command-line flag over config files
	flags := command.Flags()

	if getBoolFlag(command, "debug") {
		config.Debug = true
	}

	if getBoolFlag(command, "profile") {
		config.Profile = true
	}

	if flags.Changed("port") {
		config.ServicePort, _ = flags.GetInt("port")
	}

	if flags.Changed("log") {
		config.LogPath, _ = flags.GetString("log")
	}

	if flags.Changed("cache_root") {
		config.CacheRootPath, _ = flags.GetString("cache_root")
	}

	if flags.Changed("cache_size_max") {
		config.CacheSizeMax, _ = flags.GetInt64("cache_size_max")
	}

	if flags.Changed("cache_file_size_max") {
		config.CacheFileSizeMax, _ = flags.GetInt64("cache_file_size_max")
	}

	if flags.Changed("pre_cache_size") {
		config.PreCacheSize, _ = flags.GetInt64("pre_cache_size")
	}

	if flags.Changed("prefetch_workers") {
		config.PrefetchWorkers, _ = flags.GetInt("prefetch_workers")
	}

	if flags.Changed("license_server_url") {
		config.LicenseServerURL, _ = flags.GetString("license_server_url")
	}

	if flags.Changed("session_timeout") {
		config.SessionTimeout, _ = flags.GetDuration("session_timeout")
	}

	if flags.Changed("profile_port") {
		config.ProfileServicePort, _ = flags.GetInt("profile_port")
	}

	if flags.Changed("prometheus_exporter_port") {
		config.PrometheusExporterPort, _ = flags.GetInt("prometheus_exporter_port")
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	err := config.Validate()
	if err != nil {
		logger.Error(err)
		return nil, nil, err
	}

	var logWriter io.WriteCloser
	logFilePath := config.GetLogFilePath()
	if len(logFilePath) == 0 {
		log.SetOutput(os.Stderr)
	} else {
		logWriter = getLogWriter(logFilePath)

		// use multi output - to output to file and stderr
		mw := io.MultiWriter(os.Stderr, logWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %s", logFilePath)
	}

	return config, logWriter, nil
}

// GetClientFlags returns the endpoint and the operation timeout
func GetClientFlags(command *cobra.Command) (string, time.Duration) {
	endpoint, err := command.Flags().GetString("endpoint")
	if err != nil || len(endpoint) == 0 {
		endpoint = commons.ServiceEndpointDefault
	}

	timeout, err := command.Flags().GetDuration("timeout")
	if err != nil {
		timeout = 0
	}

	return endpoint, timeout
}

// PrintVersion prints the build information
func PrintVersion(command *cobra.Command) error {
	info, err := commons.GetVersionJSON()
	if err != nil {
		return err
	}

	fmt.Fprintln(command.OutOrStdout(), info)
	return nil
}

func getLogWriter(logPath string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}
