package service

import (
	"net/http"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/player"
)

// PlayerServerConfig is a configuration for PlayerServer
type PlayerServerConfig struct {
	CacheRootPath      string
	CacheSizeMax       int64
	CacheFileSizeMax   int64
	PreCacheSize       int64
	PrefetchWorkers    int
	LicenseServerURL   string
	UserAgent          string
	SessionTimeout     time.Duration
	StallCheckInterval time.Duration

	HTTPClient *http.Client
}

// NewPlayerServerConfig creates PlayerServerConfig from service config
func NewPlayerServerConfig(config *commons.Config) *PlayerServerConfig {
	return &PlayerServerConfig{
		CacheRootPath:      config.CacheRootPath,
		CacheSizeMax:       config.CacheSizeMax,
		CacheFileSizeMax:   config.CacheFileSizeMax,
		PreCacheSize:       config.PreCacheSize,
		PrefetchWorkers:    config.PrefetchWorkers,
		LicenseServerURL:   config.LicenseServerURL,
		UserAgent:          config.UserAgent,
		SessionTimeout:     config.SessionTimeout,
		StallCheckInterval: config.StallCheckInterval,
		HTTPClient:         http.DefaultClient,
	}
}

// GetCacheBudget returns the default cache budget
func (config *PlayerServerConfig) GetCacheBudget() cache.Budget {
	return cache.Budget{
		MaxTotalBytes:   config.CacheSizeMax,
		MaxPerFileBytes: config.CacheFileSizeMax,
	}
}

// makeSessionConfig makes the config shared by all sessions
func (config *PlayerServerConfig) makeSessionConfig() *player.SessionConfig {
	sessionConfig := player.NewDefaultSessionConfig()
	sessionConfig.CacheDirectory = config.CacheRootPath
	sessionConfig.CacheBudget = config.GetCacheBudget()

	if config.HTTPClient != nil {
		sessionConfig.HTTPClient = config.HTTPClient
	}

	if len(config.UserAgent) > 0 {
		sessionConfig.UserAgent = config.UserAgent
	}

	if config.StallCheckInterval > 0 {
		sessionConfig.StallCheckInterval = config.StallCheckInterval
	}

	return sessionConfig
}
