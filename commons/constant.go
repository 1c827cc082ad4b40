package commons

import "time"

const (
	ServicePortDefault            int   = 12030
	CacheSizeMaxDefault           int64 = 100 * 1024 * 1024 // 100MB
	CacheFileSizeMaxDefault       int64 = 10 * 1024 * 1024  // 10MB
	PreCacheSizeDefault           int64 = 3 * 1024 * 1024   // 3MB
	PrefetchWorkersDefault        int   = 2
	ProfileServicePortDefault     int   = 12031
	PrometheusExporterPortDefault int   = 12032

	ServiceEndpointDefault  string = ":12030"
	LicenseServerURLDefault string = "https://fps.ezdrm.com/api/licenses/"
	UserAgentDefault        string = "betterplayer"

	DrmKeyScheme        string        = "skd"
	DrmAssetIDLength    int           = 36
	DrmLicenseTimeout   time.Duration = 30 * time.Second
	StallCheckInterval  time.Duration = 1 * time.Second
	StallCheckMax       int           = 60
	StallBufferAheadMin time.Duration = 10 * time.Second

	SessionTimeoutDefault time.Duration = 5 * time.Minute
)
