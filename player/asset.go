package player

import (
	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
)

// DrmConfig configures the key exchange of a protected asset
type DrmConfig struct {
	CertificateURL string
	LicenseURL     string // empty means the default license server
}

// CacheConfig configures read-through caching of a network asset
type CacheConfig struct {
	Enabled  bool
	CacheKey string       // defaults to the source url
	Budget   cache.Budget // zero means the session default
}

// Asset is a media to play
type Asset struct {
	Source               string
	Key                  string // reported in events
	Headers              map[string]string
	Drm                  *DrmConfig
	Cache                *CacheConfig
	OverriddenDurationMs int64
}
