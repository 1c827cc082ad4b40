package player

import (
	"github.com/BeamlakAschalew/flixquest-betterplayer/datasource"
	"github.com/BeamlakAschalew/flixquest-betterplayer/drm"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
)

// Source is what the engine loads
type Source struct {
	URL       string
	Headers   map[string]string
	Factory   datasource.Factory // media bytes, through the cache if enabled
	KeyLoader *drm.KeyLoader     // nil for unprotected assets
}

// AudioTrack is an audible media option of the loaded asset
type AudioTrack struct {
	Name     string
	Index    int
	Language string
}

// NotificationType is the type of an engine notification
type NotificationType int

const (
	NotificationStatusReady NotificationType = iota
	NotificationStatusFailed
	NotificationPresentationSizeChanged
	NotificationRateChanged
	NotificationLoadedRangesChanged
	NotificationBufferEmpty
	NotificationBufferFull
	NotificationLikelyToKeepUp
	NotificationEndOfStream
)

// String returns string representation of the notification type
func (notificationType NotificationType) String() string {
	switch notificationType {
	case NotificationStatusReady:
		return "StatusReady"
	case NotificationStatusFailed:
		return "StatusFailed"
	case NotificationPresentationSizeChanged:
		return "PresentationSizeChanged"
	case NotificationRateChanged:
		return "RateChanged"
	case NotificationLoadedRangesChanged:
		return "LoadedRangesChanged"
	case NotificationBufferEmpty:
		return "BufferEmpty"
	case NotificationBufferFull:
		return "BufferFull"
	case NotificationLikelyToKeepUp:
		return "LikelyToKeepUp"
	case NotificationEndOfStream:
		return "EndOfStream"
	default:
		return "Unknown"
	}
}

// Notification is an asynchronous report of the engine
type Notification struct {
	Type    NotificationType
	Message string // for NotificationStatusFailed
}

// Engine is the media decoding engine a session drives.
// Notifications must be sent from the engine's own goroutines, never from inside an Engine call.
type Engine interface {
	Load(source Source) error
	Play(rate float64)
	Pause()
	// Seek seeks with zero tolerance. The channel receives the result once.
	Seek(positionMs int64) <-chan error
	SetVolume(volume float64)

	Rate() float64
	PositionMs() int64
	// DurationMs returns -1 for live streams and 0 while unknown
	DurationMs() int64
	BufferedRanges() []event.Range
	PresentationSize() (int, int)
	HasVideo() bool
	IsLikelyToKeepUp() bool
	CanPlayFastForward() bool
	CanPlaySlowForward() bool

	SetForwardEndTime(positionMs int64)
	SetPreferredPeakBitrate(bitrate float64)
	SetMaxResolution(width int, height int)

	AudioTracks() []AudioTrack
	SelectAudioTrack(track AudioTrack) error

	Notifications() <-chan Notification
	Close() error
}

// EngineFactory creates an engine for a new session
type EngineFactory func() (Engine, error)
