package event

// Type is the type of a playback event
type Type string

const (
	TypeInitialized     Type = "initialized"
	TypePlay            Type = "play"
	TypePause           Type = "pause"
	TypeBufferingStart  Type = "bufferingStart"
	TypeBufferingUpdate Type = "bufferingUpdate"
	TypeBufferingEnd    Type = "bufferingEnd"
	TypeCompleted       Type = "completed"
	TypeSeek            Type = "seek"
	TypeError           Type = "error"

	// pre-cache jobs are not bound to a session
	TypePreCacheProgress  Type = "preCacheProgress"
	TypePreCacheCompleted Type = "preCacheCompleted"
)

// Range is a buffered range in milliseconds
type Range struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Event is a playback state change reported to the controller
type Event struct {
	Type       Type    `json:"type"`
	SessionID  string  `json:"session_id,omitempty"`
	Key        string  `json:"key,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Ranges     []Range `json:"ranges,omitempty"`
	PositionMs int64   `json:"position_ms,omitempty"`
	Code       string  `json:"code,omitempty"`
	Message    string  `json:"message,omitempty"`
	Percent    int     `json:"percent,omitempty"`
	Bytes      int64   `json:"bytes,omitempty"`
}

// Handler receives events
type Handler func(event Event)
