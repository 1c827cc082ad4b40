package api

import (
	"encoding/json"

	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/types/known/structpb"
)

// Empty is an empty request or response
type Empty struct{}

// SessionRequest addresses a session
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// CreateResponse returns the id of a created session
type CreateResponse struct {
	SessionID string `json:"session_id"`
}

// Asset describes a media source to play
type Asset struct {
	Source               string            `json:"source"`
	Key                  string            `json:"key,omitempty"`
	Headers              map[string]string `json:"headers,omitempty"`
	CertificateURL       string            `json:"certificate_url,omitempty"`
	LicenseURL           string            `json:"license_url,omitempty"`
	UseCache             bool              `json:"use_cache,omitempty"`
	CacheKey             string            `json:"cache_key,omitempty"`
	MaxCacheSize         int64             `json:"max_cache_size,omitempty"`
	MaxCacheFileSize     int64             `json:"max_cache_file_size,omitempty"`
	OverriddenDurationMs int64             `json:"overridden_duration_ms,omitempty"`
}

// SetDataSourceRequest loads an asset into a session
type SetDataSourceRequest struct {
	SessionID string `json:"session_id"`
	Asset     Asset  `json:"asset"`
}

// SeekRequest seeks a session
type SeekRequest struct {
	SessionID  string `json:"session_id"`
	PositionMs int64  `json:"position_ms"`
}

// VolumeRequest sets the volume of a session
type VolumeRequest struct {
	SessionID string  `json:"session_id"`
	Volume    float64 `json:"volume"`
}

// SpeedRequest sets the speed of a session
type SpeedRequest struct {
	SessionID string  `json:"session_id"`
	Speed     float64 `json:"speed"`
}

// TrackParametersRequest constrains adaptive track selection
type TrackParametersRequest struct {
	SessionID  string  `json:"session_id"`
	MaxWidth   int     `json:"max_width"`
	MaxHeight  int     `json:"max_height"`
	MaxBitrate float64 `json:"max_bitrate"`
}

// AudioTrackRequest selects an audio track
type AudioTrackRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Index     int    `json:"index"`
}

// LoopingRequest sets looping
type LoopingRequest struct {
	SessionID string `json:"session_id"`
	Looping   bool   `json:"looping"`
}

// StatusResponse is a snapshot of a session
type StatusResponse struct {
	State          string        `json:"state"`
	PositionMs     int64         `json:"position_ms"`
	DurationMs     int64         `json:"duration_ms"`
	Volume         float64       `json:"volume"`
	Speed          float64       `json:"speed"`
	StallCount     int           `json:"stall_count"`
	BufferedRanges []event.Range `json:"buffered_ranges,omitempty"`
}

// PreCacheRequest starts a pre-cache job
type PreCacheRequest struct {
	URL              string            `json:"url"`
	Key              string            `json:"key,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	PreCacheSize     int64             `json:"pre_cache_size,omitempty"`
	MaxCacheSize     int64             `json:"max_cache_size,omitempty"`
	MaxCacheFileSize int64             `json:"max_cache_file_size,omitempty"`
}

// StopPreCacheRequest stops a pre-cache job
type StopPreCacheRequest struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
}

// StopPreCacheResponse tells if a running job was stopped
type StopPreCacheResponse struct {
	Stopped bool `json:"stopped"`
}

// ClearCacheResponse returns the number of removed entries
type ClearCacheResponse struct {
	Removed int `json:"removed"`
}

// CacheStatResponse describes the cache
type CacheStatResponse struct {
	Directory       string   `json:"directory"`
	Entries         int      `json:"entries"`
	TotalBytes      int64    `json:"total_bytes"`
	MaxTotalBytes   int64    `json:"max_total_bytes"`
	MaxPerFileBytes int64    `json:"max_per_file_bytes"`
	PreCaching      []string `json:"pre_caching,omitempty"`
}

// EventsRequest subscribes to the events of a session, or to service events if the session id is empty
type EventsRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// EncodeMessage converts a message to a protobuf Struct.
// Numbers travel as doubles, so integers must stay below 2^53.
func EncodeMessage(message interface{}) (*structpb.Struct, error) {
	jsonBytes, err := json.Marshal(message)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal message: %w", err)
	}

	fields := map[string]interface{}{}
	err = json.Unmarshal(jsonBytes, &fields)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal message fields: %w", err)
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, xerrors.Errorf("failed to make struct: %w", err)
	}
	return st, nil
}

// DecodeMessage converts a protobuf Struct to a message
func DecodeMessage(st *structpb.Struct, message interface{}) error {
	if st == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(st.AsMap())
	if err != nil {
		return xerrors.Errorf("failed to marshal struct: %w", err)
	}

	err = json.Unmarshal(jsonBytes, message)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}
