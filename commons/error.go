package commons

import (
	"errors"
	"fmt"
)

// CacheInitError contains cache initialization error information
type CacheInitError struct {
	Directory string
	Err       error
}

// NewCacheInitError creates an error for cache init error
func NewCacheInitError(directory string, err error) error {
	return &CacheInitError{
		Directory: directory,
		Err:       err,
	}
}

// Error returns error message
func (err *CacheInitError) Error() string {
	return fmt.Sprintf("failed to initialize cache at '%s': %v", err.Directory, err.Err)
}

// Unwrap returns the cause
func (err *CacheInitError) Unwrap() error {
	return err.Err
}

// Is tests type of error
func (err *CacheInitError) Is(other error) bool {
	_, ok := other.(*CacheInitError)
	return ok
}

// ToString stringifies the object
func (err *CacheInitError) ToString() string {
	return "<CacheInitError>"
}

// IsCacheInitError evaluates if the given error is cache init error
func IsCacheInitError(err error) bool {
	return errors.Is(err, &CacheInitError{})
}

// CacheClosedError contains cache closed error information
type CacheClosedError struct {
	Directory string
}

// NewCacheClosedError creates an error for cache closed error
func NewCacheClosedError(directory string) error {
	return &CacheClosedError{
		Directory: directory,
	}
}

// Error returns error message
func (err *CacheClosedError) Error() string {
	return fmt.Sprintf("cache '%s' is already released", err.Directory)
}

// Is tests type of error
func (err *CacheClosedError) Is(other error) bool {
	_, ok := other.(*CacheClosedError)
	return ok
}

// ToString stringifies the object
func (err *CacheClosedError) ToString() string {
	return "<CacheClosedError>"
}

// IsCacheClosedError evaluates if the given error is cache closed error
func IsCacheClosedError(err error) bool {
	return errors.Is(err, &CacheClosedError{})
}

// CacheFullError is returned when no entry can be evicted to make room for a write
type CacheFullError struct {
	Key       string
	Requested int64
	Available int64
}

// NewCacheFullError creates an error for cache full error
func NewCacheFullError(key string, requested int64, available int64) error {
	return &CacheFullError{
		Key:       key,
		Requested: requested,
		Available: available,
	}
}

// Error returns error message
func (err *CacheFullError) Error() string {
	return fmt.Sprintf("cache is full, cannot store %d bytes for key '%s' (available %d)", err.Requested, err.Key, err.Available)
}

// Is tests type of error
func (err *CacheFullError) Is(other error) bool {
	_, ok := other.(*CacheFullError)
	return ok
}

// ToString stringifies the object
func (err *CacheFullError) ToString() string {
	return "<CacheFullError>"
}

// IsCacheFullError evaluates if the given error is cache full error
func IsCacheFullError(err error) bool {
	return errors.Is(err, &CacheFullError{})
}

// TransportError is a network level failure talking to an upstream source
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

// NewTransportError creates an error for transport error
func NewTransportError(url string, statusCode int, err error) error {
	return &TransportError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Error returns error message
func (err *TransportError) Error() string {
	if err.StatusCode > 0 {
		return fmt.Sprintf("transport error for '%s': status %d", err.URL, err.StatusCode)
	}
	return fmt.Sprintf("transport error for '%s': %v", err.URL, err.Err)
}

// Unwrap returns the cause
func (err *TransportError) Unwrap() error {
	return err.Err
}

// Is tests type of error
func (err *TransportError) Is(other error) bool {
	_, ok := other.(*TransportError)
	return ok
}

// ToString stringifies the object
func (err *TransportError) ToString() string {
	return "<TransportError>"
}

// IsTransportError evaluates if the given error is transport error
func IsTransportError(err error) bool {
	return errors.Is(err, &TransportError{})
}

// PrefetchRejectedError is returned when pre-caching is requested for a non-network source
type PrefetchRejectedError struct {
	URL string
}

// NewPrefetchRejectedError creates an error for prefetch rejected error
func NewPrefetchRejectedError(url string) error {
	return &PrefetchRejectedError{
		URL: url,
	}
}

// Error returns error message
func (err *PrefetchRejectedError) Error() string {
	return fmt.Sprintf("pre-caching is only possible for remote data sources, got '%s'", err.URL)
}

// Is tests type of error
func (err *PrefetchRejectedError) Is(other error) bool {
	_, ok := other.(*PrefetchRejectedError)
	return ok
}

// ToString stringifies the object
func (err *PrefetchRejectedError) ToString() string {
	return "<PrefetchRejectedError>"
}

// IsPrefetchRejectedError evaluates if the given error is prefetch rejected error
func IsPrefetchRejectedError(err error) bool {
	return errors.Is(err, &PrefetchRejectedError{})
}

// PrefetchHardFailureError is an unrecoverable pre-cache failure
type PrefetchHardFailureError struct {
	URL string
	Err error
}

// NewPrefetchHardFailureError creates an error for prefetch hard failure
func NewPrefetchHardFailureError(url string, err error) error {
	return &PrefetchHardFailureError{
		URL: url,
		Err: err,
	}
}

// Error returns error message
func (err *PrefetchHardFailureError) Error() string {
	return fmt.Sprintf("failed to pre-cache '%s': %v", err.URL, err.Err)
}

// Unwrap returns the cause
func (err *PrefetchHardFailureError) Unwrap() error {
	return err.Err
}

// Is tests type of error
func (err *PrefetchHardFailureError) Is(other error) bool {
	_, ok := other.(*PrefetchHardFailureError)
	return ok
}

// ToString stringifies the object
func (err *PrefetchHardFailureError) ToString() string {
	return "<PrefetchHardFailureError>"
}

// IsPrefetchHardFailureError evaluates if the given error is prefetch hard failure
func IsPrefetchHardFailureError(err error) bool {
	return errors.Is(err, &PrefetchHardFailureError{})
}

// DrmCertificateError is returned when the application certificate cannot be read
type DrmCertificateError struct {
	CertificateURL string
	Err            error
}

// NewDrmCertificateError creates an error for drm certificate error
func NewDrmCertificateError(certificateURL string, err error) error {
	return &DrmCertificateError{
		CertificateURL: certificateURL,
		Err:            err,
	}
}

// Error returns error message
func (err *DrmCertificateError) Error() string {
	return fmt.Sprintf("failed to read application certificate '%s': %v", err.CertificateURL, err.Err)
}

// Unwrap returns the cause
func (err *DrmCertificateError) Unwrap() error {
	return err.Err
}

// Is tests type of error
func (err *DrmCertificateError) Is(other error) bool {
	_, ok := other.(*DrmCertificateError)
	return ok
}

// ToString stringifies the object
func (err *DrmCertificateError) ToString() string {
	return "<DrmCertificateError>"
}

// IsDrmCertificateError evaluates if the given error is drm certificate error
func IsDrmCertificateError(err error) bool {
	return errors.Is(err, &DrmCertificateError{})
}

// DrmServerError is returned when the license server gives no usable key
type DrmServerError struct {
	LicenseURL string
	Reason     string
}

// NewDrmServerError creates an error for drm server error
func NewDrmServerError(licenseURL string, reason string) error {
	return &DrmServerError{
		LicenseURL: licenseURL,
		Reason:     reason,
	}
}

// Error returns error message
func (err *DrmServerError) Error() string {
	return fmt.Sprintf("bad license server response from '%s': %s", err.LicenseURL, err.Reason)
}

// Is tests type of error
func (err *DrmServerError) Is(other error) bool {
	_, ok := other.(*DrmServerError)
	return ok
}

// ToString stringifies the object
func (err *DrmServerError) ToString() string {
	return "<DrmServerError>"
}

// IsDrmServerError evaluates if the given error is drm server error
func IsDrmServerError(err error) bool {
	return errors.Is(err, &DrmServerError{})
}

// PlaybackStalledError is raised when playback makes no progress for too long
type PlaybackStalledError struct {
	Checks int
}

// NewPlaybackStalledError creates an error for playback stalled error
func NewPlaybackStalledError(checks int) error {
	return &PlaybackStalledError{
		Checks: checks,
	}
}

// Error returns error message
func (err *PlaybackStalledError) Error() string {
	return "Failed to load video: playback stalled"
}

// Is tests type of error
func (err *PlaybackStalledError) Is(other error) bool {
	_, ok := other.(*PlaybackStalledError)
	return ok
}

// ToString stringifies the object
func (err *PlaybackStalledError) ToString() string {
	return "<PlaybackStalledError>"
}

// IsPlaybackStalledError evaluates if the given error is playback stalled error
func IsPlaybackStalledError(err error) bool {
	return errors.Is(err, &PlaybackStalledError{})
}

// PlaybackDecodeError is an unrecoverable engine failure
type PlaybackDecodeError struct {
	Message string
}

// NewPlaybackDecodeError creates an error for playback decode error
func NewPlaybackDecodeError(message string) error {
	return &PlaybackDecodeError{
		Message: message,
	}
}

// Error returns error message
func (err *PlaybackDecodeError) Error() string {
	return fmt.Sprintf("Failed to load video: %s", err.Message)
}

// Is tests type of error
func (err *PlaybackDecodeError) Is(other error) bool {
	_, ok := other.(*PlaybackDecodeError)
	return ok
}

// ToString stringifies the object
func (err *PlaybackDecodeError) ToString() string {
	return "<PlaybackDecodeError>"
}

// IsPlaybackDecodeError evaluates if the given error is playback decode error
func IsPlaybackDecodeError(err error) bool {
	return errors.Is(err, &PlaybackDecodeError{})
}

// UnsupportedSpeedError is returned for speeds outside [0, 2]
type UnsupportedSpeedError struct {
	Speed float64
}

// NewUnsupportedSpeedError creates an error for unsupported speed error
func NewUnsupportedSpeedError(speed float64) error {
	return &UnsupportedSpeedError{
		Speed: speed,
	}
}

// Error returns error message
func (err *UnsupportedSpeedError) Error() string {
	return fmt.Sprintf("speed must be >= 0.0 and <= 2.0, got %.2f", err.Speed)
}

// Is tests type of error
func (err *UnsupportedSpeedError) Is(other error) bool {
	_, ok := other.(*UnsupportedSpeedError)
	return ok
}

// ToString stringifies the object
func (err *UnsupportedSpeedError) ToString() string {
	return "<UnsupportedSpeedError>"
}

// IsUnsupportedSpeedError evaluates if the given error is unsupported speed error
func IsUnsupportedSpeedError(err error) bool {
	return errors.Is(err, &UnsupportedSpeedError{})
}

// UnsupportedDirectionError is returned when the asset cannot play fast or slow forward
type UnsupportedDirectionError struct {
	Speed float64
}

// NewUnsupportedDirectionError creates an error for unsupported direction error
func NewUnsupportedDirectionError(speed float64) error {
	return &UnsupportedDirectionError{
		Speed: speed,
	}
}

// Error returns error message
func (err *UnsupportedDirectionError) Error() string {
	if err.Speed > 1 {
		return "this video cannot be played fast forward"
	}
	return "this video cannot be played slow forward"
}

// Is tests type of error
func (err *UnsupportedDirectionError) Is(other error) bool {
	_, ok := other.(*UnsupportedDirectionError)
	return ok
}

// ToString stringifies the object
func (err *UnsupportedDirectionError) ToString() string {
	return "<UnsupportedDirectionError>"
}

// IsUnsupportedDirectionError evaluates if the given error is unsupported direction error
func IsUnsupportedDirectionError(err error) bool {
	return errors.Is(err, &UnsupportedDirectionError{})
}

// AudioTrackNotFoundError contains audio track not found error information
type AudioTrackNotFoundError struct {
	Name  string
	Index int
}

// NewAudioTrackNotFoundError creates an error for audio track not found error
func NewAudioTrackNotFoundError(name string, index int) error {
	return &AudioTrackNotFoundError{
		Name:  name,
		Index: index,
	}
}

// Error returns error message
func (err *AudioTrackNotFoundError) Error() string {
	return fmt.Sprintf("audio track '%s' at index %d not found", err.Name, err.Index)
}

// Is tests type of error
func (err *AudioTrackNotFoundError) Is(other error) bool {
	_, ok := other.(*AudioTrackNotFoundError)
	return ok
}

// ToString stringifies the object
func (err *AudioTrackNotFoundError) ToString() string {
	return "<AudioTrackNotFoundError>"
}

// IsAudioTrackNotFoundError evaluates if the given error is audio track not found error
func IsAudioTrackNotFoundError(err error) bool {
	return errors.Is(err, &AudioTrackNotFoundError{})
}

// SessionNotFoundError contains session not found error information
type SessionNotFoundError struct {
	SessionID string
}

// NewSessionNotFoundError creates SessionNotFoundError struct
func NewSessionNotFoundError(sessionID string) error {
	return &SessionNotFoundError{
		SessionID: sessionID,
	}
}

// Error returns error message
func (err *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session '%s' not found", err.SessionID)
}

// Is tests type of error
func (err *SessionNotFoundError) Is(other error) bool {
	_, ok := other.(*SessionNotFoundError)
	return ok
}

// ToString stringifies the object
func (err *SessionNotFoundError) ToString() string {
	return "<SessionNotFoundError>"
}

// IsSessionNotFoundError evaluates if the given error is session not found error
func IsSessionNotFoundError(err error) bool {
	return errors.Is(err, &SessionNotFoundError{})
}

// EngineUnavailableError is returned when no media engine is attached to the service
type EngineUnavailableError struct{}

// NewEngineUnavailableError creates EngineUnavailableError struct
func NewEngineUnavailableError() error {
	return &EngineUnavailableError{}
}

// Error returns error message
func (err *EngineUnavailableError) Error() string {
	return "no media engine is attached"
}

// Is tests type of error
func (err *EngineUnavailableError) Is(other error) bool {
	_, ok := other.(*EngineUnavailableError)
	return ok
}

// ToString stringifies the object
func (err *EngineUnavailableError) ToString() string {
	return "<EngineUnavailableError>"
}

// IsEngineUnavailableError evaluates if the given error is engine unavailable error
func IsEngineUnavailableError(err error) bool {
	return errors.Is(err, &EngineUnavailableError{})
}
