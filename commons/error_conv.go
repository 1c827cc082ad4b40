package commons

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorTypeDelimiter            string = ";"
	errorTypeSessionNotFound      string = "session_not_found"
	errorTypeEngineUnavailable    string = "engine_unavailable"
	errorTypeCacheInitError       string = "cache_init_error"
	errorTypeCacheClosed          string = "cache_closed"
	errorTypeCacheFull            string = "cache_full"
	errorTypeTransportError       string = "transport_error"
	errorTypePrefetchRejected     string = "prefetch_rejected"
	errorTypePrefetchHardFailure  string = "prefetch_hard_failure"
	errorTypeDrmCertificateError  string = "drm_certificate_error"
	errorTypeDrmServerError       string = "drm_server_error"
	errorTypePlaybackStalled      string = "playback_stalled"
	errorTypePlaybackDecodeError  string = "playback_decode_error"
	errorTypeUnsupportedSpeed     string = "unsupported_speed"
	errorTypeUnsupportedDirection string = "unsupported_direction"
	errorTypeAudioTrackNotFound   string = "audio_track_not_found"
	errorTypeInternalError        string = "internal_error"
)

func addErrorTypeToMessage(prefix string, details ...string) string {
	// the delimiter may not appear in details
	escaped := make([]string, len(details))
	for i, detail := range details {
		escaped[i] = strings.ReplaceAll(detail, errorTypeDelimiter, ",")
	}

	detailsStr := strings.Join(escaped, errorTypeDelimiter)
	return fmt.Sprintf("%s%s%s", prefix, errorTypeDelimiter, detailsStr)
}

func extractErrorInfoFromMessage(msg string) (string, []string, string) {
	msgarr := strings.Split(msg, errorTypeDelimiter)
	if len(msgarr) == 2 {
		return msgarr[0], []string{}, msgarr[1]
	} else if len(msgarr) >= 3 {
		return msgarr[0], msgarr[1 : len(msgarr)-1], msgarr[len(msgarr)-1]
	}
	return errorTypeInternalError, []string{}, msg
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ErrorToStatus converts error to grpc status error
func ErrorToStatus(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	var sessionNotFoundErr *SessionNotFoundError
	var cacheInitErr *CacheInitError
	var cacheClosedErr *CacheClosedError
	var cacheFullErr *CacheFullError
	var transportErr *TransportError
	var prefetchRejectedErr *PrefetchRejectedError
	var prefetchHardFailureErr *PrefetchHardFailureError
	var drmCertificateErr *DrmCertificateError
	var drmServerErr *DrmServerError
	var playbackStalledErr *PlaybackStalledError
	var playbackDecodeErr *PlaybackDecodeError
	var unsupportedSpeedErr *UnsupportedSpeedError
	var unsupportedDirectionErr *UnsupportedDirectionError
	var audioTrackNotFoundErr *AudioTrackNotFoundError

	switch {
	case errors.As(err, &sessionNotFoundErr):
		return status.Error(codes.NotFound, addErrorTypeToMessage(errorTypeSessionNotFound, sessionNotFoundErr.SessionID, sessionNotFoundErr.Error()))
	case IsEngineUnavailableError(err):
		return status.Error(codes.FailedPrecondition, addErrorTypeToMessage(errorTypeEngineUnavailable, err.Error()))
	case errors.As(err, &cacheInitErr):
		return status.Error(codes.FailedPrecondition, addErrorTypeToMessage(errorTypeCacheInitError, cacheInitErr.Directory, cacheInitErr.Error()))
	case errors.As(err, &cacheClosedErr):
		return status.Error(codes.FailedPrecondition, addErrorTypeToMessage(errorTypeCacheClosed, cacheClosedErr.Directory, cacheClosedErr.Error()))
	case errors.As(err, &cacheFullErr):
		return status.Error(codes.ResourceExhausted, addErrorTypeToMessage(errorTypeCacheFull, cacheFullErr.Key, strconv.FormatInt(cacheFullErr.Requested, 10), strconv.FormatInt(cacheFullErr.Available, 10), cacheFullErr.Error()))
	case errors.As(err, &prefetchRejectedErr):
		return status.Error(codes.InvalidArgument, addErrorTypeToMessage(errorTypePrefetchRejected, prefetchRejectedErr.URL, prefetchRejectedErr.Error()))
	case errors.As(err, &prefetchHardFailureErr):
		return status.Error(codes.Unavailable, addErrorTypeToMessage(errorTypePrefetchHardFailure, prefetchHardFailureErr.URL, prefetchHardFailureErr.Error()))
	case errors.As(err, &transportErr):
		return status.Error(codes.Unavailable, addErrorTypeToMessage(errorTypeTransportError, transportErr.URL, strconv.Itoa(transportErr.StatusCode), transportErr.Error()))
	case errors.As(err, &drmCertificateErr):
		return status.Error(codes.FailedPrecondition, addErrorTypeToMessage(errorTypeDrmCertificateError, drmCertificateErr.CertificateURL, drmCertificateErr.Error()))
	case errors.As(err, &drmServerErr):
		return status.Error(codes.Unavailable, addErrorTypeToMessage(errorTypeDrmServerError, drmServerErr.LicenseURL, drmServerErr.Reason, drmServerErr.Error()))
	case errors.As(err, &playbackStalledErr):
		return status.Error(codes.Aborted, addErrorTypeToMessage(errorTypePlaybackStalled, strconv.Itoa(playbackStalledErr.Checks), playbackStalledErr.Error()))
	case errors.As(err, &playbackDecodeErr):
		return status.Error(codes.Aborted, addErrorTypeToMessage(errorTypePlaybackDecodeError, playbackDecodeErr.Message, playbackDecodeErr.Error()))
	case errors.As(err, &unsupportedSpeedErr):
		return status.Error(codes.InvalidArgument, addErrorTypeToMessage(errorTypeUnsupportedSpeed, formatFloat(unsupportedSpeedErr.Speed), unsupportedSpeedErr.Error()))
	case errors.As(err, &unsupportedDirectionErr):
		return status.Error(codes.InvalidArgument, addErrorTypeToMessage(errorTypeUnsupportedDirection, formatFloat(unsupportedDirectionErr.Speed), unsupportedDirectionErr.Error()))
	case errors.As(err, &audioTrackNotFoundErr):
		return status.Error(codes.NotFound, addErrorTypeToMessage(errorTypeAudioTrackNotFound, audioTrackNotFoundErr.Name, strconv.Itoa(audioTrackNotFoundErr.Index), audioTrackNotFoundErr.Error()))
	}

	return status.Error(codes.Internal, addErrorTypeToMessage(errorTypeInternalError, err.Error()))
}

// StatusToError converts grpc status error to error
func StatusToError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st == nil {
		return err
	}

	errType, errContent, errMessage := extractErrorInfoFromMessage(st.Message())
	detail := func(i int) string {
		if i < len(errContent) {
			return errContent[i]
		}
		return "<unknown>"
	}

	switch errType {
	case errorTypeSessionNotFound:
		return NewSessionNotFoundError(detail(0))
	case errorTypeEngineUnavailable:
		return NewEngineUnavailableError()
	case errorTypeCacheInitError:
		return NewCacheInitError(detail(0), xerrors.Errorf("%s", errMessage))
	case errorTypeCacheClosed:
		return NewCacheClosedError(detail(0))
	case errorTypeCacheFull:
		requested, _ := strconv.ParseInt(detail(1), 10, 64)
		available, _ := strconv.ParseInt(detail(2), 10, 64)
		return NewCacheFullError(detail(0), requested, available)
	case errorTypeTransportError:
		statusCode, _ := strconv.Atoi(detail(1))
		return NewTransportError(detail(0), statusCode, xerrors.Errorf("%s", errMessage))
	case errorTypePrefetchRejected:
		return NewPrefetchRejectedError(detail(0))
	case errorTypePrefetchHardFailure:
		return NewPrefetchHardFailureError(detail(0), xerrors.Errorf("%s", errMessage))
	case errorTypeDrmCertificateError:
		return NewDrmCertificateError(detail(0), xerrors.Errorf("%s", errMessage))
	case errorTypeDrmServerError:
		return NewDrmServerError(detail(0), detail(1))
	case errorTypePlaybackStalled:
		checks, _ := strconv.Atoi(detail(0))
		return NewPlaybackStalledError(checks)
	case errorTypePlaybackDecodeError:
		return NewPlaybackDecodeError(detail(0))
	case errorTypeUnsupportedSpeed:
		speed, _ := strconv.ParseFloat(detail(0), 64)
		return NewUnsupportedSpeedError(speed)
	case errorTypeUnsupportedDirection:
		speed, _ := strconv.ParseFloat(detail(0), 64)
		return NewUnsupportedDirectionError(speed)
	case errorTypeAudioTrackNotFound:
		index, _ := strconv.Atoi(detail(1))
		return NewAudioTrackNotFoundError(detail(0), index)
	case errorTypeInternalError:
		return xerrors.Errorf("%s", errMessage)
	default:
		switch st.Code() {
		case codes.NotFound:
			return NewSessionNotFoundError("<unknown>")
		default:
			return xerrors.Errorf("%s", st.Message())
		}
	}
}

// IsDisconnectedError returns true if the service is unavailable
func IsDisconnectedError(err error) bool {
	if err == nil {
		return false
	}

	st, _ := status.FromError(err)
	if st != nil {
		if st.Code() == codes.Unavailable && !strings.Contains(st.Message(), errorTypeDelimiter) {
			return true
		}
	}

	return false
}
