package commons

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorToStatus(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  codes.Code
		check func(err error) bool
	}{
		{"session not found", NewSessionNotFoundError("s1"), codes.NotFound, IsSessionNotFoundError},
		{"engine unavailable", NewEngineUnavailableError(), codes.FailedPrecondition, IsEngineUnavailableError},
		{"cache full", NewCacheFullError("movie", 2048, 1024), codes.ResourceExhausted, IsCacheFullError},
		{"prefetch rejected", NewPrefetchRejectedError("file:///a.mp4"), codes.InvalidArgument, IsPrefetchRejectedError},
		{"prefetch hard failure", NewPrefetchHardFailureError("https://example.com/a.mp4", NewTransportError("https://example.com/a.mp4", 502, xerrors.Errorf("bad gateway"))), codes.Unavailable, IsPrefetchHardFailureError},
		{"drm server", NewDrmServerError("https://license.example.com/", "no license"), codes.Unavailable, IsDrmServerError},
		{"stalled", NewPlaybackStalledError(61), codes.Aborted, IsPlaybackStalledError},
		{"unsupported speed", NewUnsupportedSpeedError(2.5), codes.InvalidArgument, IsUnsupportedSpeedError},
		{"wrapped", xerrors.Errorf("failed to play: %w", NewUnsupportedDirectionError(2)), codes.InvalidArgument, IsUnsupportedDirectionError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			statusErr := ErrorToStatus(test.err)

			st, ok := status.FromError(statusErr)
			require.True(t, ok)
			assert.Equal(t, test.code, st.Code())

			assert.True(t, test.check(StatusToError(statusErr)))
			assert.False(t, IsDisconnectedError(statusErr))
		})
	}
}

func TestStatusToErrorDetails(t *testing.T) {
	err := StatusToError(ErrorToStatus(NewCacheFullError("a;b", 2048, 1024)))

	var cacheFullErr *CacheFullError
	require.ErrorAs(t, err, &cacheFullErr)
	assert.Equal(t, "a,b", cacheFullErr.Key)
	assert.Equal(t, int64(2048), cacheFullErr.Requested)
	assert.Equal(t, int64(1024), cacheFullErr.Available)

	err = StatusToError(ErrorToStatus(NewUnsupportedSpeedError(0.25)))

	var speedErr *UnsupportedSpeedError
	require.ErrorAs(t, err, &speedErr)
	assert.Equal(t, 0.25, speedErr.Speed)

	err = StatusToError(ErrorToStatus(xerrors.Errorf("something broke")))
	assert.EqualError(t, err, "something broke")
}

func TestIsDisconnectedError(t *testing.T) {
	assert.True(t, IsDisconnectedError(status.Error(codes.Unavailable, "connection refused")))
	assert.False(t, IsDisconnectedError(nil))
	assert.False(t, IsDisconnectedError(status.Error(codes.Internal, "connection refused")))
}
