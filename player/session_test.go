package player

import (
	"sync"
	"testing"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

const (
	waitFor  = 2 * time.Second
	waitTick = 5 * time.Millisecond
)

type eventRecorder struct {
	events []event.Event
	mutex  sync.Mutex
}

func (recorder *eventRecorder) handle(e event.Event) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.events = append(recorder.events, e)
}

func (recorder *eventRecorder) find(eventType event.Type) (event.Event, bool) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()

	for _, e := range recorder.events {
		if e.Type == eventType {
			return e, true
		}
	}
	return event.Event{}, false
}

func (recorder *eventRecorder) count(eventType event.Type) int {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()

	count := 0
	for _, e := range recorder.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

func newTestSession(t *testing.T) (*Session, *fakeEngine, *eventRecorder) {
	engine := newFakeEngine()

	config := NewDefaultSessionConfig()
	config.StallCheckInterval = time.Hour
	config.CacheDirectory = t.TempDir()

	session := NewSession(config, engine)
	t.Cleanup(session.Dispose)

	recorder := &eventRecorder{}
	_, err := session.Subscribe(recorder.handle)
	require.NoError(t, err)

	return session, engine, recorder
}

func waitForState(t *testing.T, session *Session, state State) {
	require.Eventually(t, func() bool {
		return session.State() == state
	}, waitFor, waitTick, "expected state %s, got %s", state, session.State())
}

func loadAsset(t *testing.T, session *Session, engine *fakeEngine, asset Asset) {
	require.NoError(t, session.SetDataSource(asset))
	assert.Equal(t, StateLoading, session.State())

	engine.notify(NotificationStatusReady)
	waitForState(t, session, StateReady)
}

func startPlaying(t *testing.T, session *Session, engine *fakeEngine) {
	loadAsset(t, session, engine, Asset{Source: "/media/movie.mp4", Key: "movie"})
	session.Play()
	require.Equal(t, StatePlaying, session.State())
}

func TestSessionLifecycle(t *testing.T) {
	session, engine, recorder := newTestSession(t)

	loadAsset(t, session, engine, Asset{Source: "/media/movie.mp4", Key: "movie"})

	require.Eventually(t, func() bool {
		_, ok := recorder.find(event.TypeInitialized)
		return ok
	}, waitFor, waitTick)

	initialized, _ := recorder.find(event.TypeInitialized)
	assert.Equal(t, int64(60000), initialized.DurationMs)
	assert.Equal(t, 1920, initialized.Width)
	assert.Equal(t, 1080, initialized.Height)
	assert.Equal(t, "movie", initialized.Key)
	assert.Equal(t, session.GetID(), initialized.SessionID)

	session.Play()
	assert.Equal(t, StatePlaying, session.State())
	assert.True(t, session.IsRequestedPlaying())

	session.Pause()
	assert.Equal(t, StatePaused, session.State())
	assert.False(t, session.IsRequestedPlaying())

	session.Play()
	assert.Equal(t, StatePlaying, session.State())

	require.Eventually(t, func() bool {
		return recorder.count(event.TypePlay) == 2 && recorder.count(event.TypePause) == 1
	}, waitFor, waitTick)

	// initialized is reported once per asset
	engine.notify(NotificationStatusReady)
	engine.notify(NotificationPresentationSizeChanged)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, recorder.count(event.TypeInitialized))
}

func TestSessionPlayWhileLoading(t *testing.T) {
	session, engine, _ := newTestSession(t)

	require.NoError(t, session.SetDataSource(Asset{Source: "/media/movie.mp4"}))
	session.Play()
	assert.Equal(t, StateLoading, session.State())
	assert.True(t, session.IsRequestedPlaying())

	engine.notify(NotificationStatusReady)
	waitForState(t, session, StatePlaying)

	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, []float64{1}, engine.playRates)
	})
}

func TestSessionWaitsForPresentationSize(t *testing.T) {
	session, engine, _ := newTestSession(t)
	engine.set(func(engine *fakeEngine) {
		engine.width = 0
		engine.height = 0
	})

	require.NoError(t, session.SetDataSource(Asset{Source: "/media/movie.mp4"}))
	engine.notify(NotificationStatusReady)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateLoading, session.State())

	engine.set(func(engine *fakeEngine) {
		engine.width = 1280
		engine.height = 720
	})
	engine.notify(NotificationPresentationSizeChanged)
	waitForState(t, session, StateReady)
}

func TestSessionAudioOnlyIsReadyWithoutSize(t *testing.T) {
	session, engine, _ := newTestSession(t)
	engine.set(func(engine *fakeEngine) {
		engine.hasVideo = false
		engine.width = 0
		engine.height = 0
	})

	loadAsset(t, session, engine, Asset{Source: "/media/song.mp3"})
}

func TestSessionBufferEmptyThenFull(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)

	engine.notify(NotificationBufferEmpty)
	waitForState(t, session, StateBuffering)

	engine.notify(NotificationBufferFull)
	waitForState(t, session, StatePlaying)

	require.Eventually(t, func() bool {
		return recorder.count(event.TypeBufferingStart) == 1 && recorder.count(event.TypeBufferingEnd) == 1
	}, waitFor, waitTick)
	assert.Equal(t, 0, recorder.count(event.TypeError))
}

func setUpStall(engine *fakeEngine, bufferedEndMs int64) {
	engine.set(func(engine *fakeEngine) {
		engine.rate = 0
		engine.positionMs = 5000
		engine.ranges = []event.Range{{StartMs: 0, EndMs: bufferedEndMs}}
	})
}

func TestSessionStallFails(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)

	// 5s buffered ahead
	setUpStall(engine, 10000)

	for i := 0; i < commons.StallCheckMax; i++ {
		session.stallCheck()
	}
	assert.Equal(t, StateStalled, session.State())
	assert.Equal(t, commons.StallCheckMax, session.StallCount())

	session.stallCheck()
	assert.Equal(t, StateFailed, session.State())

	require.Eventually(t, func() bool {
		_, ok := recorder.find(event.TypeError)
		return ok
	}, waitFor, waitTick)

	errorEvent, _ := recorder.find(event.TypeError)
	assert.Equal(t, "PlaybackStalledError", errorEvent.Code)
	assert.Equal(t, "Failed to load video: playback stalled", errorEvent.Message)

	// checking stops after failure
	session.stallCheck()
	assert.Equal(t, StateFailed, session.State())
	assert.Equal(t, 1, recorder.count(event.TypeError))
}

func TestSessionStallRecovers(t *testing.T) {
	session, engine, _ := newTestSession(t)
	startPlaying(t, session, engine)

	setUpStall(engine, 10000)

	for i := 0; i < 58; i++ {
		session.stallCheck()
	}
	assert.Equal(t, StateStalled, session.State())
	assert.Equal(t, 58, session.StallCount())

	// 11s buffered ahead on check 59
	setUpStall(engine, 16000)
	session.stallCheck()

	assert.Equal(t, StatePlaying, session.State())
	assert.Equal(t, 0, session.StallCount())
}

func TestSessionStallRecoversWhenLikelyToKeepUp(t *testing.T) {
	session, engine, _ := newTestSession(t)
	startPlaying(t, session, engine)

	setUpStall(engine, 10000)
	session.stallCheck()
	assert.Equal(t, StateStalled, session.State())

	engine.set(func(engine *fakeEngine) {
		engine.likelyToKeepUp = true
	})
	session.stallCheck()
	assert.Equal(t, StatePlaying, session.State())
	assert.Equal(t, 0, session.StallCount())
}

func TestSessionStallRecoversWhenEngineResumes(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)

	setUpStall(engine, 10000)
	session.stallCheck()
	session.stallCheck()
	assert.Equal(t, StateStalled, session.State())

	engine.set(func(engine *fakeEngine) {
		engine.rate = 1
	})
	engine.notify(NotificationRateChanged)
	waitForState(t, session, StatePlaying)
	assert.Equal(t, 0, session.StallCount())

	require.Eventually(t, func() bool {
		return recorder.count(event.TypeBufferingStart) == 1 && recorder.count(event.TypeBufferingEnd) == 1
	}, waitFor, waitTick)

	// the stall check also notices the engine playing again
	setUpStall(engine, 10000)
	session.stallCheck()
	assert.Equal(t, StateStalled, session.State())

	engine.set(func(engine *fakeEngine) {
		engine.rate = 1
	})
	session.stallCheck()
	assert.Equal(t, StatePlaying, session.State())
	assert.Equal(t, 0, session.StallCount())
}

func TestSessionStallCheckNeedsPlayIntent(t *testing.T) {
	session, engine, _ := newTestSession(t)
	startPlaying(t, session, engine)

	session.Pause()
	setUpStall(engine, 10000)

	for i := 0; i < 100; i++ {
		session.stallCheck()
	}
	assert.Equal(t, StatePaused, session.State())
	assert.Equal(t, 0, session.StallCount())

	// position 0 is not a stall
	session.Play()
	engine.set(func(engine *fakeEngine) {
		engine.rate = 0
		engine.positionMs = 0
	})
	session.stallCheck()
	assert.Equal(t, 0, session.StallCount())
}

func TestSessionClipsBufferedRanges(t *testing.T) {
	session, engine, recorder := newTestSession(t)

	loadAsset(t, session, engine, Asset{Source: "/media/movie.mp4", OverriddenDurationMs: 10000})

	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, int64(10000), engine.forwardEndMs)
	})
	assert.Equal(t, int64(10000), session.DurationMs())

	engine.set(func(engine *fakeEngine) {
		engine.ranges = []event.Range{{StartMs: 0, EndMs: 5000}, {StartMs: 8000, EndMs: 12000}}
	})
	engine.notify(NotificationLoadedRangesChanged)

	require.Eventually(t, func() bool {
		_, ok := recorder.find(event.TypeBufferingUpdate)
		return ok
	}, waitFor, waitTick)

	update, _ := recorder.find(event.TypeBufferingUpdate)
	assert.Equal(t, []event.Range{{StartMs: 0, EndMs: 5000}, {StartMs: 8000, EndMs: 10000}}, update.Ranges)
	assert.Equal(t, update.Ranges, session.GetBufferedRanges())

	initialized, _ := recorder.find(event.TypeInitialized)
	assert.Equal(t, int64(10000), initialized.DurationMs)
}

func TestSessionSetSpeed(t *testing.T) {
	session, engine, _ := newTestSession(t)
	startPlaying(t, session, engine)

	err := session.SetSpeed(1.5)
	assert.True(t, commons.IsUnsupportedDirectionError(err))

	err = session.SetSpeed(0.5)
	assert.True(t, commons.IsUnsupportedDirectionError(err))

	err = session.SetSpeed(2.5)
	assert.True(t, commons.IsUnsupportedSpeedError(err))

	err = session.SetSpeed(-1)
	assert.True(t, commons.IsUnsupportedSpeedError(err))
	assert.Equal(t, 1.0, session.GetSpeed())

	engine.set(func(engine *fakeEngine) {
		engine.fastForward = true
		engine.slowForward = true
	})

	err = session.SetSpeed(2.5)
	assert.True(t, commons.IsUnsupportedSpeedError(err))

	require.NoError(t, session.SetSpeed(1.5))
	assert.Equal(t, 1.5, session.GetSpeed())

	require.NoError(t, session.SetSpeed(0))
	assert.Equal(t, 1.0, session.GetSpeed())

	require.NoError(t, session.SetSpeed(0.5))
	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, 0.5, engine.playRates[len(engine.playRates)-1])
	})
}

func TestSessionSeekRestoresPlay(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)

	playsBefore := 0
	engine.get(func(engine *fakeEngine) {
		playsBefore = len(engine.playRates)
	})

	session.SeekTo(3000)

	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, 1, engine.pauses)
		assert.Equal(t, []int64{3000}, engine.seeks)
	})

	require.Eventually(t, func() bool {
		plays := 0
		engine.get(func(engine *fakeEngine) {
			plays = len(engine.playRates)
		})
		return plays == playsBefore+1
	}, waitFor, waitTick)

	require.Eventually(t, func() bool {
		seek, ok := recorder.find(event.TypeSeek)
		return ok && seek.PositionMs == 3000
	}, waitFor, waitTick)

	// a paused session stays paused
	session.Pause()
	session.SeekTo(1000)
	time.Sleep(50 * time.Millisecond)
	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, playsBefore+1, len(engine.playRates))
	})
	assert.Equal(t, StatePaused, session.State())
}

func TestSessionCompletes(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)

	engine.notify(NotificationEndOfStream)
	waitForState(t, session, StateCompleted)
	assert.False(t, session.IsRequestedPlaying())

	require.Eventually(t, func() bool {
		return recorder.count(event.TypeCompleted) == 1
	}, waitFor, waitTick)

	// completed is terminal until a new source
	session.Play()
	assert.Equal(t, StateCompleted, session.State())
}

func TestSessionLoops(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)
	session.SetLooping(true)

	engine.notify(NotificationEndOfStream)

	require.Eventually(t, func() bool {
		seeks := []int64{}
		engine.get(func(engine *fakeEngine) {
			seeks = engine.seeks
		})
		return len(seeks) == 1 && seeks[0] == 0
	}, waitFor, waitTick)

	assert.Equal(t, StatePlaying, session.State())
	assert.Equal(t, 0, recorder.count(event.TypeCompleted))
}

func TestSessionDecodeError(t *testing.T) {
	session, engine, recorder := newTestSession(t)
	startPlaying(t, session, engine)

	engine.notifications <- Notification{Type: NotificationStatusFailed, Message: "broken stream"}
	waitForState(t, session, StateFailed)

	require.Eventually(t, func() bool {
		_, ok := recorder.find(event.TypeError)
		return ok
	}, waitFor, waitTick)

	errorEvent, _ := recorder.find(event.TypeError)
	assert.Equal(t, "PlaybackDecodeError", errorEvent.Code)
	assert.Equal(t, "Failed to load video: broken stream", errorEvent.Message)
}

func TestSessionLoadError(t *testing.T) {
	session, engine, _ := newTestSession(t)
	engine.set(func(engine *fakeEngine) {
		engine.loadErr = xerrors.Errorf("unsupported container")
	})

	err := session.SetDataSource(Asset{Source: "/media/movie.mkv"})
	assert.True(t, commons.IsPlaybackDecodeError(err))
	assert.Equal(t, StateFailed, session.State())
}

func TestSessionNewSourceResets(t *testing.T) {
	session, engine, _ := newTestSession(t)
	startPlaying(t, session, engine)

	setUpStall(engine, 10000)
	for i := 0; i <= commons.StallCheckMax; i++ {
		session.stallCheck()
	}
	require.Equal(t, StateFailed, session.State())

	require.NoError(t, session.SetDataSource(Asset{Source: "/media/other.mp4"}))
	assert.Equal(t, StateLoading, session.State())
	assert.Equal(t, 0, session.StallCount())
	assert.Empty(t, session.GetBufferedRanges())
	assert.False(t, session.IsRequestedPlaying())
}

func TestSessionResolvesSources(t *testing.T) {
	session, engine, _ := newTestSession(t)
	t.Cleanup(func() {
		cache.Release(session.config.CacheDirectory)
	})

	require.NoError(t, session.SetDataSource(Asset{Source: "/media/movie.mp4"}))
	require.NoError(t, session.SetDataSource(Asset{
		Source: "https://example.com/movie.mp4",
		Cache:  &CacheConfig{Enabled: true, CacheKey: "movie"},
	}))
	require.NoError(t, session.SetDataSource(Asset{
		Source: "https://example.com/protected.m3u8",
		Drm:    &DrmConfig{CertificateURL: "https://example.com/cert.der"},
	}))

	engine.get(func(engine *fakeEngine) {
		require.Len(t, engine.loaded, 3)

		assert.NotNil(t, engine.loaded[0].Factory)
		assert.Nil(t, engine.loaded[0].KeyLoader)

		spec := engine.loaded[1].Factory.GetSpec()
		assert.Equal(t, "movie", spec.GetKey())
		assert.Nil(t, engine.loaded[1].KeyLoader)

		assert.NotNil(t, engine.loaded[2].KeyLoader)
		assert.Equal(t, commons.LicenseServerURLDefault, engine.loaded[2].KeyLoader.GetLicenseClient().GetLicenseURL())
	})

	// the cached source acquired the store
	store, err := cache.Acquire(session.config.CacheDirectory, cache.Budget{MaxTotalBytes: 1})
	require.NoError(t, err)
	assert.Equal(t, commons.CacheSizeMaxDefault, store.GetBudget().MaxTotalBytes)
}

func TestSessionTrackControls(t *testing.T) {
	session, engine, _ := newTestSession(t)
	engine.set(func(engine *fakeEngine) {
		engine.audioTracks = []AudioTrack{{Name: "English", Index: 0}, {Name: "French", Index: 1}}
	})

	require.NoError(t, session.SetAudioTrack("French", 1))
	engine.get(func(engine *fakeEngine) {
		require.NotNil(t, engine.selectedTrack)
		assert.Equal(t, "French", engine.selectedTrack.Name)
	})

	err := session.SetAudioTrack("German", 2)
	assert.True(t, commons.IsAudioTrackNotFoundError(err))

	session.SetVolume(1.5)
	assert.Equal(t, 1.0, session.GetVolume())
	session.SetVolume(-0.5)
	assert.Equal(t, 0.0, session.GetVolume())

	session.SetTrackParameters(1280, 720, 2000000)
	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, 1280, engine.maxWidth)
		assert.Equal(t, 720, engine.maxHeight)
		assert.Equal(t, 2000000.0, engine.peakBitrate)
	})

	session.SetTrackParameters(0, 0, 0)
	engine.get(func(engine *fakeEngine) {
		assert.Equal(t, 0, engine.maxWidth)
		assert.Equal(t, 0, engine.maxHeight)
	})
}

func TestSessionDispose(t *testing.T) {
	session, engine, _ := newTestSession(t)
	startPlaying(t, session, engine)

	session.Dispose()
	session.Dispose()

	engine.get(func(engine *fakeEngine) {
		assert.True(t, engine.closed)
	})
	assert.Error(t, session.SetDataSource(Asset{Source: "/media/movie.mp4"}))
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateLoading))
	assert.True(t, CanTransition(StatePlaying, StateBuffering))
	assert.True(t, CanTransition(StateBuffering, StatePlaying))
	assert.True(t, CanTransition(StateStalled, StateFailed))
	assert.True(t, CanTransition(StateCompleted, StateIdle))
	assert.False(t, CanTransition(StateIdle, StatePlaying))
	assert.False(t, CanTransition(StateCompleted, StatePlaying))
	assert.False(t, CanTransition(StatePaused, StateCompleted))
}

func TestClipRanges(t *testing.T) {
	ranges := []event.Range{{StartMs: 0, EndMs: 5000}, {StartMs: 8000, EndMs: 12000}, {StartMs: 15000, EndMs: 20000}}

	assert.Equal(t, []event.Range{{StartMs: 0, EndMs: 5000}, {StartMs: 8000, EndMs: 10000}}, ClipRanges(ranges, 10000))
	assert.Equal(t, ranges, ClipRanges(ranges, 0))

	assert.Equal(t, int64(2000), BufferedAheadMs(ranges, 10000))
	assert.Equal(t, int64(4000), BufferedAheadMs(ranges, 1000))
	assert.Equal(t, int64(0), BufferedAheadMs(nil, 1000))
}
