package player

import (
	"net/http"
	"sync"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/datasource"
	"github.com/BeamlakAschalew/flixquest-betterplayer/drm"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// SessionConfig holds the parameters of sessions
type SessionConfig struct {
	HTTPClient         *http.Client
	UserAgent          string
	CacheDirectory     string
	CacheBudget        cache.Budget
	StallCheckInterval time.Duration
}

// NewDefaultSessionConfig creates a default SessionConfig
func NewDefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		HTTPClient:     http.DefaultClient,
		UserAgent:      commons.UserAgentDefault,
		CacheDirectory: commons.GetDefaultCacheRootPath(),
		CacheBudget: cache.Budget{
			MaxTotalBytes:   commons.CacheSizeMaxDefault,
			MaxPerFileBytes: commons.CacheFileSizeMaxDefault,
		},
		StallCheckInterval: commons.StallCheckInterval,
	}
}

// Session is a playback session of one engine
type Session struct {
	id     string
	config *SessionConfig
	engine Engine
	sink   *event.Sink

	asset            *Asset
	generation       int // incremented by every new source
	state            State
	requestedPlaying bool
	engineReady      bool
	initialized      bool
	looping          bool
	stallCount       int
	bufferedRanges   []event.Range
	forwardEndTimeMs int64
	rate             float64
	volume           float64
	keyLoader        *drm.KeyLoader

	lastAccessTime time.Time
	disposed       bool
	mutex          sync.Mutex
	terminateChan  chan bool
	waitGroup      sync.WaitGroup
}

// NewSession creates a new session driving the engine
func NewSession(config *SessionConfig, engine Engine) *Session {
	if config == nil {
		config = NewDefaultSessionConfig()
	}

	session := &Session{
		id:             xid.New().String(),
		config:         config,
		engine:         engine,
		sink:           event.NewSink(),
		state:          StateIdle,
		rate:           1.0,
		volume:         1.0,
		lastAccessTime: time.Now(),
		terminateChan:  make(chan bool),
	}

	session.waitGroup.Add(2)
	go session.watchNotifications()
	go session.watchStalls()

	return session
}

// GetID returns the session id
func (session *Session) GetID() string {
	return session.id
}

// GetLastAccessTime returns the time of the last operation
func (session *Session) GetLastAccessTime() time.Time {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.lastAccessTime
}

// State returns the state
func (session *Session) State() State {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.state
}

// StallCount returns the number of consecutive failed stall checks
func (session *Session) StallCount() int {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.stallCount
}

// IsRequestedPlaying checks if the controller wants the media to play
func (session *Session) IsRequestedPlaying() bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.requestedPlaying
}

// GetBufferedRanges returns the last reported buffered ranges
func (session *Session) GetBufferedRanges() []event.Range {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	ranges := make([]event.Range, len(session.bufferedRanges))
	copy(ranges, session.bufferedRanges)
	return ranges
}

// Done returns a channel closed when the session is disposed
func (session *Session) Done() <-chan bool {
	return session.terminateChan
}

// Subscribe registers an event handler
func (session *Session) Subscribe(handler event.Handler) (func(), error) {
	return session.sink.Subscribe(handler)
}

// SetDataSource loads a new asset. The previous asset's state is cleared.
func (session *Session) SetDataSource(asset Asset) error {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "SetDataSource",
	})

	defer utils.StackTraceFromPanic(logger)

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed {
		return xerrors.Errorf("session %q is disposed", session.id)
	}

	session.lastAccessTime = time.Now()
	session.reset()

	source, err := session.resolveSource(&asset)
	if err != nil {
		session.fail(commons.NewPlaybackDecodeError(err.Error()))
		return err
	}

	session.asset = &asset
	session.transition(StateLoading)

	logger.Infof("Loading %q for session %q", asset.Source, session.id)

	err = session.engine.Load(source)
	if err != nil {
		loadErr := commons.NewPlaybackDecodeError(err.Error())
		session.fail(loadErr)
		return loadErr
	}

	return nil
}

// reset clears the state of the previous asset. Must be called with the mutex held.
func (session *Session) reset() {
	if session.keyLoader != nil {
		session.keyLoader.Cancel()
		session.keyLoader = nil
	}

	session.generation++
	session.asset = nil
	session.state = StateIdle
	session.requestedPlaying = false
	session.engineReady = false
	session.initialized = false
	session.stallCount = 0
	session.bufferedRanges = nil
	session.forwardEndTimeMs = 0
}

// resolveSource builds the engine source of the asset. Must be called with the mutex held.
func (session *Session) resolveSource(asset *Asset) (Source, error) {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "resolveSource",
	})

	if len(asset.Source) == 0 {
		return Source{}, xerrors.Errorf("source is empty")
	}

	source := Source{
		URL:     asset.Source,
		Headers: asset.Headers,
	}

	spec := datasource.DataSpec{
		URL:     asset.Source,
		Headers: asset.Headers,
		Length:  -1,
	}

	switch {
	case !datasource.IsNetworkURL(asset.Source):
		source.Factory = datasource.NewUpstreamFactory(datasource.NewFileUpstream(), spec)
	case asset.Cache != nil && asset.Cache.Enabled:
		spec.Key = asset.Cache.CacheKey
		upstream := datasource.NewHTTPUpstream(session.config.HTTPClient, session.config.UserAgent)

		budget := asset.Cache.Budget
		if budget.MaxTotalBytes <= 0 {
			budget = session.config.CacheBudget
		}

		store, err := cache.Acquire(session.config.CacheDirectory, budget)
		if err != nil {
			// caching is best-effort
			logger.WithError(err).Warnf("failed to acquire cache, playing %q without cache", asset.Source)
			source.Factory = datasource.NewUpstreamFactory(upstream, spec)
		} else {
			source.Factory = datasource.NewCachedFactory(datasource.NewCacheDataSource(store, upstream), spec)
		}
	default:
		upstream := datasource.NewHTTPUpstream(session.config.HTTPClient, session.config.UserAgent)
		source.Factory = datasource.NewUpstreamFactory(upstream, spec)
	}

	if asset.Drm != nil && len(asset.Drm.CertificateURL) > 0 {
		session.keyLoader = drm.NewKeyLoader(session.config.HTTPClient, asset.Drm.CertificateURL, asset.Drm.LicenseURL)
		source.KeyLoader = session.keyLoader
	}

	return source, nil
}

// Play starts or resumes playback. While loading, playback starts once ready.
func (session *Session) Play() {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed {
		return
	}

	session.lastAccessTime = time.Now()

	if session.state == StateIdle || session.state.IsTerminal() {
		return
	}

	session.requestedPlaying = true
	session.stallCount = 0

	switch session.state {
	case StateReady, StatePaused, StateStalled:
		session.engine.Play(session.rate)
		session.transition(StatePlaying)
		session.emit(event.Event{Type: event.TypePlay})
	case StatePlaying:
		session.engine.Play(session.rate)
	}
}

// Pause pauses playback
func (session *Session) Pause() {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed {
		return
	}

	session.lastAccessTime = time.Now()
	session.requestedPlaying = false

	if session.state == StateIdle || session.state.IsTerminal() {
		return
	}

	session.engine.Pause()

	switch session.state {
	case StatePlaying, StateBuffering, StateStalled:
		session.transition(StatePaused)
		session.emit(event.Event{Type: event.TypePause})
	}
}

// SeekTo seeks with zero tolerance. Playback pauses during the seek and resumes afterwards
// if it was playing.
func (session *Session) SeekTo(positionMs int64) {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "SeekTo",
	})

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed || session.state == StateIdle || session.state == StateFailed {
		return
	}

	session.lastAccessTime = time.Now()

	if positionMs < 0 {
		positionMs = 0
	}

	wasPlaying := session.requestedPlaying
	if wasPlaying {
		session.engine.Pause()
	}

	generation := session.generation
	result := session.engine.Seek(positionMs)
	session.emit(event.Event{Type: event.TypeSeek, PositionMs: positionMs})

	// the seek completes on an engine goroutine, never wait for it under the lock
	session.waitGroup.Add(1)
	go func() {
		defer session.waitGroup.Done()

		var err error
		select {
		case err = <-result:
		case <-session.terminateChan:
			return
		}

		if err != nil {
			logger.WithError(err).Warnf("seek to %d ms failed", positionMs)
		}

		session.mutex.Lock()
		defer session.mutex.Unlock()

		if session.disposed || session.generation != generation {
			return
		}

		if wasPlaying && session.requestedPlaying {
			session.engine.Play(session.rate)
		}
	}()
}

// SetVolume sets the volume, clamped to [0, 1]
func (session *Session) SetVolume(volume float64) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}

	session.volume = volume
	session.engine.SetVolume(volume)
}

// GetVolume returns the volume
func (session *Session) GetVolume() float64 {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.volume
}

// SetSpeed sets the playback speed. 0 means normal speed.
func (session *Session) SetSpeed(speed float64) error {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	switch {
	case speed == 0 || speed == 1:
		speed = 1
	case speed < 0 || speed > 2:
		return commons.NewUnsupportedSpeedError(speed)
	case speed > 1:
		if !session.engine.CanPlayFastForward() {
			return commons.NewUnsupportedDirectionError(speed)
		}
	default:
		if !session.engine.CanPlaySlowForward() {
			return commons.NewUnsupportedDirectionError(speed)
		}
	}

	session.rate = speed
	if session.requestedPlaying && (session.state == StatePlaying || session.state == StateBuffering) {
		session.engine.Play(speed)
	}
	return nil
}

// GetSpeed returns the playback speed
func (session *Session) GetSpeed() float64 {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.rate
}

// SetTrackParameters constrains adaptive track selection. Width and height of 0 clear the resolution cap.
func (session *Session) SetTrackParameters(maxWidth int, maxHeight int, maxBitrate float64) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if maxBitrate > 0 {
		session.engine.SetPreferredPeakBitrate(maxBitrate)
	}

	if maxWidth == 0 && maxHeight == 0 {
		session.engine.SetMaxResolution(0, 0)
		return
	}

	session.engine.SetMaxResolution(maxWidth, maxHeight)
}

// SetAudioTrack selects the audio track with the name and index
func (session *Session) SetAudioTrack(name string, index int) error {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	for _, track := range session.engine.AudioTracks() {
		if track.Name == name && track.Index == index {
			return session.engine.SelectAudioTrack(track)
		}
	}

	return commons.NewAudioTrackNotFoundError(name, index)
}

// SetLooping makes playback restart at the end
func (session *Session) SetLooping(looping bool) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.looping = looping
}

// PositionMs returns the playback position
func (session *Session) PositionMs() int64 {
	return session.engine.PositionMs()
}

// DurationMs returns the duration, the overridden duration if it is shorter
func (session *Session) DurationMs() int64 {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.durationMs()
}

func (session *Session) durationMs() int64 {
	if session.forwardEndTimeMs > 0 {
		return session.forwardEndTimeMs
	}
	return session.engine.DurationMs()
}

// Dispose stops the session and releases the engine. Safe to call many times.
func (session *Session) Dispose() {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "Dispose",
	})

	defer utils.StackTraceFromPanic(logger)

	session.mutex.Lock()
	if session.disposed {
		session.mutex.Unlock()
		return
	}

	session.disposed = true
	session.requestedPlaying = false
	if session.keyLoader != nil {
		session.keyLoader.Cancel()
		session.keyLoader = nil
	}
	close(session.terminateChan)
	session.mutex.Unlock()

	session.waitGroup.Wait()

	err := session.engine.Close()
	if err != nil {
		logger.WithError(err).Warnf("failed to close engine of session %q", session.id)
	}

	session.sink.Close()
	logger.Infof("Disposed session %q", session.id)
}

// transition moves to the state if the edge is allowed. Must be called with the mutex held.
func (session *Session) transition(to State) bool {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "transition",
	})

	if session.state == to {
		return true
	}

	if !CanTransition(session.state, to) {
		logger.Debugf("ignoring transition %s -> %s of session %q", session.state, to, session.id)
		return false
	}

	logger.Debugf("session %q: %s -> %s", session.id, session.state, to)
	session.state = to
	return true
}

// emit sends an event tagged with the session and asset. Must be called with the mutex held.
func (session *Session) emit(e event.Event) {
	e.SessionID = session.id
	if session.asset != nil {
		e.Key = session.asset.Key
	}
	session.sink.Emit(e)
}

// fail moves to Failed and reports the error. Must be called with the mutex held.
func (session *Session) fail(err error) {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "fail",
	})

	if session.state == StateFailed {
		return
	}

	logger.Errorf("session %q failed: %+v", session.id, err)

	session.transition(StateFailed)
	session.requestedPlaying = false

	code := "PlaybackDecodeError"
	if commons.IsPlaybackStalledError(err) {
		code = "PlaybackStalledError"
		metrics.CounterForPlaybackStalls.Inc()
	} else {
		metrics.CounterForPlaybackErrors.Inc()
	}

	session.emit(event.Event{
		Type:    event.TypeError,
		Code:    code,
		Message: err.Error(),
	})
}
