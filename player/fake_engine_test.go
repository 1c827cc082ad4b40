package player

import (
	"sync"

	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"golang.org/x/xerrors"
)

// fakeEngine is a scripted Engine
type fakeEngine struct {
	mutex sync.Mutex

	loaded         []Source
	playRates      []float64
	pauses         int
	seeks          []int64
	volume         float64
	rate           float64
	positionMs     int64
	durationMs     int64
	ranges         []event.Range
	width          int
	height         int
	hasVideo       bool
	likelyToKeepUp bool
	fastForward    bool
	slowForward    bool
	forwardEndMs   int64
	peakBitrate    float64
	maxWidth       int
	maxHeight      int
	audioTracks    []AudioTrack
	selectedTrack  *AudioTrack
	loadErr        error
	closed         bool

	notifications chan Notification
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		durationMs:    60000,
		width:         1920,
		height:        1080,
		hasVideo:      true,
		notifications: make(chan Notification, 64),
	}
}

func (engine *fakeEngine) notify(notificationType NotificationType) {
	engine.notifications <- Notification{Type: notificationType}
}

func (engine *fakeEngine) set(f func(engine *fakeEngine)) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	f(engine)
}

func (engine *fakeEngine) get(f func(engine *fakeEngine)) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	f(engine)
}

func (engine *fakeEngine) Load(source Source) error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.loadErr != nil {
		return engine.loadErr
	}
	engine.loaded = append(engine.loaded, source)
	return nil
}

func (engine *fakeEngine) Play(rate float64) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.playRates = append(engine.playRates, rate)
}

func (engine *fakeEngine) Pause() {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.pauses++
	engine.rate = 0
}

func (engine *fakeEngine) Seek(positionMs int64) <-chan error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.seeks = append(engine.seeks, positionMs)
	engine.positionMs = positionMs

	result := make(chan error, 1)
	result <- nil
	return result
}

func (engine *fakeEngine) SetVolume(volume float64) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.volume = volume
}

func (engine *fakeEngine) Rate() float64 {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.rate
}

func (engine *fakeEngine) PositionMs() int64 {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.positionMs
}

func (engine *fakeEngine) DurationMs() int64 {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.durationMs
}

func (engine *fakeEngine) BufferedRanges() []event.Range {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	ranges := make([]event.Range, len(engine.ranges))
	copy(ranges, engine.ranges)
	return ranges
}

func (engine *fakeEngine) PresentationSize() (int, int) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.width, engine.height
}

func (engine *fakeEngine) HasVideo() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.hasVideo
}

func (engine *fakeEngine) IsLikelyToKeepUp() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.likelyToKeepUp
}

func (engine *fakeEngine) CanPlayFastForward() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.fastForward
}

func (engine *fakeEngine) CanPlaySlowForward() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.slowForward
}

func (engine *fakeEngine) SetForwardEndTime(positionMs int64) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.forwardEndMs = positionMs
}

func (engine *fakeEngine) SetPreferredPeakBitrate(bitrate float64) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.peakBitrate = bitrate
}

func (engine *fakeEngine) SetMaxResolution(width int, height int) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.maxWidth = width
	engine.maxHeight = height
}

func (engine *fakeEngine) AudioTracks() []AudioTrack {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.audioTracks
}

func (engine *fakeEngine) SelectAudioTrack(track AudioTrack) error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	for _, t := range engine.audioTracks {
		if t == track {
			selected := track
			engine.selectedTrack = &selected
			return nil
		}
	}
	return xerrors.Errorf("unknown track")
}

func (engine *fakeEngine) Notifications() <-chan Notification {
	return engine.notifications
}

func (engine *fakeEngine) Close() error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.closed = true
	return nil
}
