// Package playertest provides an Engine for tests of packages built on player sessions.
package playertest

import (
	"sync"

	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/player"
)

// Engine reports ready on Load and plays instantly
type Engine struct {
	mutex sync.Mutex

	sources     []player.Source
	rate        float64
	positionMs  int64
	durationMs  int64
	volume      float64
	fastForward bool
	closed      bool

	notifications chan player.Notification
}

// NewEngine creates a new Engine of a 60s video
func NewEngine() *Engine {
	return &Engine{
		durationMs:    60000,
		notifications: make(chan player.Notification, 64),
	}
}

// NewFactory returns an EngineFactory and the engines it created, in order
func NewFactory() (player.EngineFactory, func() []*Engine) {
	mutex := sync.Mutex{}
	engines := []*Engine{}

	factory := func() (player.Engine, error) {
		mutex.Lock()
		defer mutex.Unlock()

		engine := NewEngine()
		engines = append(engines, engine)
		return engine, nil
	}

	created := func() []*Engine {
		mutex.Lock()
		defer mutex.Unlock()

		out := make([]*Engine, len(engines))
		copy(out, engines)
		return out
	}

	return factory, created
}

// Notify sends a notification to the session
func (engine *Engine) Notify(notificationType player.NotificationType) {
	engine.notifications <- player.Notification{Type: notificationType}
}

// SetFastForward allows speeds above 1
func (engine *Engine) SetFastForward(fastForward bool) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.fastForward = fastForward
}

// Sources returns the loaded sources
func (engine *Engine) Sources() []player.Source {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	out := make([]player.Source, len(engine.sources))
	copy(out, engine.sources)
	return out
}

// IsClosed checks if the session closed the engine
func (engine *Engine) IsClosed() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.closed
}

func (engine *Engine) Load(source player.Source) error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	engine.sources = append(engine.sources, source)

	go engine.Notify(player.NotificationStatusReady)
	return nil
}

func (engine *Engine) Play(rate float64) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.rate = rate
}

func (engine *Engine) Pause() {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.rate = 0
}

func (engine *Engine) Seek(positionMs int64) <-chan error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.positionMs = positionMs

	result := make(chan error, 1)
	result <- nil
	return result
}

func (engine *Engine) SetVolume(volume float64) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.volume = volume
}

func (engine *Engine) Rate() float64 {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.rate
}

func (engine *Engine) PositionMs() int64 {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.positionMs
}

func (engine *Engine) DurationMs() int64 {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.durationMs
}

func (engine *Engine) BufferedRanges() []event.Range {
	return []event.Range{{StartMs: 0, EndMs: 10000}}
}

func (engine *Engine) PresentationSize() (int, int) {
	return 1280, 720
}

func (engine *Engine) HasVideo() bool {
	return true
}

func (engine *Engine) IsLikelyToKeepUp() bool {
	return true
}

func (engine *Engine) CanPlayFastForward() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.fastForward
}

func (engine *Engine) CanPlaySlowForward() bool {
	return true
}

func (engine *Engine) SetForwardEndTime(positionMs int64) {}

func (engine *Engine) SetPreferredPeakBitrate(bitrate float64) {}

func (engine *Engine) SetMaxResolution(width int, height int) {}

func (engine *Engine) AudioTracks() []player.AudioTrack {
	return []player.AudioTrack{{Name: "English", Index: 0, Language: "en"}}
}

func (engine *Engine) SelectAudioTrack(track player.AudioTrack) error {
	return nil
}

func (engine *Engine) Notifications() <-chan player.Notification {
	return engine.notifications
}

func (engine *Engine) Close() error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.closed = true
	return nil
}
