package player

import (
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
)

func (session *Session) watchNotifications() {
	defer session.waitGroup.Done()

	notifications := session.engine.Notifications()
	for {
		select {
		case <-session.terminateChan:
			return
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			session.handleNotification(notification)
		}
	}
}

// handleNotification translates an engine notification into state changes and events
func (session *Session) handleNotification(notification Notification) {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "handleNotification",
	})

	defer utils.StackTraceFromPanic(logger)

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed || session.asset == nil {
		return
	}

	logger.Debugf("session %q received %s in %s", session.id, notification.Type, session.state)

	switch notification.Type {
	case NotificationStatusReady:
		session.engineReady = true
		session.onReadyToPlay()
	case NotificationPresentationSizeChanged:
		session.onReadyToPlay()
	case NotificationStatusFailed:
		session.fail(commons.NewPlaybackDecodeError(notification.Message))
	case NotificationLoadedRangesChanged:
		session.updateBufferedRanges()
	case NotificationBufferEmpty:
		session.emit(event.Event{Type: event.TypeBufferingStart})
		if session.state == StatePlaying {
			session.transition(StateBuffering)
		}
	case NotificationBufferFull, NotificationLikelyToKeepUp:
		session.emit(event.Event{Type: event.TypeBufferingEnd})
		if session.state == StateBuffering || session.state == StateStalled {
			session.stallCount = 0
			session.transition(StatePlaying)
			if session.requestedPlaying {
				session.engine.Play(session.rate)
			}
		}
	case NotificationEndOfStream:
		session.onEndOfStream()
	case NotificationRateChanged:
		// rate drops are picked up by the stall check
		if session.requestedPlaying && session.engine.Rate() != 0 {
			session.resumeFromStall()
		}
	}
}

// onReadyToPlay initializes the asset once the engine has data, a presentation size for video
// and a duration for finite media. Must be called with the mutex held.
func (session *Session) onReadyToPlay() {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "onReadyToPlay",
	})

	if !session.engineReady || session.initialized || session.state != StateLoading {
		return
	}

	width, height := session.engine.PresentationSize()
	if session.engine.HasVideo() && (width == 0 || height == 0) {
		logger.Debugf("session %q waits for the presentation size", session.id)
		return
	}

	duration := session.engine.DurationMs()
	if duration == 0 {
		logger.Debugf("session %q waits for the duration", session.id)
		return
	}

	override := session.asset.OverriddenDurationMs
	if override > 0 && (duration < 0 || duration > override) {
		session.forwardEndTimeMs = override
		session.engine.SetForwardEndTime(override)
	}

	session.initialized = true
	session.transition(StateReady)

	session.emit(event.Event{
		Type:       event.TypeInitialized,
		DurationMs: session.durationMs(),
		Width:      width,
		Height:     height,
	})

	if session.requestedPlaying {
		session.engine.Play(session.rate)
		session.transition(StatePlaying)
		session.emit(event.Event{Type: event.TypePlay})
	}
}

// updateBufferedRanges reports the engine's buffered ranges. Must be called with the mutex held.
func (session *Session) updateBufferedRanges() {
	session.bufferedRanges = ClipRanges(session.engine.BufferedRanges(), session.forwardEndTimeMs)

	ranges := make([]event.Range, len(session.bufferedRanges))
	copy(ranges, session.bufferedRanges)

	session.emit(event.Event{
		Type:   event.TypeBufferingUpdate,
		Ranges: ranges,
	})
}

// onEndOfStream completes or loops. Must be called with the mutex held.
func (session *Session) onEndOfStream() {
	if session.looping {
		if session.state == StatePlaying || session.state == StateBuffering {
			session.engine.Seek(0)
			session.engine.Play(session.rate)
		}
		return
	}

	if session.state == StateBuffering {
		session.transition(StatePlaying)
	}

	if session.transition(StateCompleted) {
		session.requestedPlaying = false
		session.engine.Pause()
		session.emit(event.Event{Type: event.TypeCompleted})
	}
}
