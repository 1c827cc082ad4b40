package player

import (
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
)

func (session *Session) watchStalls() {
	defer session.waitGroup.Done()

	interval := session.config.StallCheckInterval
	if interval <= 0 {
		interval = commons.StallCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-session.terminateChan:
			return
		case <-ticker.C:
			session.stallCheck()
		}
	}
}

// stallCheck runs one stall detection round.
// It only applies while playback is requested, the engine rate is 0 and the position is
// inside the media. The session fails after more than StallCheckMax consecutive failed checks.
func (session *Session) stallCheck() {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "Session",
		"function": "stallCheck",
	})

	defer utils.StackTraceFromPanic(logger)

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed || !session.requestedPlaying {
		return
	}

	switch session.state {
	case StatePlaying, StateBuffering, StateStalled:
	default:
		return
	}

	if session.engine.Rate() != 0 {
		session.resumeFromStall()
		return
	}

	position := session.engine.PositionMs()
	duration := session.durationMs()
	if position <= 0 || (duration > 0 && position >= duration) {
		return
	}

	ahead := BufferedAheadMs(ClipRanges(session.engine.BufferedRanges(), session.forwardEndTimeMs), position)
	if session.engine.IsLikelyToKeepUp() || ahead > commons.StallBufferAheadMin.Milliseconds() {
		logger.Debugf("session %q recovered after %d checks", session.id, session.stallCount)
		session.stallCount = 0
		session.engine.Play(session.rate)
		if session.state == StateStalled {
			session.transition(StatePlaying)
			session.emit(event.Event{Type: event.TypeBufferingEnd})
		}
		return
	}

	session.stallCount++
	if session.stallCount > commons.StallCheckMax {
		session.fail(commons.NewPlaybackStalledError(session.stallCount))
		return
	}

	if session.state == StatePlaying {
		session.emit(event.Event{Type: event.TypeBufferingStart})
	}
	session.transition(StateStalled)
}

// resumeFromStall resets stall detection once the engine plays again.
// Must be called with the mutex held.
func (session *Session) resumeFromStall() {
	session.stallCount = 0
	if session.state == StateStalled {
		session.transition(StatePlaying)
		session.emit(event.Event{Type: event.TypeBufferingEnd})
	}
}
