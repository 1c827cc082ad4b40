package player

import (
	"sync"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// SessionManager manages Sessions
type SessionManager struct {
	config        *SessionConfig
	engineFactory EngineFactory
	sessions      map[string]*Session // key: session id

	mutex sync.RWMutex
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(config *SessionConfig, engineFactory EngineFactory) *SessionManager {
	if config == nil {
		config = NewDefaultSessionConfig()
	}

	return &SessionManager{
		config:        config,
		engineFactory: engineFactory,
		sessions:      map[string]*Session{},
	}
}

// GetConfig returns the session config
func (manager *SessionManager) GetConfig() *SessionConfig {
	return manager.config
}

// NewSession creates a session with a new engine
func (manager *SessionManager) NewSession() (*Session, error) {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "SessionManager",
		"function": "NewSession",
	})

	defer utils.StackTraceFromPanic(logger)

	if manager.engineFactory == nil {
		return nil, commons.NewEngineUnavailableError()
	}

	engine, err := manager.engineFactory()
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, xerrors.Errorf("failed to create an engine: %w", err)
	}

	session := NewSession(manager.config, engine)

	manager.mutex.Lock()
	manager.sessions[session.GetID()] = session
	metrics.GaugeForSessions.Set(float64(len(manager.sessions)))
	manager.mutex.Unlock()

	logger.Infof("Created a new session %q", session.GetID())
	return session, nil
}

// GetSession returns the session
func (manager *SessionManager) GetSession(sessionID string) (*Session, error) {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	if session, ok := manager.sessions[sessionID]; ok {
		return session, nil
	}

	return nil, commons.NewSessionNotFoundError(sessionID)
}

// ReleaseSession disposes the session. No-op if there is none.
func (manager *SessionManager) ReleaseSession(sessionID string) {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "SessionManager",
		"function": "ReleaseSession",
	})

	defer utils.StackTraceFromPanic(logger)

	manager.mutex.Lock()
	session, ok := manager.sessions[sessionID]
	if ok {
		delete(manager.sessions, sessionID)
		metrics.GaugeForSessions.Set(float64(len(manager.sessions)))
	}
	manager.mutex.Unlock()

	if ok {
		logger.Infof("Releasing session %q", sessionID)
		session.Dispose()
	}
}

// ReleaseStaleSessions disposes sessions that are not playing and were not accessed within the timeout
func (manager *SessionManager) ReleaseStaleSessions(timeout time.Duration) int {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "SessionManager",
		"function": "ReleaseStaleSessions",
	})

	defer utils.StackTraceFromPanic(logger)

	if timeout <= 0 {
		return 0
	}

	now := time.Now()
	stale := []*Session{}

	manager.mutex.Lock()
	for sessionID, session := range manager.sessions {
		if session.IsRequestedPlaying() {
			continue
		}

		if now.Sub(session.GetLastAccessTime()) > timeout {
			stale = append(stale, session)
			delete(manager.sessions, sessionID)
		}
	}
	metrics.GaugeForSessions.Set(float64(len(manager.sessions)))
	manager.mutex.Unlock()

	for _, session := range stale {
		logger.Infof("Releasing stale session %q", session.GetID())
		session.Dispose()
	}

	return len(stale)
}

// GetTotalSessions returns the number of sessions
func (manager *SessionManager) GetTotalSessions() int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	return len(manager.sessions)
}

// Release disposes all sessions
func (manager *SessionManager) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "player",
		"struct":   "SessionManager",
		"function": "Release",
	})

	defer utils.StackTraceFromPanic(logger)

	manager.mutex.Lock()
	sessions := manager.sessions
	manager.sessions = map[string]*Session{}
	metrics.GaugeForSessions.Set(0)
	manager.mutex.Unlock()

	wg := sync.WaitGroup{}
	for _, session := range sessions {
		wg.Add(1)

		go func(sess *Session) {
			defer wg.Done()
			sess.Dispose()
		}(session)
	}

	wg.Wait()
}
