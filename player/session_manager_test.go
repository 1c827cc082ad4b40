package player

import (
	"testing"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func newTestSessionManager(t *testing.T, engineFactory EngineFactory) *SessionManager {
	config := NewDefaultSessionConfig()
	config.StallCheckInterval = time.Hour
	config.CacheDirectory = t.TempDir()

	manager := NewSessionManager(config, engineFactory)
	t.Cleanup(manager.Release)
	return manager
}

func TestSessionManagerWithoutEngine(t *testing.T) {
	manager := newTestSessionManager(t, nil)

	_, err := manager.NewSession()
	assert.True(t, commons.IsEngineUnavailableError(err))

	manager = newTestSessionManager(t, func() (Engine, error) {
		return nil, xerrors.Errorf("no display")
	})

	_, err = manager.NewSession()
	assert.Error(t, err)
	assert.Equal(t, 0, manager.GetTotalSessions())
}

func TestSessionManagerSessions(t *testing.T) {
	engines := []*fakeEngine{}
	manager := newTestSessionManager(t, func() (Engine, error) {
		engine := newFakeEngine()
		engines = append(engines, engine)
		return engine, nil
	})

	first, err := manager.NewSession()
	require.NoError(t, err)
	second, err := manager.NewSession()
	require.NoError(t, err)
	assert.NotEqual(t, first.GetID(), second.GetID())
	assert.Equal(t, 2, manager.GetTotalSessions())

	found, err := manager.GetSession(first.GetID())
	require.NoError(t, err)
	assert.Same(t, first, found)

	_, err = manager.GetSession("missing")
	assert.True(t, commons.IsSessionNotFoundError(err))

	manager.ReleaseSession(first.GetID())
	manager.ReleaseSession(first.GetID())
	assert.Equal(t, 1, manager.GetTotalSessions())

	_, err = manager.GetSession(first.GetID())
	assert.True(t, commons.IsSessionNotFoundError(err))

	engines[0].get(func(engine *fakeEngine) {
		assert.True(t, engine.closed)
	})

	manager.Release()
	assert.Equal(t, 0, manager.GetTotalSessions())
	engines[1].get(func(engine *fakeEngine) {
		assert.True(t, engine.closed)
	})
}

func TestSessionManagerReleasesStaleSessions(t *testing.T) {
	manager := newTestSessionManager(t, func() (Engine, error) {
		return newFakeEngine(), nil
	})

	idle, err := manager.NewSession()
	require.NoError(t, err)

	playing, err := manager.NewSession()
	require.NoError(t, err)

	// play intent while loading keeps the session alive
	require.NoError(t, playing.SetDataSource(Asset{Source: "/media/movie.mp4"}))
	playing.Play()

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, manager.ReleaseStaleSessions(time.Hour))
	assert.Equal(t, 1, manager.ReleaseStaleSessions(10*time.Millisecond))

	_, err = manager.GetSession(idle.GetID())
	assert.True(t, commons.IsSessionNotFoundError(err))

	_, err = manager.GetSession(playing.GetID())
	assert.NoError(t, err)

	select {
	case <-idle.Done():
	default:
		t.Fatal("stale session is not disposed")
	}
}
