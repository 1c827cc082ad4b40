package service

import (
	context "context"
	"sync"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/datasource"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/player"
	"github.com/BeamlakAschalew/flixquest-betterplayer/prefetch"
	"github.com/BeamlakAschalew/flixquest-betterplayer/service/api"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/grpc/metadata"
)

const (
	staleSessionCheckInterval time.Duration = 10 * time.Second
	eventStreamBufferSize     int           = 256
)

// PlayerServer implements the player API on top of sessions, the cache and pre-cache jobs
type PlayerServer struct {
	config *PlayerServerConfig

	sessionManager  *player.SessionManager
	upstream        datasource.Upstream
	prefetchManager *prefetch.Manager
	sink            *event.Sink // pre-cache events

	released      bool
	mutex         sync.Mutex
	terminateChan chan bool
	waitGroup     sync.WaitGroup
}

// NewPlayerServer creates a new PlayerServer. engineFactory may be nil if no media engine is attached,
// then only cache commands are served.
func NewPlayerServer(config *PlayerServerConfig, engineFactory player.EngineFactory) (*PlayerServer, error) {
	if config == nil {
		return nil, xerrors.Errorf("config is not given")
	}

	if config.PrefetchWorkers <= 0 {
		config.PrefetchWorkers = commons.PrefetchWorkersDefault
	}

	sessionConfig := config.makeSessionConfig()

	server := &PlayerServer{
		config:         config,
		sessionManager: player.NewSessionManager(sessionConfig, engineFactory),
		upstream:       datasource.NewHTTPUpstream(sessionConfig.HTTPClient, sessionConfig.UserAgent),
		sink:           event.NewSink(),
		terminateChan:  make(chan bool),
	}

	server.prefetchManager = prefetch.NewManager(config.CacheRootPath, config.GetCacheBudget(), server.upstream, prefetch.NewWorkerPool(config.PrefetchWorkers), server.onPreCacheProgress, server.onPreCacheCompleted)

	server.waitGroup.Add(1)
	go server.releaseStaleSessions()

	return server, nil
}

// Release releases all sessions and jobs. Safe to call many times.
func (server *PlayerServer) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "Release",
	})

	defer utils.StackTraceFromPanic(logger)

	server.mutex.Lock()
	if server.released {
		server.mutex.Unlock()
		return
	}
	server.released = true
	close(server.terminateChan)
	server.mutex.Unlock()

	logger.Info("Release")
	defer logger.Info("Released")

	server.waitGroup.Wait()

	server.sessionManager.Release()
	server.prefetchManager.Release()
	server.sink.Close()

	cache.Release(server.config.CacheRootPath)
}

func (server *PlayerServer) releaseStaleSessions() {
	defer server.waitGroup.Done()

	if server.config.SessionTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(staleSessionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-server.terminateChan:
			return
		case <-ticker.C:
			server.sessionManager.ReleaseStaleSessions(server.config.SessionTimeout)
		}
	}
}

// ReleaseAllSessions disposes all sessions, used when all controllers are gone
func (server *PlayerServer) ReleaseAllSessions() {
	server.sessionManager.Release()
}

// GetSessions returns the number of sessions
func (server *PlayerServer) GetSessions() int {
	return server.sessionManager.GetTotalSessions()
}

// GetPreCacheJobs returns the number of running pre-cache jobs
func (server *PlayerServer) GetPreCacheJobs() int {
	return len(server.prefetchManager.Running())
}

// PrintStat logs the server state
func (server *PlayerServer) PrintStat() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "PrintStat",
	})

	logger.Infof("Total %d sessions, %d pre-cache jobs", server.GetSessions(), server.GetPreCacheJobs())
}

func (server *PlayerServer) onPreCacheProgress(contentKey string, percent int) {
	server.sink.Emit(event.Event{
		Type:    event.TypePreCacheProgress,
		Key:     contentKey,
		Percent: percent,
	})
}

func (server *PlayerServer) onPreCacheCompleted(contentKey string, result prefetch.Result, err error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "onPreCacheCompleted",
	})

	e := event.Event{
		Type:  event.TypePreCacheCompleted,
		Key:   contentKey,
		Bytes: result.BytesCached,
		Code:  result.Outcome.String(),
	}

	if err != nil {
		logger.WithError(err).Warnf("Pre-caching %q failed", contentKey)
		e.Code = "PrefetchHardFailure"
		e.Message = err.Error()
	} else {
		logger.Infof("Pre-caching %q finished (%s), %s cached", contentKey, result.Outcome, humanize.Bytes(uint64(result.BytesCached)))
	}

	server.sink.Emit(e)
}

func (server *PlayerServer) getSession(sessionID string) (*player.Session, error) {
	return server.sessionManager.GetSession(sessionID)
}

func (server *PlayerServer) acquireCache() (*cache.Store, error) {
	return cache.Acquire(server.config.CacheRootPath, server.config.GetCacheBudget())
}

func (server *PlayerServer) makeAsset(asset *api.Asset) player.Asset {
	playerAsset := player.Asset{
		Source:               asset.Source,
		Key:                  asset.Key,
		Headers:              asset.Headers,
		OverriddenDurationMs: asset.OverriddenDurationMs,
	}

	if len(asset.CertificateURL) > 0 {
		licenseURL := asset.LicenseURL
		if len(licenseURL) == 0 {
			licenseURL = server.config.LicenseServerURL
		}

		playerAsset.Drm = &player.DrmConfig{
			CertificateURL: asset.CertificateURL,
			LicenseURL:     licenseURL,
		}
	}

	if asset.UseCache {
		cacheKey := asset.CacheKey
		if len(cacheKey) == 0 {
			cacheKey = asset.Key
		}

		playerAsset.Cache = &player.CacheConfig{
			Enabled:  true,
			CacheKey: cacheKey,
			Budget: cache.Budget{
				MaxTotalBytes:   asset.MaxCacheSize,
				MaxPerFileBytes: asset.MaxCacheFileSize,
			},
		}
	}

	return playerAsset
}

// Create creates a new playback session
func (server *PlayerServer) Create(ctx context.Context, request *api.Empty) (*api.CreateResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "Create",
	})

	defer utils.StackTraceFromPanic(logger)

	session, err := server.sessionManager.NewSession()
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, err
	}

	return &api.CreateResponse{
		SessionID: session.GetID(),
	}, nil
}

// SetDataSource loads an asset into a session
func (server *PlayerServer) SetDataSource(ctx context.Context, request *api.SetDataSourceRequest) (*api.Empty, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "SetDataSource",
	})

	defer utils.StackTraceFromPanic(logger)

	logger.Infof("SetDataSource request for session %q: %q", request.SessionID, request.Asset.Source)

	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	err = session.SetDataSource(server.makeAsset(&request.Asset))
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, err
	}

	return &api.Empty{}, nil
}

// Play starts playback
func (server *PlayerServer) Play(ctx context.Context, request *api.SessionRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	session.Play()
	return &api.Empty{}, nil
}

// Pause pauses playback
func (server *PlayerServer) Pause(ctx context.Context, request *api.SessionRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	session.Pause()
	return &api.Empty{}, nil
}

// SeekTo seeks
func (server *PlayerServer) SeekTo(ctx context.Context, request *api.SeekRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	session.SeekTo(request.PositionMs)
	return &api.Empty{}, nil
}

// SetVolume sets the volume
func (server *PlayerServer) SetVolume(ctx context.Context, request *api.VolumeRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	session.SetVolume(request.Volume)
	return &api.Empty{}, nil
}

// SetSpeed sets the playback speed
func (server *PlayerServer) SetSpeed(ctx context.Context, request *api.SpeedRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	err = session.SetSpeed(request.Speed)
	if err != nil {
		return nil, err
	}
	return &api.Empty{}, nil
}

// SetTrackParameters constrains adaptive track selection
func (server *PlayerServer) SetTrackParameters(ctx context.Context, request *api.TrackParametersRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	session.SetTrackParameters(request.MaxWidth, request.MaxHeight, request.MaxBitrate)
	return &api.Empty{}, nil
}

// SetAudioTrack selects an audio track
func (server *PlayerServer) SetAudioTrack(ctx context.Context, request *api.AudioTrackRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	err = session.SetAudioTrack(request.Name, request.Index)
	if err != nil {
		return nil, err
	}
	return &api.Empty{}, nil
}

// SetLooping sets looping
func (server *PlayerServer) SetLooping(ctx context.Context, request *api.LoopingRequest) (*api.Empty, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	session.SetLooping(request.Looping)
	return &api.Empty{}, nil
}

// GetStatus returns a snapshot of the session
func (server *PlayerServer) GetStatus(ctx context.Context, request *api.SessionRequest) (*api.StatusResponse, error) {
	session, err := server.getSession(request.SessionID)
	if err != nil {
		return nil, err
	}

	return &api.StatusResponse{
		State:          session.State().String(),
		PositionMs:     session.PositionMs(),
		DurationMs:     session.DurationMs(),
		Volume:         session.GetVolume(),
		Speed:          session.GetSpeed(),
		StallCount:     session.StallCount(),
		BufferedRanges: session.GetBufferedRanges(),
	}, nil
}

// Dispose releases the session. No-op if the session is already gone.
func (server *PlayerServer) Dispose(ctx context.Context, request *api.SessionRequest) (*api.Empty, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "Dispose",
	})

	defer utils.StackTraceFromPanic(logger)

	logger.Infof("Dispose request for session %q", request.SessionID)

	server.sessionManager.ReleaseSession(request.SessionID)
	return &api.Empty{}, nil
}

// PreCache starts a pre-cache job
func (server *PlayerServer) PreCache(ctx context.Context, request *api.PreCacheRequest) (*api.Empty, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "PreCache",
	})

	defer utils.StackTraceFromPanic(logger)

	targetLength := request.PreCacheSize
	if targetLength <= 0 {
		targetLength = server.config.PreCacheSize
	}

	logger.Infof("PreCache request for %q, %s", request.URL, humanize.Bytes(uint64(targetLength)))

	err := server.prefetchManager.PreCache(prefetch.Request{
		URL:          request.URL,
		ContentKey:   request.Key,
		Headers:      request.Headers,
		TargetLength: targetLength,
		Budget: cache.Budget{
			MaxTotalBytes:   request.MaxCacheSize,
			MaxPerFileBytes: request.MaxCacheFileSize,
		},
	})
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, err
	}

	return &api.Empty{}, nil
}

// StopPreCache stops a pre-cache job. No-op if there is none.
func (server *PlayerServer) StopPreCache(ctx context.Context, request *api.StopPreCacheRequest) (*api.StopPreCacheResponse, error) {
	key := request.Key
	if len(key) == 0 {
		key = request.URL
	}

	return &api.StopPreCacheResponse{
		Stopped: server.prefetchManager.StopPreCache(key),
	}, nil
}

// ClearCache removes all cache entries not in use
func (server *PlayerServer) ClearCache(ctx context.Context, request *api.Empty) (*api.ClearCacheResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "ClearCache",
	})

	defer utils.StackTraceFromPanic(logger)

	store, err := server.acquireCache()
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, err
	}

	removed, err := store.Clear()
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, err
	}

	logger.Infof("Removed %d cache entries", removed)
	return &api.ClearCacheResponse{
		Removed: removed,
	}, nil
}

// CacheStat returns the cache usage
func (server *PlayerServer) CacheStat(ctx context.Context, request *api.Empty) (*api.CacheStatResponse, error) {
	store, err := server.acquireCache()
	if err != nil {
		return nil, err
	}

	stat, err := store.Stat()
	if err != nil {
		return nil, err
	}

	return &api.CacheStatResponse{
		Directory:       stat.Directory,
		Entries:         stat.Entries,
		TotalBytes:      stat.TotalBytes,
		MaxTotalBytes:   stat.MaxTotalBytes,
		MaxPerFileBytes: stat.MaxPerFileBytes,
		PreCaching:      server.prefetchManager.Running(),
	}, nil
}

// Events streams the events of a session, or pre-cache events if no session is given.
// The stream ends when the session is disposed, the server is released or the client goes away.
func (server *PlayerServer) Events(request *api.EventsRequest, stream api.PlayerAPI_EventsServer) error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServer",
		"function": "Events",
	})

	defer utils.StackTraceFromPanic(logger)

	events := make(chan event.Event, eventStreamBufferSize)
	handler := func(e event.Event) {
		select {
		case events <- e:
		default:
			logger.Warnf("Dropping %s event, the stream for session %q is full", e.Type, request.SessionID)
		}
	}

	var unsubscribe func()
	var done <-chan bool
	var err error

	if len(request.SessionID) == 0 {
		unsubscribe, err = server.sink.Subscribe(handler)
	} else {
		session, getErr := server.getSession(request.SessionID)
		if getErr != nil {
			return getErr
		}

		done = session.Done()
		unsubscribe, err = session.Subscribe(handler)
	}

	if err != nil {
		return err
	}
	defer unsubscribe()

	// the header tells the client that the subscription is in place
	err = stream.SendHeader(metadata.MD{})
	if err != nil {
		return err
	}

	logger.Infof("Streaming events of session %q", request.SessionID)

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-server.terminateChan:
			return nil
		case <-done:
			return nil
		case e := <-events:
			message, err := api.EncodeMessage(e)
			if err != nil {
				return err
			}

			err = stream.Send(message)
			if err != nil {
				logger.WithError(err).Warnf("failed to send %s event", e.Type)
				return err
			}
		}
	}
}
