package client

import (
	"context"
	"sync"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/service/api"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	operationTimeoutDefault time.Duration = 30 * time.Second
)

// PlayerServiceClient is a client of player service
type PlayerServiceClient struct {
	address          string // host:port or unix:///path
	operationTimeout time.Duration
	grpcConnection   *grpc.ClientConn
	apiClient        *api.PlayerAPIClient
	connected        bool
	mutex            sync.RWMutex
}

// PlayerSession is a remote playback session
type PlayerSession struct {
	id                  string
	playerServiceClient *PlayerServiceClient

	disposed bool
	mutex    sync.Mutex
}

// NewPlayerServiceClient creates a new player service client
func NewPlayerServiceClient(address string, operationTimeout time.Duration) *PlayerServiceClient {
	if operationTimeout <= 0 {
		operationTimeout = operationTimeoutDefault
	}

	return &PlayerServiceClient{
		address:          address,
		operationTimeout: operationTimeout,
		grpcConnection:   nil,
		connected:        false,
	}
}

// Connect connects to player service
func (client *PlayerServiceClient) Connect(options ...grpc.DialOption) error {
	logger := log.WithFields(log.Fields{
		"package":  "client",
		"struct":   "PlayerServiceClient",
		"function": "Connect",
	})

	defer utils.StackTraceFromPanic(logger)

	client.mutex.Lock()
	defer client.mutex.Unlock()

	client.connected = false

	scheme, addr, err := commons.ParsePlayerServiceEndpoint(client.address)
	if err != nil {
		return err
	}

	if scheme == "tcp" {
		// the daemon is local, skip name resolution
		addr = "passthrough:///" + addr
	}

	dialOptions := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	dialOptions = append(dialOptions, options...)

	conn, err := grpc.NewClient(addr, dialOptions...)
	if err != nil {
		grpcErr := xerrors.Errorf("failed to dial to %q: %w", client.address, err)
		logger.Errorf("%+v", grpcErr)
		return grpcErr
	}

	client.grpcConnection = conn
	client.apiClient = api.NewPlayerAPIClient(conn)
	client.connected = true
	return nil
}

// Disconnect disconnects connection from player service
func (client *PlayerServiceClient) Disconnect() {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	client.apiClient = nil

	if client.grpcConnection != nil {
		client.grpcConnection.Close()
		client.grpcConnection = nil
	}

	client.connected = false
}

// IsConnected checks if the client is connected
func (client *PlayerServiceClient) IsConnected() bool {
	client.mutex.RLock()
	defer client.mutex.RUnlock()

	return client.connected
}

func (client *PlayerServiceClient) getContextWithDeadline() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), client.operationTimeout)
}

// invoke calls a unary method and converts the error
func (client *PlayerServiceClient) invoke(method string, request interface{}, response interface{}) error {
	logger := log.WithFields(log.Fields{
		"package":  "client",
		"struct":   "PlayerServiceClient",
		"function": "invoke",
	})

	client.mutex.RLock()
	apiClient := client.apiClient
	client.mutex.RUnlock()

	if apiClient == nil {
		return xerrors.Errorf("not connected to %q", client.address)
	}

	ctx, cancel := client.getContextWithDeadline()
	defer cancel()

	err := apiClient.Invoke(ctx, method, request, response)
	if err != nil {
		if commons.IsDisconnectedError(err) {
			client.mutex.Lock()
			client.connected = false
			client.mutex.Unlock()
		}

		logger.Debugf("%s failed: %v", method, err)
		return commons.StatusToError(err)
	}

	return nil
}

// subscribe streams events to the handler until the returned function is called
func (client *PlayerServiceClient) subscribe(sessionID string, handler event.Handler) (func(), error) {
	logger := log.WithFields(log.Fields{
		"package":  "client",
		"struct":   "PlayerServiceClient",
		"function": "subscribe",
	})

	client.mutex.RLock()
	apiClient := client.apiClient
	client.mutex.RUnlock()

	if apiClient == nil {
		return nil, xerrors.Errorf("not connected to %q", client.address)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stream, err := apiClient.Events(ctx, &api.EventsRequest{SessionID: sessionID})
	if err != nil {
		cancel()
		return nil, commons.StatusToError(err)
	}

	waitGroup := sync.WaitGroup{}
	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()
		defer utils.StackTraceFromPanic(logger)

		for {
			e, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					logger.Debugf("event stream of session %q ended: %v", sessionID, err)
				}
				return
			}

			handler(e)
		}
	}()

	once := sync.Once{}
	return func() {
		once.Do(func() {
			cancel()
			waitGroup.Wait()
		})
	}, nil
}

// NewSession creates a new playback session
func (client *PlayerServiceClient) NewSession() (*PlayerSession, error) {
	response := api.CreateResponse{}
	err := client.invoke("Create", &api.Empty{}, &response)
	if err != nil {
		return nil, err
	}

	return &PlayerSession{
		id:                  response.SessionID,
		playerServiceClient: client,
	}, nil
}

// PreCache starts pre-caching a remote media
func (client *PlayerServiceClient) PreCache(request *api.PreCacheRequest) error {
	return client.invoke("PreCache", request, nil)
}

// StopPreCache stops pre-caching. The key defaults to the url.
func (client *PlayerServiceClient) StopPreCache(url string, key string) (bool, error) {
	response := api.StopPreCacheResponse{}
	err := client.invoke("StopPreCache", &api.StopPreCacheRequest{URL: url, Key: key}, &response)
	if err != nil {
		return false, err
	}
	return response.Stopped, nil
}

// ClearCache removes cache entries not in use
func (client *PlayerServiceClient) ClearCache() (int, error) {
	response := api.ClearCacheResponse{}
	err := client.invoke("ClearCache", &api.Empty{}, &response)
	if err != nil {
		return 0, err
	}
	return response.Removed, nil
}

// CacheStat returns the cache usage
func (client *PlayerServiceClient) CacheStat() (*api.CacheStatResponse, error) {
	response := api.CacheStatResponse{}
	err := client.invoke("CacheStat", &api.Empty{}, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// SubscribePreCacheEvents streams pre-cache progress and completion events
func (client *PlayerServiceClient) SubscribePreCacheEvents(handler event.Handler) (func(), error) {
	return client.subscribe("", handler)
}

// GetID returns the session id
func (session *PlayerSession) GetID() string {
	return session.id
}

// SetDataSource loads an asset
func (session *PlayerSession) SetDataSource(asset *api.Asset) error {
	return session.playerServiceClient.invoke("SetDataSource", &api.SetDataSourceRequest{
		SessionID: session.id,
		Asset:     *asset,
	}, nil)
}

// Play starts playback
func (session *PlayerSession) Play() error {
	return session.playerServiceClient.invoke("Play", &api.SessionRequest{SessionID: session.id}, nil)
}

// Pause pauses playback
func (session *PlayerSession) Pause() error {
	return session.playerServiceClient.invoke("Pause", &api.SessionRequest{SessionID: session.id}, nil)
}

// SeekTo seeks
func (session *PlayerSession) SeekTo(positionMs int64) error {
	return session.playerServiceClient.invoke("SeekTo", &api.SeekRequest{SessionID: session.id, PositionMs: positionMs}, nil)
}

// SetVolume sets the volume
func (session *PlayerSession) SetVolume(volume float64) error {
	return session.playerServiceClient.invoke("SetVolume", &api.VolumeRequest{SessionID: session.id, Volume: volume}, nil)
}

// SetSpeed sets the playback speed
func (session *PlayerSession) SetSpeed(speed float64) error {
	return session.playerServiceClient.invoke("SetSpeed", &api.SpeedRequest{SessionID: session.id, Speed: speed}, nil)
}

// SetTrackParameters constrains adaptive track selection
func (session *PlayerSession) SetTrackParameters(maxWidth int, maxHeight int, maxBitrate float64) error {
	return session.playerServiceClient.invoke("SetTrackParameters", &api.TrackParametersRequest{
		SessionID:  session.id,
		MaxWidth:   maxWidth,
		MaxHeight:  maxHeight,
		MaxBitrate: maxBitrate,
	}, nil)
}

// SetAudioTrack selects an audio track
func (session *PlayerSession) SetAudioTrack(name string, index int) error {
	return session.playerServiceClient.invoke("SetAudioTrack", &api.AudioTrackRequest{SessionID: session.id, Name: name, Index: index}, nil)
}

// SetLooping sets looping
func (session *PlayerSession) SetLooping(looping bool) error {
	return session.playerServiceClient.invoke("SetLooping", &api.LoopingRequest{SessionID: session.id, Looping: looping}, nil)
}

// GetStatus returns a snapshot of the session
func (session *PlayerSession) GetStatus() (*api.StatusResponse, error) {
	response := api.StatusResponse{}
	err := session.playerServiceClient.invoke("GetStatus", &api.SessionRequest{SessionID: session.id}, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Subscribe streams the session's events to the handler until the returned function is called
func (session *PlayerSession) Subscribe(handler event.Handler) (func(), error) {
	return session.playerServiceClient.subscribe(session.id, handler)
}

// Dispose releases the session. Safe to call many times.
func (session *PlayerSession) Dispose() error {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.disposed {
		return nil
	}

	err := session.playerServiceClient.invoke("Dispose", &api.SessionRequest{SessionID: session.id}, nil)
	if err != nil {
		return err
	}

	session.disposed = true
	return nil
}
