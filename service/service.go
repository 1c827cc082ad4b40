package service

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/player"
	"github.com/BeamlakAschalew/flixquest-betterplayer/service/api"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
)

const (
	statReportInterval time.Duration = 10 * time.Second
)

// PlayerService is a service object
type PlayerService struct {
	config        *commons.Config
	playerServer  *PlayerServer
	grpcServer    *grpc.Server
	statHandler   *PlayerServiceStatHandler
	terminateChan chan bool
	terminated    bool
	mutex         sync.Mutex // for termination
}

// NewPlayerService creates a new player service
func NewPlayerService(config *commons.Config, engineFactory player.EngineFactory) (*PlayerService, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "NewPlayerService",
	})

	playerServer, err := NewPlayerServer(NewPlayerServerConfig(config), engineFactory)
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, xerrors.Errorf("failed to create a new player server: %w", err)
	}

	statHandler := &PlayerServiceStatHandler{
		playerServer: playerServer,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(statHandler), grpc.UnaryInterceptor(statHandler.UnaryInterceptor))
	api.RegisterPlayerAPIServer(grpcServer, playerServer)

	service := &PlayerService{
		config:        config,
		playerServer:  playerServer,
		grpcServer:    grpcServer,
		statHandler:   statHandler,
		terminateChan: make(chan bool),
	}

	return service, nil
}

// GetPlayerServer returns the player server
func (svc *PlayerService) GetPlayerServer() *PlayerServer {
	return svc.playerServer
}

// Start starts the service and blocks until it is stopped
func (svc *PlayerService) Start() error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerService",
		"function": "Start",
	})

	logger.Infof("Starting the player service at port %d", svc.config.ServicePort)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", svc.config.ServicePort))
	if err != nil {
		logger.Errorf("%+v", err)
		return xerrors.Errorf("failed to listen at port %d: %w", svc.config.ServicePort, err)
	}

	return svc.Serve(listener)
}

// Serve serves on the listener and blocks until the service is stopped
func (svc *PlayerService) Serve(listener net.Listener) error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerService",
		"function": "Serve",
	})

	go func() {
		defer utils.StackTraceFromPanic(logger)

		ticker := time.NewTicker(statReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-svc.terminateChan:
				return
			case <-ticker.C:
				svc.playerServer.CollectPrometheusMetrics()
				logger.Debugf("Total %d live connections, %d sessions, %d pre-cache jobs", svc.statHandler.GetLiveConnections(), svc.playerServer.GetSessions(), svc.playerServer.GetPreCacheJobs())
			}
		}
	}()

	err := svc.grpcServer.Serve(listener)
	if err != nil {
		logger.Errorf("%+v", err)
		return xerrors.Errorf("failed to serve grpc: %w", err)
	}

	return nil
}

// Destroy destroys the service. Safe to call many times.
func (svc *PlayerService) Destroy() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if svc.terminated {
		return
	}

	svc.terminated = true

	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerService",
		"function": "Destroy",
	})

	logger.Info("Destroying the player service")
	close(svc.terminateChan)

	// release first so that open event streams return
	if svc.playerServer != nil {
		svc.playerServer.Release()
	}

	if svc.grpcServer != nil {
		svc.grpcServer.Stop()
	}
}
