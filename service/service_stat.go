package service

import (
	"context"
	"path"
	"sync/atomic"

	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

// PlayerServiceStatHandler tracks controller connections
type PlayerServiceStatHandler struct {
	liveConnections int64

	playerServer *PlayerServer
}

func (handler *PlayerServiceStatHandler) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

// HandleRPC processes the RPC stats.
func (handler *PlayerServiceStatHandler) HandleRPC(context.Context, stats.RPCStats) {
}

func (handler *PlayerServiceStatHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

// HandleConn processes the Conn stats.
func (handler *PlayerServiceStatHandler) HandleConn(c context.Context, s stats.ConnStats) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PlayerServiceStatHandler",
		"function": "HandleConn",
	})

	defer utils.StackTraceFromPanic(logger)

	switch s.(type) {
	case *stats.ConnEnd:
		live := atomic.AddInt64(&handler.liveConnections, -1)

		promGaugeForGRPCClients.Dec()

		logger.Infof("Controller is disconnected - total %d live connections", live)

		// sessions are owned by controllers, nobody can stop them once all are gone
		if live <= 0 {
			handler.playerServer.ReleaseAllSessions()
		}

		handler.playerServer.PrintStat()

	case *stats.ConnBegin:
		live := atomic.AddInt64(&handler.liveConnections, 1)

		promGaugeForGRPCClients.Inc()

		logger.Infof("Controller is connected - total %d live connections", live)

		handler.playerServer.PrintStat()
	}
}

// GetLiveConnections returns the number of connected controllers
func (handler *PlayerServiceStatHandler) GetLiveConnections() int64 {
	return atomic.LoadInt64(&handler.liveConnections)
}

func (handler *PlayerServiceStatHandler) UnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, uhandler grpc.UnaryHandler) (interface{}, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "unaryInterceptor",
	})

	// request
	promCounterForGRPCRequests.Inc()

	respChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		resp, err := uhandler(ctx, req)
		if err != nil {
			errChan <- err
		} else {
			respChan <- resp
		}
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if err == context.DeadlineExceeded {
			logger.Errorf("Handler %q did not return within timeout", info.FullMethod)
			promCounterForGRPCRequestsTimedout.Inc()
			return nil, status.Error(codes.DeadlineExceeded, "RPC timed out")
		}

		logger.Errorf("Handler %q canceled", info.FullMethod)
		promCounterForGRPCRequestsCanceled.Inc()
		return nil, status.Error(codes.Canceled, "RPC canceled")
	case err := <-errChan:
		promCounterForGRPCResponses.Inc()
		promCounterForGRPCErrors.WithLabelValues(path.Base(info.FullMethod)).Inc()
		return nil, err
	case resp := <-respChan:
		promCounterForGRPCResponses.Inc()
		return resp, nil
	}
}
