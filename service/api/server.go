package api

import (
	context "context"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName string = "betterplayer.PlayerAPI"
)

// FullMethodName returns the full grpc method name
func FullMethodName(method string) string {
	return "/" + ServiceName + "/" + method
}

// PlayerAPIServer is the server API for PlayerAPI service.
// Errors returned are converted to grpc status errors.
type PlayerAPIServer interface {
	Create(context.Context, *Empty) (*CreateResponse, error)
	SetDataSource(context.Context, *SetDataSourceRequest) (*Empty, error)
	Play(context.Context, *SessionRequest) (*Empty, error)
	Pause(context.Context, *SessionRequest) (*Empty, error)
	SeekTo(context.Context, *SeekRequest) (*Empty, error)
	SetVolume(context.Context, *VolumeRequest) (*Empty, error)
	SetSpeed(context.Context, *SpeedRequest) (*Empty, error)
	SetTrackParameters(context.Context, *TrackParametersRequest) (*Empty, error)
	SetAudioTrack(context.Context, *AudioTrackRequest) (*Empty, error)
	SetLooping(context.Context, *LoopingRequest) (*Empty, error)
	GetStatus(context.Context, *SessionRequest) (*StatusResponse, error)
	Dispose(context.Context, *SessionRequest) (*Empty, error)
	PreCache(context.Context, *PreCacheRequest) (*Empty, error)
	StopPreCache(context.Context, *StopPreCacheRequest) (*StopPreCacheResponse, error)
	ClearCache(context.Context, *Empty) (*ClearCacheResponse, error)
	CacheStat(context.Context, *Empty) (*CacheStatResponse, error)
	Events(*EventsRequest, PlayerAPI_EventsServer) error
}

// PlayerAPI_EventsServer is the server side of the event stream
type PlayerAPI_EventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type playerAPIEventsServer struct {
	grpc.ServerStream
}

func (x *playerAPIEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterPlayerAPIServer registers the server to grpc
func RegisterPlayerAPIServer(s grpc.ServiceRegistrar, srv PlayerAPIServer) {
	s.RegisterService(&PlayerAPI_ServiceDesc, srv)
}

// methodHandler is the handler signature of grpc.MethodDesc
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unaryHandler decodes the request struct, calls the server and encodes the response
func unaryHandler[Req any, Resp any](method string, call func(PlayerAPIServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			request := new(Req)
			err := DecodeMessage(req.(*structpb.Struct), request)
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}

			response, err := call(srv.(PlayerAPIServer), ctx, request)
			if err != nil {
				return nil, commons.ErrorToStatus(err)
			}

			out, err := EncodeMessage(response)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}

		if interceptor == nil {
			return handler(ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethodName(method),
		}
		return interceptor(ctx, in, info, handler)
	}
}

func eventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	request := &EventsRequest{}
	err := DecodeMessage(in, request)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	return commons.ErrorToStatus(srv.(PlayerAPIServer).Events(request, &playerAPIEventsServer{stream}))
}

// PlayerAPI_ServiceDesc is the grpc.ServiceDesc for PlayerAPI service
var PlayerAPI_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlayerAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Create",
			Handler:    unaryHandler("Create", PlayerAPIServer.Create),
		},
		{
			MethodName: "SetDataSource",
			Handler:    unaryHandler("SetDataSource", PlayerAPIServer.SetDataSource),
		},
		{
			MethodName: "Play",
			Handler:    unaryHandler("Play", PlayerAPIServer.Play),
		},
		{
			MethodName: "Pause",
			Handler:    unaryHandler("Pause", PlayerAPIServer.Pause),
		},
		{
			MethodName: "SeekTo",
			Handler:    unaryHandler("SeekTo", PlayerAPIServer.SeekTo),
		},
		{
			MethodName: "SetVolume",
			Handler:    unaryHandler("SetVolume", PlayerAPIServer.SetVolume),
		},
		{
			MethodName: "SetSpeed",
			Handler:    unaryHandler("SetSpeed", PlayerAPIServer.SetSpeed),
		},
		{
			MethodName: "SetTrackParameters",
			Handler:    unaryHandler("SetTrackParameters", PlayerAPIServer.SetTrackParameters),
		},
		{
			MethodName: "SetAudioTrack",
			Handler:    unaryHandler("SetAudioTrack", PlayerAPIServer.SetAudioTrack),
		},
		{
			MethodName: "SetLooping",
			Handler:    unaryHandler("SetLooping", PlayerAPIServer.SetLooping),
		},
		{
			MethodName: "GetStatus",
			Handler:    unaryHandler("GetStatus", PlayerAPIServer.GetStatus),
		},
		{
			MethodName: "Dispose",
			Handler:    unaryHandler("Dispose", PlayerAPIServer.Dispose),
		},
		{
			MethodName: "PreCache",
			Handler:    unaryHandler("PreCache", PlayerAPIServer.PreCache),
		},
		{
			MethodName: "StopPreCache",
			Handler:    unaryHandler("StopPreCache", PlayerAPIServer.StopPreCache),
		},
		{
			MethodName: "ClearCache",
			Handler:    unaryHandler("ClearCache", PlayerAPIServer.ClearCache),
		},
		{
			MethodName: "CacheStat",
			Handler:    unaryHandler("CacheStat", PlayerAPIServer.CacheStat),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "betterplayer/player_api",
}
