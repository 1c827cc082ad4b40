package api

import (
	context "context"
	"io"

	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlayerAPIClient is the client API for PlayerAPI service.
// Errors are grpc status errors.
type PlayerAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewPlayerAPIClient creates a new PlayerAPIClient
func NewPlayerAPIClient(cc grpc.ClientConnInterface) *PlayerAPIClient {
	return &PlayerAPIClient{
		cc: cc,
	}
}

// Invoke calls a unary method, encoding the request and decoding the response
func (c *PlayerAPIClient) Invoke(ctx context.Context, method string, request interface{}, response interface{}, opts ...grpc.CallOption) error {
	in, err := EncodeMessage(request)
	if err != nil {
		return err
	}

	out := new(structpb.Struct)
	err = c.cc.Invoke(ctx, FullMethodName(method), in, out, opts...)
	if err != nil {
		return err
	}

	if response == nil {
		return nil
	}
	return DecodeMessage(out, response)
}

// Events opens the event stream
func (c *PlayerAPIClient) Events(ctx context.Context, request *EventsRequest, opts ...grpc.CallOption) (*EventsClient, error) {
	in, err := EncodeMessage(request)
	if err != nil {
		return nil, err
	}

	stream, err := c.cc.NewStream(ctx, &PlayerAPI_ServiceDesc.Streams[0], FullMethodName("Events"), opts...)
	if err != nil {
		return nil, err
	}

	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}

	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	// wait until the server has subscribed
	md, err := stream.Header()
	if err != nil {
		return nil, err
	}

	if md == nil {
		// the stream ended without headers, the status tells why
		err = stream.RecvMsg(new(structpb.Struct))
		if err == nil || err == io.EOF {
			err = status.Error(codes.Internal, "event stream ended before subscription")
		}
		return nil, err
	}

	return &EventsClient{
		stream: stream,
	}, nil
}

// EventsClient receives events from the event stream
type EventsClient struct {
	stream grpc.ClientStream
}

// Recv receives the next event. Returns io.EOF when the stream ends.
func (x *EventsClient) Recv() (event.Event, error) {
	m := new(structpb.Struct)
	if err := x.stream.RecvMsg(m); err != nil {
		return event.Event{}, err
	}

	e := event.Event{}
	err := DecodeMessage(m, &e)
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}
