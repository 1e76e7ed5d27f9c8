package visualiser

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/camspeed/internal/monitoring"
)

const (
	serviceName          = "camspeed.visualiser.OverlayService"
	streamOverlaysMethod = "/" + serviceName + "/StreamOverlays"
)

// OverlayServer is the server API for the overlay service.
type OverlayServer interface {
	StreamOverlays(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OverlayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamOverlays",
			Handler:       streamOverlaysHandler,
			ServerStreams: true,
		},
	},
	Metadata: "camspeed/visualiser.proto",
}

func streamOverlaysHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(OverlayServer).StreamOverlays(req, stream)
}

// Ensure Server implements the gRPC interface.
var _ OverlayServer = (*Server)(nil)

// Server implements the overlay service on top of a Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer creates a new gRPC service.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// Register adds the service to s.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// StreamOverlays streams every published frame until the client goes away
// or the publisher stops.
func (s *Server) StreamOverlays(msg *structpb.Struct, stream grpc.ServerStream) error {
	req := requestFromStruct(msg)
	client := s.publisher.addClient(req)
	if client == nil {
		return status.Errorf(codes.ResourceExhausted, "at most %d overlay clients", s.publisher.config.MaxClients)
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return nil
		case frame := <-client.frameCh:
			if !req.IncludeHidden {
				frame = frame.visible()
			}
			out, err := EncodeUpdate(frame)
			if err != nil {
				monitoring.Logf("[gRPC] %s: %v", client.id, err)
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				monitoring.Logf("[gRPC] send error to %s: %v", client.id, err)
				return err
			}
		}
	}
}

// OverlayStream is the client side of StreamOverlays.
type OverlayStream struct {
	stream grpc.ClientStream
}

// StreamOverlays opens an overlay stream on cc.
func StreamOverlays(ctx context.Context, cc grpc.ClientConnInterface, req StreamRequest) (*OverlayStream, error) {
	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], streamOverlaysMethod)
	if err != nil {
		return nil, err
	}
	msg, err := req.toStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	if err := stream.SendMsg(msg); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &OverlayStream{stream: stream}, nil
}

// Recv blocks for the next frame.
func (s *OverlayStream) Recv() (FrameUpdate, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return FrameUpdate{}, err
	}
	return DecodeUpdate(msg)
}
