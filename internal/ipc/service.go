package ipc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatpool.ipc.WorkerChannel"

const attachMethod = "/" + ServiceName + "/Attach"

// WorkerChannelServer is implemented by the coordinator.
type WorkerChannelServer interface {
	// Attach serves one worker for the lifetime of its stream.
	Attach(stream AttachServer) error
}

// AttachServer is the coordinator side of an attach stream.
type AttachServer interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ServerStream
}

type attachServer struct {
	grpc.ServerStream
}

func (s *attachServer) Send(m *Envelope) error {
	return s.ServerStream.SendMsg(m)
}

func (s *attachServer) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func attachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(WorkerChannelServer).Attach(&attachServer{stream})
}

// ServiceDesc describes the WorkerChannel service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerChannelServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "chatpool/ipc",
}

// RegisterWorkerChannelServer registers srv with s.
func RegisterWorkerChannelServer(s grpc.ServiceRegistrar, srv WorkerChannelServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// AttachClient is the worker side of an attach stream.
type AttachClient interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type attachClient struct {
	grpc.ClientStream
}

func (c *attachClient) Send(m *Envelope) error {
	return c.ClientStream.SendMsg(m)
}

func (c *attachClient) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenAttach opens the attach stream on cc. The CBOR content-subtype is always set.
func OpenAttach(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (AttachClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], attachMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &attachClient{stream}, nil
}
