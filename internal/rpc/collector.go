// Package rpc holds the gRPC contract between trackers and the collector.
// Snapshots travel as google.protobuf.Struct so the JSON payload shape is
// shared by both transports.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gosight/slidetrack/internal/model"
)

const (
	ServiceName              = "slidetrack.v1.CollectorService"
	SubmitSnapshotFullMethod = "/slidetrack.v1.CollectorService/SubmitSnapshot"
)

// CollectorServiceServer is implemented by the collector
type CollectorServiceServer interface {
	SubmitSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// CollectorServiceClient submits snapshots to the collector
type CollectorServiceClient interface {
	SubmitSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var CollectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollectorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitSnapshot",
			Handler:    submitSnapshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slidetrack/v1/collector.proto",
}

func RegisterCollectorServiceServer(s grpc.ServiceRegistrar, srv CollectorServiceServer) {
	s.RegisterService(&CollectorServiceDesc, srv)
}

func submitSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectorServiceServer).SubmitSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SubmitSnapshotFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CollectorServiceServer).SubmitSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type collectorServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCollectorServiceClient(cc grpc.ClientConnInterface) CollectorServiceClient {
	return &collectorServiceClient{cc: cc}
}

func (c *collectorServiceClient) SubmitSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitSnapshotFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SnapshotToStruct converts a snapshot into its wire message
func SnapshotToStruct(snap model.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// StructToSnapshot decodes a wire message into a snapshot
func StructToSnapshot(s *structpb.Struct) (model.Snapshot, error) {
	var snap model.Snapshot
	if s == nil {
		return snap, fmt.Errorf("empty snapshot message")
	}

	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Ack builds the collector's reply message
func Ack(success bool, message string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"success": structpb.NewBoolValue(success),
			"message": structpb.NewStringValue(message),
		},
	}
}

// AckSuccess reads the success flag of a reply message
func AckSuccess(s *structpb.Struct) bool {
	if s == nil {
		return false
	}
	return s.GetFields()["success"].GetBoolValue()
}
