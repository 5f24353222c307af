package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/etesami/people-counting-system/pkg/snapshot"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages travel as google.protobuf.Struct holding the JSON form of the
// wire types above, so no generated code is needed on either side.

const (
	ServiceName = "counting.CountingPipeline"

	SendDetectionsMethod = "/counting.CountingPipeline/SendDetections"
	LiveSnapshotMethod   = "/counting.CountingPipeline/LiveSnapshot"
)

var validate = validator.New()

// ToStruct encodes v through its JSON form. v must encode to a JSON object.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("struct from %T: %w", v, err)
	}
	return s, nil
}

// FromStruct decodes s into v.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("nil message")
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal into %T: %w", v, err)
	}
	return nil
}

// PipelineServer is implemented by the tracking service.
type PipelineServer interface {
	SendDetections(context.Context, *FrameDetections) (*TrackedFrame, error)
	LiveSnapshot(context.Context, *SnapshotRequest) (*snapshot.Snapshot, error)
}

func RegisterPipelineServer(s grpc.ServiceRegistrar, srv PipelineServer) {
	s.RegisterService(&PipelineServiceDesc, srv)
}

var PipelineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendDetections", Handler: sendDetectionsHandler},
		{MethodName: "LiveSnapshot", Handler: liveSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "counting.proto",
}

func sendDetectionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var fd FrameDetections
		if err := decodeRequest(req, &fd); err != nil {
			return nil, err
		}
		out, err := srv.(PipelineServer).SendDetections(ctx, &fd)
		if err != nil {
			return nil, err
		}
		return encodeResponse(out)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendDetectionsMethod}
	return interceptor(ctx, in, info, handler)
}

func liveSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var sr SnapshotRequest
		if err := decodeRequest(req, &sr); err != nil {
			return nil, err
		}
		out, err := srv.(PipelineServer).LiveSnapshot(ctx, &sr)
		if err != nil {
			return nil, err
		}
		return encodeResponse(out)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LiveSnapshotMethod}
	return interceptor(ctx, in, info, handler)
}

func decodeRequest(req any, v any) error {
	s, ok := req.(*structpb.Struct)
	if !ok {
		return status.Errorf(codes.InvalidArgument, "unexpected request type %T", req)
	}
	if err := FromStruct(s, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := validate.Struct(v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encodeResponse(v any) (any, error) {
	s, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// PipelineClient is the typed client of the tracking service.
type PipelineClient interface {
	SendDetections(ctx context.Context, in *FrameDetections, opts ...grpc.CallOption) (*TrackedFrame, error)
	LiveSnapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*snapshot.Snapshot, error)
}

type pipelineClient struct {
	cc grpc.ClientConnInterface
}

func NewPipelineClient(cc grpc.ClientConnInterface) PipelineClient {
	return &pipelineClient{cc: cc}
}

func (c *pipelineClient) SendDetections(ctx context.Context, in *FrameDetections, opts ...grpc.CallOption) (*TrackedFrame, error) {
	out := new(TrackedFrame)
	if err := c.invoke(ctx, SendDetectionsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) LiveSnapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*snapshot.Snapshot, error) {
	out := new(snapshot.Snapshot)
	if err := c.invoke(ctx, LiveSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp, opts...); err != nil {
		return err
	}
	return FromStruct(resp, out)
}
