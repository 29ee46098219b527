package main

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtding233/gacha-pull/internal/pull"
)

// pullServiceName is served without generated stubs: requests and responses
// are google.protobuf.Struct carrying the same fields as the HTTP API.
const pullServiceName = "gacha.pull.v1.PullService"

type pullServer interface {
	Pull(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PityProgress(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var pullServiceDesc = grpc.ServiceDesc{
	ServiceName: pullServiceName,
	HandlerType: (*pullServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Pull", Handler: unaryStruct("Pull", pullServer.Pull)},
		{MethodName: "PityProgress", Handler: unaryStruct("PityProgress", pullServer.PityProgress)},
	},
	Metadata: "gacha/pull/v1/pull.proto",
}

func unaryStruct(method string, call func(pullServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(pullServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + pullServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(pullServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// grpcAPI exposes pull and pity over gRPC. Errors are returned as *pull.Error
// and converted to statuses by pull.UnaryServerInterceptor.
type grpcAPI struct {
	svc *pull.Service
}

// newGRPCServer builds the gRPC server with the pull service registered.
func newGRPCServer(svc *pull.Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(pull.UnaryServerInterceptor()))
	s := grpc.NewServer(opts...)
	s.RegisterService(&pullServiceDesc, &grpcAPI{svc: svc})
	return s
}

func (g *grpcAPI) Pull(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	batch, err := g.svc.Pull(ctx, pull.Request{
		PlayerID: f["player_id"].GetStringValue(),
		PoolID:   f["pool_id"].GetStringValue(),
		Count:    int(f["count"].GetNumberValue()),
	})
	if err != nil {
		return nil, err
	}
	return toStruct(batch)
}

func (g *grpcAPI) PityProgress(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	p, err := g.svc.PityProgress(ctx, f["player_id"].GetStringValue(), f["pool_id"].GetStringValue())
	if err != nil {
		return nil, err
	}
	return toStruct(p)
}

// toStruct goes through the JSON encoding so gRPC and HTTP clients see the
// same field names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	return out, nil
}
