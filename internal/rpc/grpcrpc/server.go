// Package grpcrpc implements the distributed transport for rpc.ActorServer
// over google.golang.org/grpc, with metrics exported via
// github.com/grpc-ecosystem/go-grpc-prometheus.
package grpcrpc

import (
	"context"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/rpc"
)

const serviceName = "flowcore.ActorServer"

// RegisterServer wires impl's rpc.ActorServer methods onto srv as a gRPC
// service and calls grpc_prometheus.Register on srv. It does not install
// the Prometheus server interceptors; those are grpc.NewServer options
// chosen by whoever creates srv.
func RegisterServer(srv *grpc.Server, impl rpc.ActorServer) {
	grpc_prometheus.Register(srv)
	srv.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*rpc.ActorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AppendToTargets", Handler: appendToTargetsHandler},
		{MethodName: "UpdateTargetIP", Handler: updateTargetIPHandler},
		{MethodName: "UpdateTargetIPAndHelpRecover", Handler: updateTargetIPAndHelpRecoverHandler},
		{MethodName: "HelpDownstreamRecover", Handler: helpDownstreamRecoverHandler},
		{MethodName: "TruncateLoggedOutputs", Handler: truncateLoggedOutputsHandler},
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func appendToTargetsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(AppendToTargetsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		r := req.(*AppendToTargetsRequest)
		channelToAddress := make(map[int]string, len(r.ChannelToAddress))
		for ch, addr := range r.ChannelToAddress {
			channelToAddress[int(ch)] = addr
		}
		var partition flowtype.PartitionSpec
		partition.ColumnMod = r.PartitionColumn
		err := srv.(rpc.ActorServer).AppendToTargets(ctx, flowtype.NodeId(r.TargetNode), channelToAddress, partition)
		return ackOf(err), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/AppendToTargets"}
	return interceptor(ctx, req, info, run)
}

func updateTargetIPHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(UpdateTargetIPRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		r := req.(*UpdateTargetIPRequest)
		id := flowtype.ActorId{Node: flowtype.NodeId(r.TargetNode), Channel: int(r.TargetChannel)}
		err := srv.(rpc.ActorServer).UpdateTargetIP(ctx, id, r.NewAddress)
		return ackOf(err), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/UpdateTargetIP"}
	return interceptor(ctx, req, info, run)
}

func updateTargetIPAndHelpRecoverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(UpdateTargetIPAndHelpRecoverRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		r := req.(*UpdateTargetIPAndHelpRecoverRequest)
		id := flowtype.ActorId{Node: flowtype.NodeId(r.TargetNode), Channel: int(r.TargetChannel)}
		err := srv.(rpc.ActorServer).UpdateTargetIPAndHelpRecover(ctx, id, r.ConsumerStateTag, r.NewAddress)
		return ackOf(err), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/UpdateTargetIPAndHelpRecover"}
	return interceptor(ctx, req, info, run)
}

func helpDownstreamRecoverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(HelpDownstreamRecoverRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		r := req.(*HelpDownstreamRecoverRequest)
		id := flowtype.ActorId{Node: flowtype.NodeId(r.TargetNode), Channel: int(r.TargetChannel)}
		err := srv.(rpc.ActorServer).HelpDownstreamRecover(ctx, id, r.ConsumerStateTag)
		return ackOf(err), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/HelpDownstreamRecover"}
	return interceptor(ctx, req, info, run)
}

func truncateLoggedOutputsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(TruncateLoggedOutputsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		r := req.(*TruncateLoggedOutputsRequest)
		id := flowtype.ActorId{Node: flowtype.NodeId(r.TargetNode), Channel: int(r.TargetChannel)}
		err := srv.(rpc.ActorServer).TruncateLoggedOutputs(ctx, id, r.NewCursor)
		return ackOf(err), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/TruncateLoggedOutputs"}
	return interceptor(ctx, req, info, run)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ExecuteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		err := srv.(rpc.ActorServer).Execute(ctx)
		return ackOf(err), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Execute"}
	return interceptor(ctx, req, info, run)
}

func ackOf(err error) *Ack {
	if err == nil {
		return &Ack{Ok: true}
	}
	log.WithError(err).Debug("grpcrpc handler returned error")
	return &Ack{Ok: false, Error: err.Error()}
}
