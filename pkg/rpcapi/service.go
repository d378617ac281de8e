package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name advertised in the method full
// paths below, mirroring how a generated *_grpc.pb.go would name it.
const ServiceName = "robustmq.placement.PlacementCenter"

// Server is the placement center's RPC surface, implemented by
// pkg/rpcapi.Handler and invoked by the broker through Client.
type Server interface {
	RegisterNode(ctx context.Context, req *RegisterNodeRequest) (*CommonReply, error)
	UnRegisterNode(ctx context.Context, req *UnRegisterNodeRequest) (*CommonReply, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*CommonReply, error)
	SendRaftMessage(ctx context.Context, req *SendRaftMessageRequest) (*SendRaftMessageReply, error)
	SendRaftConfChange(ctx context.Context, req *SendRaftConfChangeRequest) (*SendRaftConfChangeReply, error)
	NodeList(ctx context.Context, req *NodeListRequest) (*NodeListReply, error)
	SetKV(ctx context.Context, req *SetKVRequest) (*CommonReply, error)
	GetKV(ctx context.Context, req *GetKVRequest) (*GetKVReply, error)
	DeleteKV(ctx context.Context, req *DeleteKVRequest) (*CommonReply, error)
	CreateACLUser(ctx context.Context, req *CreateACLUserRequest) (*CommonReply, error)
	DeleteACLUser(ctx context.Context, req *DeleteACLUserRequest) (*CommonReply, error)
	GetACLUser(ctx context.Context, req *GetACLUserRequest) (*GetACLUserReply, error)
	CreateACLRule(ctx context.Context, req *CreateACLRuleRequest) (*CommonReply, error)
	DeleteACLRule(ctx context.Context, req *DeleteACLRuleRequest) (*CommonReply, error)
	ListACLRules(ctx context.Context, req *ListACLRulesRequest) (*ListACLRulesReply, error)
}

// RegisterPlacementCenterServer registers srv's methods with a *grpc.Server,
// the hand-written equivalent of a generated RegisterXxxServer call.
func RegisterPlacementCenterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	call func(Server, context.Context, *Req) (*Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(Server), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterNode", Handler: unaryHandler(Server.RegisterNode)},
		{MethodName: "UnRegisterNode", Handler: unaryHandler(Server.UnRegisterNode)},
		{MethodName: "Heartbeat", Handler: unaryHandler(Server.Heartbeat)},
		{MethodName: "SendRaftMessage", Handler: unaryHandler(Server.SendRaftMessage)},
		{MethodName: "SendRaftConfChange", Handler: unaryHandler(Server.SendRaftConfChange)},
		{MethodName: "NodeList", Handler: unaryHandler(Server.NodeList)},
		{MethodName: "SetKV", Handler: unaryHandler(Server.SetKV)},
		{MethodName: "GetKV", Handler: unaryHandler(Server.GetKV)},
		{MethodName: "DeleteKV", Handler: unaryHandler(Server.DeleteKV)},
		{MethodName: "CreateACLUser", Handler: unaryHandler(Server.CreateACLUser)},
		{MethodName: "DeleteACLUser", Handler: unaryHandler(Server.DeleteACLUser)},
		{MethodName: "GetACLUser", Handler: unaryHandler(Server.GetACLUser)},
		{MethodName: "CreateACLRule", Handler: unaryHandler(Server.CreateACLRule)},
		{MethodName: "DeleteACLRule", Handler: unaryHandler(Server.DeleteACLRule)},
		{MethodName: "ListACLRules", Handler: unaryHandler(Server.ListACLRules)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/rpcapi/service.go",
}
