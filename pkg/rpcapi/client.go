package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// Client invokes the hand-written PlacementCenterService methods over a
// *grpc.ClientConn, the same role a generated PlacementCenterClient would
// play — it just marshals through the json codec instead of protobuf.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an existing connection. Callers own the connection's
// lifecycle (pkg/client.Pool leases and returns connections).
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func (c *Client) RegisterNode(ctx context.Context, req *RegisterNodeRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("RegisterNode"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) UnRegisterNode(ctx context.Context, req *UnRegisterNodeRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("UnRegisterNode"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("Heartbeat"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) SendRaftMessage(ctx context.Context, req *SendRaftMessageRequest) (*SendRaftMessageReply, error) {
	reply := new(SendRaftMessageReply)
	if err := c.conn.Invoke(ctx, fullMethod("SendRaftMessage"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) SendRaftConfChange(ctx context.Context, req *SendRaftConfChangeRequest) (*SendRaftConfChangeReply, error) {
	reply := new(SendRaftConfChangeReply)
	if err := c.conn.Invoke(ctx, fullMethod("SendRaftConfChange"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) NodeList(ctx context.Context, req *NodeListRequest) (*NodeListReply, error) {
	reply := new(NodeListReply)
	if err := c.conn.Invoke(ctx, fullMethod("NodeList"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) SetKV(ctx context.Context, req *SetKVRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("SetKV"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) GetKV(ctx context.Context, req *GetKVRequest) (*GetKVReply, error) {
	reply := new(GetKVReply)
	if err := c.conn.Invoke(ctx, fullMethod("GetKV"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) DeleteKV(ctx context.Context, req *DeleteKVRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("DeleteKV"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) CreateACLUser(ctx context.Context, req *CreateACLUserRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("CreateACLUser"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) DeleteACLUser(ctx context.Context, req *DeleteACLUserRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("DeleteACLUser"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) GetACLUser(ctx context.Context, req *GetACLUserRequest) (*GetACLUserReply, error) {
	reply := new(GetACLUserReply)
	if err := c.conn.Invoke(ctx, fullMethod("GetACLUser"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) CreateACLRule(ctx context.Context, req *CreateACLRuleRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("CreateACLRule"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) DeleteACLRule(ctx context.Context, req *DeleteACLRuleRequest) (*CommonReply, error) {
	reply := new(CommonReply)
	if err := c.conn.Invoke(ctx, fullMethod("DeleteACLRule"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) ListACLRules(ctx context.Context, req *ListACLRulesRequest) (*ListACLRulesReply, error) {
	reply := new(ListACLRulesReply)
	if err := c.conn.Invoke(ctx, fullMethod("ListACLRules"), req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return reply, nil
}
