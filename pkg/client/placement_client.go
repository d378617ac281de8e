package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metastore"
	"github.com/robustmq/robustmq/pkg/rpcapi"
)

// MaxBackoffSeconds caps retry_sleep_time's growth per spec section 4.2.
const MaxBackoffSeconds = 10

// MaxRetryTimes is the attempt ceiling before a wrapper surfaces a
// MetaRpcStatus-equivalent error to its caller.
const MaxRetryTimes = 5

func retrySleepTime(attempt int) time.Duration {
	if attempt > MaxBackoffSeconds {
		attempt = MaxBackoffSeconds
	}
	return time.Duration(attempt) * time.Second
}

// PlacementClient wraps the placement center's RPC surface with the
// retry/backoff shape spec section 4.2 requires: check out a channel,
// invoke, retry on transport error with growing backoff, and give up
// after MaxRetryTimes attempts.
type PlacementClient struct {
	pool    *Pool
	module  string
	address string
}

// NewPlacementClient builds a client that leases channels from pool for
// the ServicePlacementInner tag against address.
func NewPlacementClient(pool *Pool, module, address string) *PlacementClient {
	return &PlacementClient{pool: pool, module: module, address: address}
}

// call runs fn against a freshly-leased rpcapi.Client, retrying on error
// with spec's backoff schedule. fn should return the same error it
// received from the underlying RPC so call can decide whether to retry.
func (c *PlacementClient) call(ctx context.Context, method string, fn func(*rpcapi.Client) error) error {
	var lastErr error

	for attempt := 1; attempt <= MaxRetryTimes; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lease, err := c.pool.Get(ctx, ServicePlacementInner, c.module, c.address)
		if err != nil {
			lastErr = err
		} else {
			rpc := rpcapi.NewClient(lease.Conn)
			err = fn(rpc)
			lease.Release()
			if err == nil {
				return nil
			}
			lastErr = err
		}

		log.Logger.Warn().
			Str("method", method).
			Str("address", c.address).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("placement rpc failed, retrying")

		if attempt == MaxRetryTimes {
			break
		}

		select {
		case <-time.After(retrySleepTime(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return robustmqerrors.NewMetaRPCError(method, MaxRetryTimes, lastErr)
}

func (c *PlacementClient) RegisterNode(ctx context.Context, req *rpcapi.RegisterNodeRequest) (*rpcapi.CommonReply, error) {
	var reply *rpcapi.CommonReply
	err := c.call(ctx, "RegisterNode", func(rpc *rpcapi.Client) error {
		r, err := rpc.RegisterNode(ctx, req)
		reply = r
		return err
	})
	return reply, err
}

func (c *PlacementClient) UnRegisterNode(ctx context.Context, req *rpcapi.UnRegisterNodeRequest) (*rpcapi.CommonReply, error) {
	var reply *rpcapi.CommonReply
	err := c.call(ctx, "UnRegisterNode", func(rpc *rpcapi.Client) error {
		r, err := rpc.UnRegisterNode(ctx, req)
		reply = r
		return err
	})
	return reply, err
}

func (c *PlacementClient) Heartbeat(ctx context.Context, req *rpcapi.HeartbeatRequest) (*rpcapi.CommonReply, error) {
	var reply *rpcapi.CommonReply
	err := c.call(ctx, "Heartbeat", func(rpc *rpcapi.Client) error {
		r, err := rpc.Heartbeat(ctx, req)
		reply = r
		return err
	})
	return reply, err
}

func (c *PlacementClient) NodeList(ctx context.Context, req *rpcapi.NodeListRequest) (*rpcapi.NodeListReply, error) {
	var reply *rpcapi.NodeListReply
	err := c.call(ctx, "NodeList", func(rpc *rpcapi.Client) error {
		r, err := rpc.NodeList(ctx, req)
		reply = r
		return err
	})
	return reply, err
}

func (c *PlacementClient) SetKV(ctx context.Context, key string, value []byte) error {
	return c.call(ctx, "SetKV", func(rpc *rpcapi.Client) error {
		_, err := rpc.SetKV(ctx, &rpcapi.SetKVRequest{Key: key, Value: value})
		return err
	})
}

func (c *PlacementClient) GetKV(ctx context.Context, key string) ([]byte, bool, error) {
	var reply *rpcapi.GetKVReply
	err := c.call(ctx, "GetKV", func(rpc *rpcapi.Client) error {
		r, err := rpc.GetKV(ctx, &rpcapi.GetKVRequest{Key: key})
		reply = r
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return reply.Value, reply.Found, nil
}

func (c *PlacementClient) DeleteKV(ctx context.Context, key string) error {
	return c.call(ctx, "DeleteKV", func(rpc *rpcapi.Client) error {
		_, err := rpc.DeleteKV(ctx, &rpcapi.DeleteKVRequest{Key: key})
		return err
	})
}

// SendRaftMessage forwards an opaque hashicorp/raft RPC payload to this
// client's peer, the wrapped counterpart to rpcapi.Client.SendRaftMessage
// that section 4.2 names alongside the other placement RPCs.
func (c *PlacementClient) SendRaftMessage(ctx context.Context, req *rpcapi.SendRaftMessageRequest) (*rpcapi.SendRaftMessageReply, error) {
	var reply *rpcapi.SendRaftMessageReply
	err := c.call(ctx, "SendRaftMessage", func(rpc *rpcapi.Client) error {
		r, err := rpc.SendRaftMessage(ctx, req)
		reply = r
		return err
	})
	return reply, err
}

// SendRaftConfChange asks this client's peer to apply a raft
// configuration change, the wrapped counterpart to
// rpcapi.Client.SendRaftConfChange.
func (c *PlacementClient) SendRaftConfChange(ctx context.Context, req *rpcapi.SendRaftConfChangeRequest) (*rpcapi.SendRaftConfChangeReply, error) {
	var reply *rpcapi.SendRaftConfChangeReply
	err := c.call(ctx, "SendRaftConfChange", func(rpc *rpcapi.Client) error {
		r, err := rpc.SendRaftConfChange(ctx, req)
		reply = r
		return err
	})
	return reply, err
}

// CreateACLUser registers a login credential record with the placement
// center, for pkg/auth.PlacementBackend's write path.
func (c *PlacementClient) CreateACLUser(ctx context.Context, user *metastore.ACLUser) error {
	return c.call(ctx, "CreateACLUser", func(rpc *rpcapi.Client) error {
		_, err := rpc.CreateACLUser(ctx, &rpcapi.CreateACLUserRequest{
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			IsSuperuser:  user.IsSuperuser,
		})
		return err
	})
}

// DeleteACLUser removes a login credential record.
func (c *PlacementClient) DeleteACLUser(ctx context.Context, username string) error {
	return c.call(ctx, "DeleteACLUser", func(rpc *rpcapi.Client) error {
		_, err := rpc.DeleteACLUser(ctx, &rpcapi.DeleteACLUserRequest{Username: username})
		return err
	})
}

// GetACLUser reads one login credential record, for pkg/auth.PlacementBackend.
func (c *PlacementClient) GetACLUser(ctx context.Context, username string) (*metastore.ACLUser, bool, error) {
	var reply *rpcapi.GetACLUserReply
	err := c.call(ctx, "GetACLUser", func(rpc *rpcapi.Client) error {
		r, err := rpc.GetACLUser(ctx, &rpcapi.GetACLUserRequest{Username: username})
		reply = r
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !reply.Found {
		return nil, false, nil
	}
	var user metastore.ACLUser
	if err := json.Unmarshal(reply.User, &user); err != nil {
		return nil, false, fmt.Errorf("failed to decode acl user: %w", err)
	}
	return &user, true, nil
}

// CreateACLRule adds an access rule.
func (c *PlacementClient) CreateACLRule(ctx context.Context, rule *metastore.ACLRule) error {
	return c.call(ctx, "CreateACLRule", func(rpc *rpcapi.Client) error {
		_, err := rpc.CreateACLRule(ctx, &rpcapi.CreateACLRuleRequest{
			ID:         rule.ID,
			Username:   rule.Username,
			Topic:      rule.Topic,
			Permission: string(rule.Permission),
			Action:     string(rule.Action),
		})
		return err
	})
}

// DeleteACLRule removes an access rule by id.
func (c *PlacementClient) DeleteACLRule(ctx context.Context, id string) error {
	return c.call(ctx, "DeleteACLRule", func(rpc *rpcapi.Client) error {
		_, err := rpc.DeleteACLRule(ctx, &rpcapi.DeleteACLRuleRequest{ID: id})
		return err
	})
}

// ListACLRules reads every access rule known to the cluster, for
// pkg/auth.PlacementBackend.
func (c *PlacementClient) ListACLRules(ctx context.Context) ([]*metastore.ACLRule, error) {
	var reply *rpcapi.ListACLRulesReply
	err := c.call(ctx, "ListACLRules", func(rpc *rpcapi.Client) error {
		r, err := rpc.ListACLRules(ctx, &rpcapi.ListACLRulesRequest{})
		reply = r
		return err
	})
	if err != nil {
		return nil, err
	}

	rules := make([]*metastore.ACLRule, 0, len(reply.Rules))
	for _, data := range reply.Rules {
		var rule metastore.ACLRule
		if err := json.Unmarshal(data, &rule); err != nil {
			return nil, fmt.Errorf("failed to decode acl rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	return rules, nil
}
