package auth

import (
	"context"
	"time"

	"github.com/robustmq/robustmq/pkg/client"
	"github.com/robustmq/robustmq/pkg/metastore"
)

// PlacementBackend is the auth.Backend counterpart to
// storage.PlacementAdapter: it reads credentials and ACL rules from the
// placement center's raft-replicated store, the Go shape of the original
// implementation's PlacementAuthStorageAdapter.
type PlacementBackend struct {
	placement *client.PlacementClient
	timeout   time.Duration
}

// NewPlacementBackend builds a PlacementBackend that leases RPCs through
// placement.
func NewPlacementBackend(placement *client.PlacementClient) *PlacementBackend {
	return &PlacementBackend{placement: placement, timeout: 10 * time.Second}
}

func (p *PlacementBackend) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.timeout)
}

func (p *PlacementBackend) GetUser(username string) (*metastore.ACLUser, bool, error) {
	ctx, cancel := p.ctx()
	defer cancel()
	return p.placement.GetACLUser(ctx, username)
}

func (p *PlacementBackend) ListRules() ([]*metastore.ACLRule, error) {
	ctx, cancel := p.ctx()
	defer cancel()
	return p.placement.ListACLRules(ctx)
}
