package auth

import (
	"fmt"

	"github.com/robustmq/robustmq/pkg/client"
	"github.com/robustmq/robustmq/pkg/config"
	"github.com/robustmq/robustmq/pkg/metastore"
)

// Backend is the Go shape of the original implementation's
// AuthStorageAdapter trait: it knows how to load one login credential and
// the full ACL rule set, without caring where that data actually lives.
type Backend interface {
	GetUser(username string) (*metastore.ACLUser, bool, error)
	ListRules() ([]*metastore.ACLRule, error)
}

// NewBackend builds the Backend named by cfg.StorageType, the Go shape of
// build_driver's storage_is_placement/storage_is_mysql dispatch. The
// original's MySQL case has no driver anywhere else in this module's
// stack and is not ported (see DESIGN.md).
func NewBackend(cfg config.AuthConfig, placement *client.PlacementClient) (Backend, error) {
	switch cfg.StorageType {
	case "memory":
		return NewMemoryBackend(), nil
	case "placement":
		return NewPlacementBackend(placement), nil
	default:
		return nil, fmt.Errorf("auth: unknown storage type %q", cfg.StorageType)
	}
}
