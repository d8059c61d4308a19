// Package usecase implements the group orchestrator: lifecycle of the four
// sub-resources a secrets group owns (backend store, encryption key, admin and
// readonly access policies), serialized per group identity.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/strongroom/internal/policy"
	"github.com/allisson/strongroom/internal/secrets/domain"
	"github.com/allisson/strongroom/internal/storage"
)

// KeyService is the key-lifecycle surface of the group's encryption service.
type KeyService interface {
	// CreateKey provisions the group's master key. With allowKeyReuse an
	// existing disabled or pending-deletion key is re-enabled instead of
	// being treated as a conflict.
	CreateKey(ctx context.Context, allowKeyReuse bool) (string, error)

	// ScheduleKeyDeletion schedules delayed deletion of the group's key and
	// returns the deletion date.
	ScheduleKeyDeletion(ctx context.Context) (time.Time, error)

	// Exists reports whether the key blocks a create. With allowKeyReuse a
	// disabled or pending-deletion key reports false.
	Exists(ctx context.Context, allowKeyReuse bool) (bool, error)

	// ARN returns the identity of the group's key.
	ARN(ctx context.Context) (string, error)
}

// PolicyService is the access-policy surface of the group.
type PolicyService interface {
	CreatePolicy(ctx context.Context, access policy.Access, storeARN, keyARN string) (string, error)
	DeletePolicy(ctx context.Context, access policy.Access) error
	Exists(ctx context.Context, access policy.Access) (bool, error)
	Attach(ctx context.Context, access policy.Access, userName string) error
	Detach(ctx context.Context, access policy.Access, userName string) error
	ListAttachedUsers(ctx context.Context, access policy.Access) ([]string, error)
}

// PolicyInfo describes one of the group's access policies.
type PolicyInfo struct {
	// Exists reports whether the policy is provisioned.
	Exists bool
	// AttachedUsers are the principals holding the policy.
	AttachedUsers []string
}

// GroupInfo aggregates the observed state of a group's sub-resources. Absent
// sub-resources surface as zero values, not errors.
type GroupInfo struct {
	Group          domain.GroupIdentifier
	StoreKind      storage.Kind
	StoreARN       string
	KeyARN         string
	AdminPolicy    PolicyInfo
	ReadOnlyPolicy PolicyInfo
}

// GroupManager orchestrates one group's lifecycle. All mutating operations
// take the group's write lock; Info takes the read lock. Locks are process
// local; cross-process safety rests on the backends' conditional writes.
type GroupManager interface {
	// Create provisions the group's four sub-resources. Any pre-existing
	// sub-resource fails the call before anything is created, except a
	// disabled or pending-deletion key when allowKeyReuse is set. A failure
	// after partial creation is reported, not rolled back.
	Create(ctx context.Context, allowKeyReuse bool) (*GroupInfo, error)

	// Delete removes the group's sub-resources best effort. A missing
	// sub-resource is not an error. The wait for the concurrent deletions is
	// bounded; on timeout the sub-deletions may still be running.
	Delete(ctx context.Context) error

	// Info probes the group's sub-resources concurrently.
	Info(ctx context.Context) (*GroupInfo, error)

	// Attach grants the access level to a principal.
	Attach(ctx context.Context, access policy.Access, userName string) error

	// Detach revokes the access level from a principal.
	Detach(ctx context.Context, access policy.Access, userName string) error

	// Backup copies every entry of the group's store into target. A
	// pre-existing target fails unless overwrite is set, in which case the
	// target is destroyed and recreated first. Returns the entry count.
	Backup(ctx context.Context, target storage.Store, overwrite bool) (int, error)

	// Restore copies every entry of source into the group's store, with the
	// same overwrite semantics as Backup. Returns the entry count.
	Restore(ctx context.Context, source storage.Store, overwrite bool) (int, error)

	// Migrate moves the group's entries into a newly created store of a
	// different backend kind, makes it the group's store and destroys the old
	// one. The same kind as the current store is refused.
	Migrate(ctx context.Context, target storage.Store) (*GroupInfo, error)

	// Store returns the group's current backend store.
	Store() storage.Store
}
