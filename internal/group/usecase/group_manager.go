package usecase

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/policy"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
	"github.com/allisson/strongroom/internal/storage"
)

// deleteTimeout bounds the wait for the concurrent sub-deletions of Delete.
const deleteTimeout = 2 * time.Minute

// groupManager implements GroupManager over one group's store, key service
// and policy service. The store field is the cached backend selection and is
// guarded by the group's lock; Migrate replaces it.
type groupManager struct {
	group    domain.GroupIdentifier
	store    storage.Store
	key      KeyService
	policies PolicyService

	deleteBound time.Duration
}

// NewGroupManager creates the orchestrator for one group.
func NewGroupManager(
	group domain.GroupIdentifier,
	store storage.Store,
	key KeyService,
	policies PolicyService,
) GroupManager {
	return &groupManager{
		group:       group,
		store:       store,
		key:         key,
		policies:    policies,
		deleteBound: deleteTimeout,
	}
}

// Create provisions the group. All four sub-resources are probed first and
// any pre-existing one aborts the call before anything is created. The store
// and the key are then created concurrently, and once both identities are
// known the two policies. A failure in either creation phase leaves the group
// possibly partially constructed; it is reported for manual cleanup, never
// rolled back.
func (g *groupManager) Create(ctx context.Context, allowKeyReuse bool) (*GroupInfo, error) {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	probes := []struct {
		name  string
		probe func(context.Context) (bool, error)
	}{
		{"store", g.store.Exists},
		{"encryption key", func(ctx context.Context) (bool, error) {
			return g.key.Exists(ctx, allowKeyReuse)
		}},
		{"admin policy", func(ctx context.Context) (bool, error) {
			return g.policies.Exists(ctx, policy.AccessAdmin)
		}},
		{"readonly policy", func(ctx context.Context) (bool, error) {
			return g.policies.Exists(ctx, policy.AccessReadOnly)
		}},
	}

	found := make([]bool, len(probes))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range probes {
		eg.Go(func() error {
			exists, err := p.probe(egCtx)
			found[i] = exists
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, apperrors.Wrapf(err, "group %s", g.group)
	}
	for i, p := range probes {
		if found[i] {
			return nil, apperrors.Wrapf(apperrors.ErrAlreadyExists,
				"group %s: %s", g.group, p.name)
		}
	}

	var keyARN string
	eg, egCtx = errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.store.Create(egCtx)
	})
	eg.Go(func() error {
		arn, err := g.key.CreateKey(egCtx, allowKeyReuse)
		keyARN = arn
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrPartialFailure,
			"group %s: %v", g.group, err)
	}

	storeARN, err := g.store.ARN(ctx)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrPartialFailure,
			"group %s: %v", g.group, err)
	}

	eg, egCtx = errgroup.WithContext(ctx)
	for _, access := range []policy.Access{policy.AccessAdmin, policy.AccessReadOnly} {
		eg.Go(func() error {
			_, err := g.policies.CreatePolicy(egCtx, access, storeARN, keyARN)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrPartialFailure,
			"group %s: %v", g.group, err)
	}

	return g.infoLocked(ctx)
}

// Delete removes the store, the policies and the key concurrently, best
// effort. A sub-resource that is already gone is skipped. The wait is bounded
// by deleteBound; on timeout the sub-deletions keep running in the background
// and the group may be left partially deleted.
func (g *groupManager) Delete(ctx context.Context) error {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return ignoreAbsent(g.store.Destroy(egCtx))
	})
	eg.Go(func() error {
		_, err := g.key.ScheduleKeyDeletion(egCtx)
		return ignoreAbsent(err)
	})
	eg.Go(func() error {
		if err := g.removePolicy(egCtx, policy.AccessAdmin); err != nil {
			return err
		}
		return g.removePolicy(egCtx, policy.AccessReadOnly)
	})

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return apperrors.Wrapf(err, "group %s", g.group)
		}
		return nil
	case <-time.After(g.deleteBound):
		return apperrors.Wrapf(apperrors.ErrTimeout,
			"group %s deletion still running after %s", g.group, g.deleteBound)
	}
}

// Info probes the group's sub-resources concurrently. Absent sub-resources
// surface as zero values.
func (g *groupManager) Info(ctx context.Context) (*GroupInfo, error) {
	lock := lockFor(g.group)
	lock.RLock()
	defer lock.RUnlock()

	return g.infoLocked(ctx)
}

// infoLocked is Info without lock acquisition, for callers already holding
// the group's lock.
func (g *groupManager) infoLocked(ctx context.Context) (*GroupInfo, error) {
	info := &GroupInfo{Group: g.group, StoreKind: g.store.Kind()}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		exists, err := g.store.Exists(egCtx)
		if err != nil || !exists {
			return err
		}
		arn, err := g.store.ARN(egCtx)
		if apperrors.Is(err, apperrors.ErrDoesNotExist) {
			return nil
		}
		info.StoreARN = arn
		return err
	})
	eg.Go(func() error {
		arn, err := g.key.ARN(egCtx)
		if apperrors.Is(err, apperrors.ErrDoesNotExist) {
			return nil
		}
		info.KeyARN = arn
		return err
	})
	eg.Go(func() error {
		pi, err := g.probePolicy(egCtx, policy.AccessAdmin)
		info.AdminPolicy = pi
		return err
	})
	eg.Go(func() error {
		pi, err := g.probePolicy(egCtx, policy.AccessReadOnly)
		info.ReadOnlyPolicy = pi
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, apperrors.Wrapf(err, "group %s", g.group)
	}
	return info, nil
}

// probePolicy reports one access policy's existence and attached principals.
func (g *groupManager) probePolicy(ctx context.Context, access policy.Access) (PolicyInfo, error) {
	exists, err := g.policies.Exists(ctx, access)
	if err != nil || !exists {
		return PolicyInfo{}, err
	}
	users, err := g.policies.ListAttachedUsers(ctx, access)
	if apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return PolicyInfo{Exists: true}, nil
	}
	if err != nil {
		return PolicyInfo{}, err
	}
	return PolicyInfo{Exists: true, AttachedUsers: users}, nil
}

// Attach grants the access level to a principal.
func (g *groupManager) Attach(ctx context.Context, access policy.Access, userName string) error {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	return g.policies.Attach(ctx, access, userName)
}

// Detach revokes the access level from a principal.
func (g *groupManager) Detach(ctx context.Context, access policy.Access, userName string) error {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	return g.policies.Detach(ctx, access, userName)
}

// Backup copies every entry of the group's store into target.
func (g *groupManager) Backup(ctx context.Context, target storage.Store, overwrite bool) (int, error) {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	if err := prepareDestination(ctx, target, overwrite); err != nil {
		return 0, apperrors.Wrapf(err, "group %s backup", g.group)
	}
	return copyEntries(ctx, g.store, target)
}

// Restore copies every entry of source into the group's store.
func (g *groupManager) Restore(ctx context.Context, source storage.Store, overwrite bool) (int, error) {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	if err := prepareDestination(ctx, g.store, overwrite); err != nil {
		return 0, apperrors.Wrapf(err, "group %s restore", g.group)
	}
	return copyEntries(ctx, source, g.store)
}

// Migrate moves the group to a store of a different backend kind: the target
// is created, every entry streamed into it, the backend selection swapped,
// and only then the old store destroyed. A failure after the swap leaves the
// entries present in both stores and is reported for manual cleanup.
func (g *groupManager) Migrate(ctx context.Context, target storage.Store) (*GroupInfo, error) {
	lock := lockFor(g.group)
	lock.Lock()
	defer lock.Unlock()

	if target.Kind() == g.store.Kind() {
		return nil, apperrors.Wrapf(apperrors.ErrUnexpectedState,
			"group %s already uses backend %s", g.group, g.store.Kind())
	}

	if err := target.Create(ctx); err != nil {
		return nil, apperrors.Wrapf(err, "group %s migrate", g.group)
	}
	if _, err := copyEntries(ctx, g.store, target); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrPartialFailure,
			"group %s migrate: %v", g.group, err)
	}

	old := g.store
	g.store = target

	if err := old.Destroy(ctx); err != nil && !apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return nil, apperrors.Wrapf(apperrors.ErrPartialFailure,
			"group %s migrate: old store not destroyed: %v", g.group, err)
	}
	if err := old.Close(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrPartialFailure,
			"group %s migrate: %v", g.group, err)
	}

	return g.infoLocked(ctx)
}

// Store returns the group's current backend store.
func (g *groupManager) Store() storage.Store {
	lock := lockFor(g.group)
	lock.RLock()
	defer lock.RUnlock()

	return g.store
}

// removePolicy detaches every principal from the access policy and deletes
// it. A policy that is already gone is not an error.
func (g *groupManager) removePolicy(ctx context.Context, access policy.Access) error {
	users, err := g.policies.ListAttachedUsers(ctx, access)
	if apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := g.policies.Detach(ctx, access, user); err != nil {
			if apperrors.Is(err, apperrors.ErrDoesNotExist) {
				continue
			}
			return err
		}
	}
	return ignoreAbsent(g.policies.DeletePolicy(ctx, access))
}

// prepareDestination readies a copy destination: a missing store is created,
// an existing one fails the copy unless overwrite permits destroying and
// recreating it.
func prepareDestination(ctx context.Context, dst storage.Store, overwrite bool) error {
	exists, err := dst.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			return apperrors.Wrap(apperrors.ErrAlreadyExists, "destination store")
		}
		if err := dst.Destroy(ctx); err != nil {
			return err
		}
	}
	return dst.Create(ctx)
}

// copyEntries streams every entry of src into dst, one secret at a time,
// returning the number of entries copied. Entries are copied as stored; the
// ciphertexts never leave their sealed form.
func copyEntries(ctx context.Context, src, dst storage.Store) (int, error) {
	ids, err := src.KeySet(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		filter := &storage.Filter{
			Key: query.NewKeyCondition(storage.Schema.Name.Equal(query.StringValue(id.Name()))),
		}
		entries, err := src.Stream(ctx, filter, storage.QueryOptions{})
		if err != nil {
			return total, err
		}
		for _, entry := range entries {
			if err := dst.CreateEntry(ctx, entry); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

// ignoreAbsent swallows a missing-resource result on best-effort paths.
func ignoreAbsent(err error) error {
	if apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return nil
	}
	return err
}
