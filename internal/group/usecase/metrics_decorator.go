package usecase

import (
	"context"
	"time"

	"github.com/allisson/strongroom/internal/metrics"
	"github.com/allisson/strongroom/internal/policy"
	"github.com/allisson/strongroom/internal/storage"
)

// groupManagerWithMetrics decorates GroupManager with metrics recording.
type groupManagerWithMetrics struct {
	next    GroupManager
	metrics metrics.BusinessMetrics
}

// NewGroupManagerWithMetrics wraps a GroupManager with metrics recording.
func NewGroupManagerWithMetrics(manager GroupManager, m metrics.BusinessMetrics) GroupManager {
	return &groupManagerWithMetrics{next: manager, metrics: m}
}

// record reports one operation's status and duration.
func (g *groupManagerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordOperation(ctx, "groups", operation, status)
	g.metrics.RecordDuration(ctx, "groups", operation, time.Since(start), status)
}

func (g *groupManagerWithMetrics) Create(ctx context.Context, allowKeyReuse bool) (*GroupInfo, error) {
	start := time.Now()
	info, err := g.next.Create(ctx, allowKeyReuse)
	g.record(ctx, "group_create", start, err)
	return info, err
}

func (g *groupManagerWithMetrics) Delete(ctx context.Context) error {
	start := time.Now()
	err := g.next.Delete(ctx)
	g.record(ctx, "group_delete", start, err)
	return err
}

func (g *groupManagerWithMetrics) Info(ctx context.Context) (*GroupInfo, error) {
	start := time.Now()
	info, err := g.next.Info(ctx)
	g.record(ctx, "group_info", start, err)
	return info, err
}

func (g *groupManagerWithMetrics) Attach(ctx context.Context, access policy.Access, userName string) error {
	start := time.Now()
	err := g.next.Attach(ctx, access, userName)
	g.record(ctx, "group_attach", start, err)
	return err
}

func (g *groupManagerWithMetrics) Detach(ctx context.Context, access policy.Access, userName string) error {
	start := time.Now()
	err := g.next.Detach(ctx, access, userName)
	g.record(ctx, "group_detach", start, err)
	return err
}

func (g *groupManagerWithMetrics) Backup(ctx context.Context, target storage.Store, overwrite bool) (int, error) {
	start := time.Now()
	count, err := g.next.Backup(ctx, target, overwrite)
	g.record(ctx, "group_backup", start, err)
	return count, err
}

func (g *groupManagerWithMetrics) Restore(ctx context.Context, source storage.Store, overwrite bool) (int, error) {
	start := time.Now()
	count, err := g.next.Restore(ctx, source, overwrite)
	g.record(ctx, "group_restore", start, err)
	return count, err
}

func (g *groupManagerWithMetrics) Migrate(ctx context.Context, target storage.Store) (*GroupInfo, error) {
	start := time.Now()
	info, err := g.next.Migrate(ctx, target)
	g.record(ctx, "group_migrate", start, err)
	return info, err
}

func (g *groupManagerWithMetrics) Store() storage.Store {
	return g.next.Store()
}
