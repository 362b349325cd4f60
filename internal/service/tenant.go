package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/event"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/cache"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

const tenantSummaryTTL = 5 * time.Minute

// TenantQueryService serves tenant summaries through a cache.
type TenantQueryService struct {
	store database.Store
	cache cache.Cache
}

// NewTenantQueryService creates a TenantQueryService. c may be nil.
func NewTenantQueryService(store database.Store, c cache.Cache) *TenantQueryService {
	return &TenantQueryService{store: store, cache: c}
}

func tenantKey(id string) string {
	return "tenant:" + id
}

// Get returns the summary of tenant id.
func (s *TenantQueryService) Get(ctx context.Context, id string) (*tenant.Summary, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, tenantKey(id)); err == nil && ok {
			var sum tenant.Summary
			if err := json.Unmarshal(data, &sum); err == nil {
				return &sum, nil
			}
		}
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := tenant.Summarize(t)

	if s.cache != nil {
		if data, err := json.Marshal(sum); err == nil {
			if err := s.cache.Set(ctx, tenantKey(id), data, tenantSummaryTTL); err != nil {
				slog.Debug("tenant summary cache set failed", "tenant_id", id, "error", err)
			}
		}
	}
	return sum, nil
}

// Invalidate drops the cached summary of tenant id.
func (s *TenantQueryService) Invalidate(ctx context.Context, id string) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tenantKey(id)); err != nil {
		slog.Warn("tenant summary cache invalidation failed", "tenant_id", id, "error", err)
	}
}

// WatchActivations invalidates the cached summary of every tenant activated
// anywhere in the fleet, so other instances drop their stale L1 entries.
func (s *TenantQueryService) WatchActivations(ctx context.Context, q messagequeue.Queue) (cancel func(), err error) {
	return q.Subscribe(ctx, event.SubjectTenantActivated, func(ctx context.Context, _ string, data []byte) error {
		var ev event.TenantActivated
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", event.SubjectTenantActivated, err)
		}
		s.Invalidate(ctx, ev.TenantID)
		return nil
	})
}
