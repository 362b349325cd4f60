package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/progress"
	"github.com/Strob0t/TenantForge/internal/port/broadcast"
	"github.com/Strob0t/TenantForge/internal/port/cache"
)

// EventTenantProgress is the WebSocket event type of progress updates.
const EventTenantProgress = "tenant.progress"

const progressCacheTTL = time.Hour

// ProgressService pushes provisioning progress to clients watching a
// registration and keeps the latest update for polling.
type ProgressService struct {
	hub   broadcast.Broadcaster
	cache cache.Cache
}

// NewProgressService creates a ProgressService. Either collaborator may be nil.
func NewProgressService(hub broadcast.Broadcaster, c cache.Cache) *ProgressService {
	return &ProgressService{hub: hub, cache: c}
}

func progressKey(registrationID string) string {
	return "progress:" + registrationID
}

// Report delivers u to subscribers of its registration and caches it.
func (s *ProgressService) Report(ctx context.Context, u progress.Update) error {
	if s == nil {
		return nil
	}
	if s.cache != nil {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		if err := s.cache.Set(ctx, progressKey(u.RegistrationID), data, progressCacheTTL); err != nil {
			return fmt.Errorf("cache progress: %w", err)
		}
	}
	if s.hub != nil {
		if err := s.hub.BroadcastTo(ctx, u.RegistrationID, EventTenantProgress, u); err != nil {
			return fmt.Errorf("broadcast progress: %w", err)
		}
	}
	return nil
}

// Latest returns the last update reported for registrationID.
func (s *ProgressService) Latest(ctx context.Context, registrationID string) (*progress.Update, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	data, ok, err := s.cache.Get(ctx, progressKey(registrationID))
	if err != nil || !ok {
		return nil, false, err
	}
	var u progress.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, false, fmt.Errorf("decode progress: %w", err)
	}
	return &u, true, nil
}
