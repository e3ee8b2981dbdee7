package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/models"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	Create(ctx context.Context, snapshot *models.SignupSnapshot) error
	GetByID(ctx context.Context, id string) (*models.SignupSnapshot, error)
	List(ctx context.Context, filter models.SnapshotFilter) ([]models.SignupSnapshot, error)
}

// PublishStore holds the latest published list per event code.
type PublishStore interface {
	Get(ctx context.Context, eventCode string, dest interface{}) error
	Set(ctx context.Context, eventCode string, value interface{}, ttl time.Duration) error
}

// SnapshotService stores computed signup lists. Neither sink is read back by
// the aggregation itself.
type SnapshotService struct {
	snapshots  SnapshotStore
	published  PublishStore
	publishTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSnapshotService constructs the service. Either repository may be nil.
func NewSnapshotService(snapshots SnapshotStore, published PublishStore, publishTTL time.Duration, logger *zap.Logger) *SnapshotService {
	if publishTTL <= 0 {
		publishTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{snapshots: snapshots, published: published, publishTTL: publishTTL, logger: logger, now: time.Now}
}

// CanPersist reports whether a snapshot store is configured.
func (s *SnapshotService) CanPersist() bool {
	return s != nil && s.snapshots != nil
}

// CanPublish reports whether a publish store is configured.
func (s *SnapshotService) CanPublish() bool {
	return s != nil && s.published != nil
}

// Save persists result as a new snapshot.
func (s *SnapshotService) Save(ctx context.Context, result *models.SignupResult) (*models.SignupSnapshot, error) {
	if s.snapshots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "snapshot storage not configured")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal signup result: %w", err)
	}
	snapshot := &models.SignupSnapshot{
		EventCode:   result.Meta.MainEventCode,
		MainEventID: result.Meta.MainEventID,
		MemberCount: len(result.Signups),
		Payload:     payload,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}
	s.logger.Info("signup snapshot saved", zap.String("id", snapshot.ID), zap.String("event_code", snapshot.EventCode))
	return snapshot, nil
}

// Get loads one snapshot.
func (s *SnapshotService) Get(ctx context.Context, id string) (*models.SignupSnapshot, error) {
	if s.snapshots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "snapshot storage not configured")
	}
	snapshot, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot not found")
		}
		return nil, err
	}
	return snapshot, nil
}

// List returns snapshot headers.
func (s *SnapshotService) List(ctx context.Context, filter models.SnapshotFilter) ([]models.SignupSnapshot, error) {
	if s.snapshots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "snapshot storage not configured")
	}
	return s.snapshots.List(ctx, filter)
}

// Publish replaces the published signup list for the result's event.
func (s *SnapshotService) Publish(ctx context.Context, result *models.SignupResult) error {
	if s.published == nil {
		return appErrors.Clone(appErrors.ErrInternal, "publishing not configured")
	}
	if err := s.published.Set(ctx, result.Meta.MainEventCode, result, s.publishTTL); err != nil {
		s.logger.Warn("publish signups failed", zap.String("event_code", result.Meta.MainEventCode), zap.Error(err))
		return err
	}
	return nil
}

// Published returns the last published signup list for eventCode.
func (s *SnapshotService) Published(ctx context.Context, eventCode string) (*models.SignupResult, error) {
	if s.published == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "publishing not configured")
	}
	var result models.SignupResult
	if err := s.published.Get(ctx, eventCode, &result); err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no published signups for %s", eventCode))
		}
		return nil, err
	}
	return &result, nil
}
