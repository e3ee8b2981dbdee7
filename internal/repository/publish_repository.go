package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// PublishRepository keeps the latest published signup list per event in Redis.
type PublishRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewPublishRepository constructs a publish repository. Keys are prefix:<event_code>.
func NewPublishRepository(client *redis.Client, prefix string, logger *zap.Logger) *PublishRepository {
	if prefix == "" {
		prefix = "signups"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishRepository{client: client, prefix: prefix, logger: logger}
}

func (r *PublishRepository) key(eventCode string) string {
	return fmt.Sprintf("%s:%s", r.prefix, eventCode)
}

// Get decodes the list last published for eventCode into dest. A missing or
// expired key is CACHE_MISS.
func (r *PublishRepository) Get(ctx context.Context, eventCode string, dest interface{}) error {
	if r.client == nil || eventCode == "" {
		return appErrors.ErrCacheMiss
	}
	key := r.key(eventCode)
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.Clone(appErrors.ErrCacheMiss, "nothing published for "+eventCode)
	case err != nil:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "read published signups")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "decode published signups")
	}
	return nil
}

// Set replaces the published list for eventCode. The key expires after ttl;
// ttl <= 0 keeps it until the next publish.
func (r *PublishRepository) Set(ctx context.Context, eventCode string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if eventCode == "" {
		return appErrors.Clone(appErrors.ErrValidation, "event code is required to publish")
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "encode published signups")
	}
	if ttl < 0 {
		ttl = 0
	}
	key := r.key(eventCode)
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "write published signups")
	}
	r.logger.Debug("published signups", zap.String("event_code", eventCode), zap.Int("bytes", len(payload)), zap.Duration("ttl", ttl))
	return nil
}
