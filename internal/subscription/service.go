// AngelaMos | 2026
// service.go

package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/core"
)

const historyLimit = 50

type cachedTier struct {
	tier   access.Tier
	active bool
}

// Service resolves the tier a user is entitled to. Lookups are cached for a
// short TTL; every write through SetSubscription evicts the user's entry.
type Service struct {
	repo   Repository
	cache  *expirable.LRU[string, cachedTier]
	logger *slog.Logger
	now    func() time.Time
}

func NewService(
	repo Repository,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:   repo,
		cache:  expirable.NewLRU[string, cachedTier](cacheSize, nil, cacheTTL),
		logger: logger,
		now:    time.Now,
	}
}

// GetUserTier returns ok=false when the user has no subscription or it is
// not currently active. Errors are never cached.
func (s *Service) GetUserTier(
	ctx context.Context,
	userID string,
) (access.Tier, bool, error) {
	if entry, ok := s.cache.Get(userID); ok {
		return entry.tier, entry.active, nil
	}

	sub, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		s.cache.Add(userID, cachedTier{})
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	entry := cachedTier{active: sub.IsActive(s.now()) && sub.Tier.Valid()}
	if entry.active {
		entry.tier = sub.Tier
	}
	s.cache.Add(userID, entry)

	return entry.tier, entry.active, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*Subscription, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *Service) SetSubscription(
	ctx context.Context,
	userID string,
	req SetSubscriptionRequest,
	changedBy string,
) (*Subscription, error) {
	tier, err := access.ParseTier(req.Tier)
	if err != nil {
		return nil, fmt.Errorf("set subscription: %w", core.ErrInvalidInput)
	}

	sub := &Subscription{
		UserID:           userID,
		Tier:             tier,
		Status:           Status(req.Status),
		CurrentPeriodEnd: req.CurrentPeriodEnd,
	}

	if err := s.repo.Upsert(ctx, sub, changedBy); err != nil {
		return nil, err
	}

	s.cache.Remove(userID)
	s.logger.Info("subscription updated",
		"user_id", userID,
		"tier", sub.Tier,
		"status", sub.Status,
		"changed_by", changedBy,
	)

	return sub, nil
}

func (s *Service) List(
	ctx context.Context,
	params ListParams,
) ([]Subscription, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) History(ctx context.Context, userID string) ([]Event, error) {
	return s.repo.History(ctx, userID, historyLimit)
}

func (s *Service) Now() time.Time {
	return s.now()
}
