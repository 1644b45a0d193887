package service

import (
	"context"
	"fmt"
	"time"

	"knova/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InsufficientQuotaError rejects a generation call before any retrieval or
// generation work begins. Not retryable until the next reset or an admin
// raises the budget.
type InsufficientQuotaError struct {
	Remaining int64
	Required  int64
}

func (e *InsufficientQuotaError) Error() string {
	return fmt.Sprintf("insufficient quota: %d tokens remaining, %d required", e.Remaining, e.Required)
}

// QuotaStore is the authoritative relational ledger.
type QuotaStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Quota, error)
	Consume(ctx context.Context, userID uuid.UUID, tokens int64) (*models.Quota, error)
	Reset(ctx context.Context, userID uuid.UUID, nextReset time.Time) error
}

// QuotaService enforces and debits the per-user token budget. Redis serves as
// an atomic increment-with-expiry accelerator so concurrent generation calls
// from one user cannot double-spend through read-modify-write races; the
// Postgres row stays the source of truth and governs alone whenever the cache
// is unavailable.
type QuotaService struct {
	repo   QuotaStore
	cache  *redis.Client
	logger *zap.Logger
}

// NewQuotaService creates the ledger service. cache may be nil; everything
// then runs against the relational store only.
func NewQuotaService(repo QuotaStore, cache *redis.Client, logger *zap.Logger) *QuotaService {
	return &QuotaService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func usageKey(userID uuid.UUID) string {
	return "quota:used:" + userID.String()
}

// Check fails fast with InsufficientQuotaError when the remaining budget does
// not cover the required estimate. The cached counter is consulted when it is
// ahead of the relational row, which happens while a synchronous row update
// from a concurrent call is still in flight.
func (s *QuotaService) Check(ctx context.Context, userID uuid.UUID, required int64) error {
	quota, err := s.current(ctx, userID)
	if err != nil {
		return err
	}

	used := quota.UsedQuota
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, usageKey(userID)).Int64()
		switch {
		case err == nil && cached > used:
			used = cached
		case err != nil && err != redis.Nil:
			s.logger.Warn("Quota cache unavailable, relational ledger governs", zap.Error(err))
		}
	}

	remaining := quota.MonthlyQuota - used
	if remaining < required {
		return &InsufficientQuotaError{Remaining: remaining, Required: required}
	}

	return nil
}

// Consume records actual usage after a generation call completed. Usage can
// exceed the pre-check estimate; the overage is still recorded with a warning
// and the produced answer stays with the caller. Enforcement happens at
// entry, never retroactively.
func (s *QuotaService) Consume(ctx context.Context, userID uuid.UUID, tokens int64) error {
	if tokens < 0 {
		tokens = 0
	}

	quota, err := s.repo.Consume(ctx, userID, tokens)
	if err != nil {
		return fmt.Errorf("failed to debit quota ledger: %w", err)
	}

	if s.cache != nil {
		key := usageKey(userID)
		if _, err := s.cache.IncrBy(ctx, key, tokens).Result(); err != nil {
			s.logger.Warn("Quota cache increment failed", zap.Error(err))
		} else if err := s.cache.ExpireAt(ctx, key, quota.ResetDate).Err(); err != nil {
			s.logger.Warn("Quota cache expiry update failed", zap.Error(err))
		}
	}

	if quota.UsedQuota > quota.MonthlyQuota {
		s.logger.Warn("Quota exceeded, overage recorded",
			zap.String("user_id", userID.String()),
			zap.Int64("used", quota.UsedQuota),
			zap.Int64("monthly", quota.MonthlyQuota),
		)
	}

	return nil
}

// Usage reports the current period's budget state, rolling the period over
// first when its reset date has passed.
func (s *QuotaService) Usage(ctx context.Context, userID uuid.UUID) (*models.Quota, error) {
	return s.current(ctx, userID)
}

// current reads the ledger row and performs a lazy period rollover: the
// first read past ResetDate zeroes the counter and advances the date by one
// month. The cache key expires at ResetDate on its own.
func (s *QuotaService) current(ctx context.Context, userID uuid.UUID) (*models.Quota, error) {
	quota, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota ledger: %w", err)
	}

	if !time.Now().Before(quota.ResetDate) {
		nextReset := quota.ResetDate.AddDate(0, 1, 0)
		for !time.Now().Before(nextReset) {
			nextReset = nextReset.AddDate(0, 1, 0)
		}
		if err := s.repo.Reset(ctx, userID, nextReset); err != nil {
			return nil, fmt.Errorf("failed to roll quota period over: %w", err)
		}
		quota.UsedQuota = 0
		quota.ResetDate = nextReset

		s.logger.Info("Quota period rolled over",
			zap.String("user_id", userID.String()),
			zap.Time("next_reset", nextReset),
		)
	}

	return quota, nil
}
