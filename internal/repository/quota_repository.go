package repository

import (
	"context"
	"time"

	"knova/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var quotaColumns = []string{
	"user_id", "monthly_quota", "used_quota", "reset_date", "updated_at",
}

type QuotaRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewQuotaRepository(db *pgxpool.Pool, logger *zap.Logger) *QuotaRepository {
	return &QuotaRepository{
		db:     db,
		logger: logger,
	}
}

func (r *QuotaRepository) Create(ctx context.Context, quota *models.Quota) error {
	query := squirrel.Insert("quotas").
		Columns(quotaColumns...).
		Values(quota.UserID, quota.MonthlyQuota, quota.UsedQuota, quota.ResetDate, quota.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *QuotaRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Quota, error) {
	query := squirrel.Select(quotaColumns...).
		From("quotas").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var quota models.Quota
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&quota.UserID, &quota.MonthlyQuota, &quota.UsedQuota, &quota.ResetDate, &quota.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &quota, nil
}

// Consume atomically adds tokens to used_quota and returns the updated row.
// The increment happens in one statement so concurrent generation calls from
// the same user can never interleave a read-modify-write. Negative token
// amounts are rejected at the SQL level by GREATEST.
func (r *QuotaRepository) Consume(ctx context.Context, userID uuid.UUID, tokens int64) (*models.Quota, error) {
	query := squirrel.Update("quotas").
		Set("used_quota", squirrel.Expr("used_quota + GREATEST(?, 0)", tokens)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"user_id": userID}).
		Suffix("RETURNING user_id, monthly_quota, used_quota, reset_date, updated_at").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var quota models.Quota
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&quota.UserID, &quota.MonthlyQuota, &quota.UsedQuota, &quota.ResetDate, &quota.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &quota, nil
}

// Reset zeroes used_quota and advances reset_date. Invoked by the scheduled
// monthly reset job, not by request handling.
func (r *QuotaRepository) Reset(ctx context.Context, userID uuid.UUID, nextReset time.Time) error {
	query := squirrel.Update("quotas").
		Set("used_quota", 0).
		Set("reset_date", nextReset).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}
