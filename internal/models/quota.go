package models

import (
	"time"

	"github.com/google/uuid"
)

// Quota is the per-user token budget for one billing period. UsedQuota is
// monotonically non-decreasing within a period; a scheduled reset zeroes it
// and advances ResetDate to the first day of the next month.
type Quota struct {
	UserID       uuid.UUID `db:"user_id"`
	MonthlyQuota int64     `db:"monthly_quota"`
	UsedQuota    int64     `db:"used_quota"`
	ResetDate    time.Time `db:"reset_date"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Remaining reports how many tokens are left in the current period. It can be
// negative after an overage consume.
func (q *Quota) Remaining() int64 {
	return q.MonthlyQuota - q.UsedQuota
}
