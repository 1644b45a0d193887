package dto

type QuotaResponse struct {
	MonthlyQuota int64  `json:"monthly_quota"`
	UsedQuota    int64  `json:"used_quota"`
	Remaining    int64  `json:"remaining"`
	ResetDate    string `json:"reset_date"`
}
