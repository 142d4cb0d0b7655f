package domain

import "time"

// UserTier 套餐等级
type UserTier string

const (
	TierFree       UserTier = "free"
	TierBasic      UserTier = "basic"
	TierPro        UserTier = "pro"
	TierEnterprise UserTier = "enterprise"
)

// Plan 可订阅的套餐
type Plan struct {
	ID            string   `json:"id"`
	Tier          UserTier `json:"tier"`
	Name          string   `json:"name"`
	MonthlyPrice  float64  `json:"monthlyPrice"`
	Currency      string   `json:"currency"`
	MaxDomains    int      `json:"maxDomains"`
	MaxAPIKeys    int      `json:"maxApiKeys"`
	MaxTeamSeats  int      `json:"maxTeamSeats"`
	RetentionDays int      `json:"retentionDays"`
}

// Subscription 当前账号的订阅状态
type Subscription struct {
	Tier             UserTier   `json:"tier"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtEnd      bool       `json:"cancelAtPeriodEnd"`
}
