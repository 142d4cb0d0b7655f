package domain

import "time"

// DomainMode 域名模式
type DomainMode string

const (
	// DomainModeShared 共享模式（免费）- 任何人都可以创建该域名下的邮箱
	DomainModeShared DomainMode = "shared"
	// DomainModeExclusive 独享模式（付费）- 只有所有者可以创建该域名下的邮箱
	DomainModeExclusive DomainMode = "exclusive"
	// DomainModeCatchAll 通配模式 - 捕获所有发往该域名的邮件
	DomainModeCatchAll DomainMode = "catch_all"
)

// DomainStatus 域名状态
type DomainStatus string

const (
	DomainStatusPending  DomainStatus = "pending"
	DomainStatusVerified DomainStatus = "verified"
	DomainStatusFailed   DomainStatus = "failed"
	DomainStatusExpired  DomainStatus = "expired"
)

// UserDomain 账号下的自定义域名
type UserDomain struct {
	ID           string       `json:"id"`
	Domain       string       `json:"domain"`
	Mode         DomainMode   `json:"mode"`
	Status       DomainStatus `json:"status"`
	VerifyToken  string       `json:"verifyToken,omitempty"`
	VerifyMethod string       `json:"verifyMethod,omitempty"`
	VerifiedAt   *time.Time   `json:"verifiedAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	MXRecords    []string     `json:"mxRecords,omitempty"`
	IsActive     bool         `json:"isActive"`
	MailboxCount int          `json:"mailboxCount"`
}

// IsVerified 域名是否已通过验证
func (d *UserDomain) IsVerified() bool {
	return d.Status == DomainStatusVerified
}

// AddUserDomainRequest 添加自定义域名
type AddUserDomainRequest struct {
	Domain string     `json:"domain"`
	Mode   DomainMode `json:"mode,omitempty"`
}
