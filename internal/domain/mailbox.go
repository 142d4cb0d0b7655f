package domain

import (
	"strings"
	"time"
)

// Mailbox 表示创建成功的临时邮箱：地址与过期时间。
type Mailbox struct {
	Email    string    `json:"email"`
	ExpireAt time.Time `json:"expireAt"`
}

// LocalPart 返回地址 @ 之前的部分，没有 @ 时返回整个地址。
func LocalPart(address string) string {
	if i := strings.Index(address, "@"); i >= 0 {
		return address[:i]
	}
	return address
}

// DomainOf 返回地址第一个 @ 之后的部分；缺失或为空时返回 fallback。
func DomainOf(address, fallback string) string {
	i := strings.Index(address, "@")
	if i < 0 || i == len(address)-1 {
		return fallback
	}
	return address[i+1:]
}
