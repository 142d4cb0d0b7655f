package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// MailID 邮件标识。服务端可能返回字符串或数字，统一按字符串处理。
type MailID string

// UnmarshalJSON 同时接受 JSON 字符串和数字
func (id *MailID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MailID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = MailID(n.String())
	return nil
}

// MailSummary 收件箱列表中的一封邮件。
type MailSummary struct {
	ID          MailID    `json:"id"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"receivedAt"`
	Attachments []string  `json:"attachments,omitempty"` // 附件文件名
}

// MailList 是 GET /mailbox/{alias} 的响应。
type MailList struct {
	Mails     []MailSummary `json:"mails"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// MailSnapshot 一次收件箱拉取得到的完整邮件列表，整体替换，不做合并。
type MailSnapshot []MailSummary

// IDs 返回快照中全部邮件 ID 的集合
func (s MailSnapshot) IDs() map[MailID]struct{} {
	ids := make(map[MailID]struct{}, len(s))
	for _, m := range s {
		ids[m.ID] = struct{}{}
	}
	return ids
}

// NewSince 返回 s 中不在 prev 里的邮件，保持原顺序
func (s MailSnapshot) NewSince(prev MailSnapshot) []MailSummary {
	seen := prev.IDs()
	var fresh []MailSummary
	for _, m := range s {
		if _, ok := seen[m.ID]; !ok {
			fresh = append(fresh, m)
		}
	}
	return fresh
}
