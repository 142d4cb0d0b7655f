package domain

// Attachment 下载到本地的邮件附件元数据。
type Attachment struct {
	MailID      MailID `json:"mailId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"` // 实际写出的字节数
}
