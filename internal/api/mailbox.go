package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tempmail/client/internal/domain"
)

// CreateMailbox 在指定域名下创建邮箱，邮箱密码取自会话标识
func (c *Client) CreateMailbox(ctx context.Context, mailDomain string) (*domain.Mailbox, error) {
	payload := map[string]string{}
	if mailDomain = strings.TrimSpace(mailDomain); mailDomain != "" {
		payload["domain"] = mailDomain
	}

	r, err := newRequest("create_mailbox", http.MethodPost, "/mailbox", payload)
	if err != nil {
		return nil, err
	}
	r.mailbox = true

	var mailbox domain.Mailbox
	if _, err := c.do(ctx, r, &mailbox); err != nil {
		return nil, err
	}
	if mailbox.Email == "" {
		return nil, fmt.Errorf("create mailbox: response carried no email address")
	}
	c.metrics.RecordMailboxCreated()
	return &mailbox, nil
}

// GetMailbox 拉取别名的邮件列表
func (c *Client) GetMailbox(ctx context.Context, alias string) (*domain.MailList, error) {
	r, err := newRequest("get_mailbox", http.MethodGet, "/mailbox/"+url.PathEscape(alias), nil)
	if err != nil {
		return nil, err
	}
	r.mailbox = true

	var list domain.MailList
	if _, err := c.do(ctx, r, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteMail 删除一封邮件，返回服务端提示
func (c *Client) DeleteMail(ctx context.Context, alias string, id domain.MailID) (string, error) {
	path := fmt.Sprintf("/mailbox/%s/mail/%s", url.PathEscape(alias), url.PathEscape(string(id)))
	r, err := newRequest("delete_mail", http.MethodDelete, path, nil)
	if err != nil {
		return "", err
	}
	r.mailbox = true

	var out struct {
		Message string `json:"message"`
	}
	msg, err := c.do(ctx, r, &out)
	if err != nil {
		return "", err
	}
	if out.Message != "" {
		return out.Message, nil
	}
	return msg, nil
}

// DownloadAttachment 把附件内容写入 w，返回附件信息
func (c *Client) DownloadAttachment(ctx context.Context, alias string, id domain.MailID, filename string, w io.Writer) (*domain.Attachment, error) {
	path := fmt.Sprintf("/mailbox/%s/mail/%s/attachment/%s",
		url.PathEscape(alias), url.PathEscape(string(id)), url.PathEscape(filename))
	r, err := newRequest("download_attachment", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	r.mailbox = true

	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindConnectivity, Op: r.op, Err: err}
	}
	return &domain.Attachment{
		MailID:      id,
		Filename:    filename,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        n,
	}, nil
}
