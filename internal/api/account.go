package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"tempmail/client/internal/domain"
)

// ListDomains 获取可用于生成别名的域名
//
// 服务端可能返回字符串数组或 {domain} 对象数组。
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	r, err := newRequest("list_domains", http.MethodGet, "/domains", nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if _, err := c.do(ctx, r, &raw); err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return names, nil
	}
	var objects []struct {
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("failed to decode domain list: %w", err)
	}
	names = make([]string, 0, len(objects))
	for _, o := range objects {
		if o.Domain != "" {
			names = append(names, o.Domain)
		}
	}
	return names, nil
}

// Ping 检查 API 是否可达，任何 HTTP 响应都视为可达
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListDomains(ctx)
	if err == nil || (KindOf(err) != KindConnectivity && ctx.Err() == nil) {
		return nil
	}
	return err
}

// ========== 自定义域名 ==========

// ListUserDomains 列出用户的自定义域名
func (c *Client) ListUserDomains(ctx context.Context) ([]domain.UserDomain, error) {
	var out []domain.UserDomain
	if err := c.call(ctx, "list_user_domains", http.MethodGet, "/user/domains", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddUserDomain 添加自定义域名
func (c *Client) AddUserDomain(ctx context.Context, req domain.AddUserDomainRequest) (*domain.UserDomain, error) {
	var out domain.UserDomain
	if err := c.call(ctx, "add_user_domain", http.MethodPost, "/user/domains", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyUserDomain 触发域名所有权验证
func (c *Client) VerifyUserDomain(ctx context.Context, id string) (*domain.UserDomain, error) {
	var out domain.UserDomain
	path := "/user/domains/" + url.PathEscape(id) + "/verify"
	if err := c.call(ctx, "verify_user_domain", http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUserDomain 删除自定义域名
func (c *Client) DeleteUserDomain(ctx context.Context, id string) error {
	return c.call(ctx, "delete_user_domain", http.MethodDelete, "/user/domains/"+url.PathEscape(id), nil, nil)
}

// ========== API Key ==========

// ListAPIKeys 列出 API Key（不含明文）
func (c *Client) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	var out []domain.APIKey
	if err := c.call(ctx, "list_api_keys", http.MethodGet, "/api-keys", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAPIKey 创建 API Key，明文只在创建时返回一次
func (c *Client) CreateAPIKey(ctx context.Context, req domain.CreateAPIKeyRequest) (*domain.APIKey, error) {
	var out domain.APIKey
	if err := c.call(ctx, "create_api_key", http.MethodPost, "/api-keys", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAPIKey 删除 API Key
func (c *Client) DeleteAPIKey(ctx context.Context, id string) error {
	return c.call(ctx, "delete_api_key", http.MethodDelete, "/api-keys/"+url.PathEscape(id), nil, nil)
}

// ========== 团队 ==========

// ListTeamMembers 列出团队成员
func (c *Client) ListTeamMembers(ctx context.Context) ([]domain.TeamMember, error) {
	var out []domain.TeamMember
	if err := c.call(ctx, "list_team_members", http.MethodGet, "/team/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InviteTeamMember 邀请成员
func (c *Client) InviteTeamMember(ctx context.Context, req domain.InviteRequest) (*domain.TeamMember, error) {
	var out domain.TeamMember
	if err := c.call(ctx, "invite_team_member", http.MethodPost, "/team/members", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveTeamMember 移除成员
func (c *Client) RemoveTeamMember(ctx context.Context, id string) error {
	return c.call(ctx, "remove_team_member", http.MethodDelete, "/team/members/"+url.PathEscape(id), nil, nil)
}

// ========== 订阅 ==========

// GetSubscription 获取当前订阅
func (c *Client) GetSubscription(ctx context.Context) (*domain.Subscription, error) {
	var out domain.Subscription
	if err := c.call(ctx, "get_subscription", http.MethodGet, "/subscription", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPlans 列出可订阅的套餐
func (c *Client) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	var out []domain.Plan
	if err := c.call(ctx, "list_plans", http.MethodGet, "/plans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, payload, out any) error {
	r, err := newRequest(op, method, path, payload)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, r, out)
	return err
}
