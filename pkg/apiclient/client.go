package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/rbac"
	vregistry "github.com/vaultadmin/pkg/registry"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// envelope 后端统一响应结构
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client 控制台访问后端 REST API 的客户端
// 同一个 Client 可以通过 WithToken 派生出携带不同令牌的副本，共享底层连接池
type Client struct {
	endpoint func() (string, error)
	http     *fasthttp.Client
	timeout  time.Duration
	token    string
}

// New 创建固定地址的客户端
func New(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(baseURL, "/")
	return newClient(func() (string, error) { return base, nil }, timeout)
}

// NewDiscovered 创建通过注册中心发现地址的客户端，每次请求时重新解析
func NewDiscovered(reg registry.Registry, service string, timeout time.Duration) *Client {
	return newClient(func() (string, error) {
		return vregistry.Resolve(reg, service)
	}, timeout)
}

func newClient(endpoint func() (string, error), timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http: &fasthttp.Client{
			Name:                     "vaultadmin-console",
			MaxIdleConnDuration:      30 * time.Second,
			NoDefaultUserAgentHeader: true,
		},
		timeout: timeout,
	}
}

// WithToken 返回携带指定令牌的副本
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token 当前令牌
func (c *Client) Token() string {
	return c.token
}

// do 发送请求并解析统一响应，out 为 nil 时忽略 data
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base, err := c.endpoint()
	if err != nil {
		return errors.Wrap(fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err), errors.ErrBackendUnavailable.Code, errors.ErrBackendUnavailable.Message)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(base + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		logger.Warn("后端请求失败",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return errors.Wrap(fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err), errors.ErrBackendUnavailable.Code, errors.ErrBackendUnavailable.Message)
	}

	status := resp.StatusCode()
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		if status >= fasthttp.StatusBadRequest {
			return errors.Backend(status, "")
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success || status >= fasthttp.StatusBadRequest {
		return errors.Backend(status, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// LoginResult 登录结果
type LoginResult struct {
	Token string      `json:"token"`
	User  identity.Me `json:"user"`
}

// Login 使用邮箱密码登录
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, fasthttp.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMe 获取当前用户，roleId 可能已展开为角色对象
func (c *Client) GetMe(ctx context.Context) (*identity.Me, error) {
	var out struct {
		User identity.Me `json:"user"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// GetRoles 获取自定义角色列表
func (c *Client) GetRoles(ctx context.Context) ([]rbac.CustomRole, error) {
	var out struct {
		Roles []rbac.CustomRole `json:"roles"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/roles", nil, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// GetRoleByID 获取单个角色
func (c *Client) GetRoleByID(ctx context.Context, id string) (*identity.Role, error) {
	var out struct {
		Role identity.Role `json:"role"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/roles/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Role, nil
}

// CreateRole 创建角色
func (c *Client) CreateRole(ctx context.Context, payload rbac.RolePayload) (*rbac.CustomRole, error) {
	var out struct {
		Role rbac.CustomRole `json:"role"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/roles", payload, &out); err != nil {
		return nil, err
	}
	return &out.Role, nil
}

// UpdateRole 更新角色
func (c *Client) UpdateRole(ctx context.Context, id string, payload rbac.RolePayload) (*rbac.CustomRole, error) {
	var out struct {
		Role rbac.CustomRole `json:"role"`
	}
	if err := c.do(ctx, fasthttp.MethodPut, "/roles/"+url.PathEscape(id), payload, &out); err != nil {
		return nil, err
	}
	return &out.Role, nil
}

// DeleteRole 删除角色
func (c *Client) DeleteRole(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/roles/"+url.PathEscape(id), nil, nil)
}

// AssignUserRole 为用户分配角色
func (c *Client) AssignUserRole(ctx context.Context, userID string, assignment rbac.RoleAssignment) error {
	return c.do(ctx, fasthttp.MethodPut, "/users/"+url.PathEscape(userID)+"/role", assignment, nil)
}

var (
	_ rbac.Backend = (*Client)(nil)
	_ rbac.RoleAPI = (*Client)(nil)
)
