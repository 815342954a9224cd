// Package httpstore 通过 HTTP/JSON 访问远端资产服务：
// GET {URL}/assets/{id} 读取，POST {URL}/assets/{id} 写入。
package httpstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/upstream"
)

// maxBodyBytes 限制单个资产响应体大小。
const maxBodyBytes = 256 << 20

func init() {
	upstream.MustRegister(upstream.Backend{
		Key:         "http",
		Description: "remote asset service over HTTP/JSON",
		Factory: func(opts upstream.Options) (upstream.Store, error) {
			return New(opts)
		},
	})
}

// Store 是 HTTP 上游实现。
type Store struct {
	base   *url.URL
	client *http.Client
	auth   string
}

// New 校验 URL 并构造 Store；opts.Client 为空时使用带超时的默认客户端。
func New(opts upstream.Options) (*Store, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if raw == "" {
		return nil, errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Store{
		base:   parsed,
		client: client,
		auth:   buildCredentialHeader(opts.AccessKey, opts.SecretKey),
	}, nil
}

func (s *Store) assetURL(id string) string {
	return s.base.JoinPath("assets", id).String()
}

// Get 拉取资产；404 映射为 upstream.ErrNotFound。
func (s *Store) Get(ctx context.Context, id string) (*asset.Asset, error) {
	req, err := s.newRequest(ctx, http.MethodGet, id, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: %w", id, upstream.ErrNotFound)
	default:
		return nil, fmt.Errorf("上游返回异常状态 %d: %s", resp.StatusCode, id)
	}

	var a asset.Asset
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&a); err != nil {
		return nil, fmt.Errorf("解析上游响应失败: %w", err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return &a, nil
}

// Put 以 JSON 提交资产，2xx 视为成功。
func (s *Store) Put(ctx context.Context, a *asset.Asset) error {
	if a == nil || a.ID == "" {
		return errors.New("asset id is required")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	req, err := s.newRequest(ctx, http.MethodPost, a.ID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("上游拒绝写入 %s: status %d", a.ID, resp.StatusCode)
	}
	return nil
}

func (s *Store) newRequest(ctx context.Context, method, id string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, s.assetURL(id), body)
	if err != nil {
		return nil, err
	}
	if s.auth != "" {
		req.Header.Set("Authorization", s.auth)
	}
	return req, nil
}

func buildCredentialHeader(username, password string) string {
	if username == "" || password == "" {
		return ""
	}
	token := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}
