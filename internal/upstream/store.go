package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/any-hub/asset-cache/internal/asset"
)

// ErrNotFound 表示上游确认资产不存在。
var ErrNotFound = errors.New("asset not found upstream")

// Store 是权威资产存储的最小接口。
type Store interface {
	Get(ctx context.Context, id string) (*asset.Asset, error)
	Put(ctx context.Context, a *asset.Asset) error
}

// Options 汇总构造后端所需的参数，各后端只读取自己关心的字段。
type Options struct {
	Type      string
	URL       string
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Timeout   time.Duration

	// Client 由调用方注入共享的 http.Client，为空时后端自行创建。
	Client *http.Client
}
