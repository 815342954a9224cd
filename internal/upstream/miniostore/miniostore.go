// Package miniostore 将资产保存为 S3 兼容对象存储中的单个对象：
// 正文为对象内容，类型/名称等元数据写入对象的用户元数据。
package miniostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/upstream"
)

const (
	metaType        = "Asset-Type"
	metaName        = "Asset-Name"
	metaDescription = "Asset-Description"
	metaCreator     = "Asset-Creator"
	metaFlags       = "Asset-Flags"
	metaLocal       = "Asset-Local"
	metaTemporary   = "Asset-Temporary"

	userMetaPrefix = "X-Amz-Meta-"
)

func init() {
	upstream.MustRegister(upstream.Backend{
		Key:         "minio",
		Description: "S3 compatible object store",
		Factory: func(opts upstream.Options) (upstream.Store, error) {
			return Open(opts)
		},
	})
}

// Store 是对象存储上游实现。
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// Open 根据 Endpoint/凭证创建 minio 客户端。
func Open(opts upstream.Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("缺少对象存储 Endpoint")
	}
	if opts.Bucket == "" {
		return nil, errors.New("缺少对象存储 Bucket")
	}
	mopts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	}
	if opts.Client != nil && opts.Client.Transport != nil {
		mopts.Transport = opts.Client.Transport
	}
	client, err := minio.New(opts.Endpoint, mopts)
	if err != nil {
		return nil, err
	}
	return NewStore(client, opts.Bucket, opts.Prefix), nil
}

// NewStore 使用已有客户端构造 Store，prefix 会拼接在每个对象键之前。
func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(id string) string {
	return path.Join(s.prefix, id)
}

// Get 读取对象内容与元数据；NoSuchKey 映射为 upstream.ErrNotFound。
func (s *Store) Get(ctx context.Context, id string) (*asset.Asset, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(id, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, mapError(id, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(id, err)
	}
	a := fromMetadata(id, info.Metadata)
	a.Data = data
	return a, nil
}

// Put 以单次 PutObject 写入资产。
func (s *Store) Put(ctx context.Context, a *asset.Asset) error {
	if a == nil || a.ID == "" {
		return errors.New("asset id is required")
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(a.ID), bytes.NewReader(a.Data), int64(len(a.Data)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: toMetadata(a),
	})
	return err
}

func mapError(id string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", id, upstream.ErrNotFound)
	}
	return err
}

// toMetadata 生成用户元数据；文本字段做 URL 转义，保证头部只含 ASCII。
func toMetadata(a *asset.Asset) map[string]string {
	return map[string]string{
		metaType:        strconv.Itoa(int(a.Type)),
		metaName:        url.QueryEscape(a.Name),
		metaDescription: url.QueryEscape(a.Description),
		metaCreator:     a.CreatorID,
		metaFlags:       strconv.FormatUint(uint64(a.Flags), 10),
		metaLocal:       strconv.FormatBool(a.Local),
		metaTemporary:   strconv.FormatBool(a.Temporary),
	}
}

func fromMetadata(id string, h http.Header) *asset.Asset {
	get := func(key string) string { return h.Get(userMetaPrefix + key) }
	unescape := func(raw string) string {
		if v, err := url.QueryUnescape(raw); err == nil {
			return v
		}
		return raw
	}

	a := &asset.Asset{
		ID:          id,
		Type:        asset.TypeUnknown,
		Name:        unescape(get(metaName)),
		Description: unescape(get(metaDescription)),
		CreatorID:   get(metaCreator),
	}
	if v, err := strconv.ParseInt(get(metaType), 10, 8); err == nil {
		a.Type = asset.Type(v)
	}
	if v, err := strconv.ParseUint(get(metaFlags), 10, 32); err == nil {
		a.Flags = uint32(v)
	}
	a.Local, _ = strconv.ParseBool(get(metaLocal))
	a.Temporary, _ = strconv.ParseBool(get(metaTemporary))
	return a
}
