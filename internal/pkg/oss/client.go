package oss

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/devhance_server/config"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
)

// Client 将无法解析的生成结果归档到 OSS
type Client struct {
	bucket *oss.Bucket
	prefix string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("oss endpoint and bucket required: %w", apperr.ErrConfiguration)
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{bucket: bucket, prefix: cfg.Prefix}, nil
}

// Archive 上传原始文本，key 相对于配置的前缀
func (c *Client) Archive(ctx context.Context, key string, data []byte) error {
	objectKey := objectKey(c.prefix, key)
	err := c.bucket.PutObject(objectKey, bytes.NewReader(data),
		oss.ContentType(contentType(key)), oss.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", objectKey, err)
	}
	return nil
}

func objectKey(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return path.Join(strings.Trim(prefix, "/"), key)
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
