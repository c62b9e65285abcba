// Package objectstore wraps the S3-compatible bucket holding user-uploaded
// PDFs. Uploads never pass through the API process: clients receive a
// presigned PUT and write the bucket directly.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/litgraph/backend/internal/config"
	"github.com/litgraph/backend/internal/domain"
)

type Client struct {
	s3        *s3.Client
	presigner *s3.PresignClient
	bucket    string
	hostnames map[string]struct{}
}

func NewClient(ctx context.Context, cfg config.ObjectStoreConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "objectstore: load aws config")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	hostnames := make(map[string]struct{}, len(cfg.Hostnames)+1)
	for _, h := range cfg.Hostnames {
		hostnames[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	if cfg.Endpoint != "" {
		if u, err := url.Parse(cfg.Endpoint); err == nil && u.Hostname() != "" {
			hostnames[strings.ToLower(u.Hostname())] = struct{}{}
		}
	}

	return &Client{
		s3:        s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    cfg.Bucket,
		hostnames: hostnames,
	}, nil
}

// PresignPut returns a presigned PUT URL for one object key.
func (c *Client) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", domain.Ef(domain.KindInternal, err, "objectstore: presign put %s", key)
	}
	return req.URL, nil
}

// Exists reports whether the object key is present in the bucket.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, domain.Ef(domain.KindProviderUnavailable, err, "objectstore: head %s", key)
	}
	return true, nil
}

// GetBytes downloads an object, rejecting anything over maxBytes.
func (c *Client) GetBytes(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, domain.E(domain.KindNotFound, "objectstore: no object "+key)
		}
		return nil, domain.Ef(domain.KindProviderUnavailable, err, "objectstore: get %s", key)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > maxBytes {
		return nil, domain.E(domain.KindTooLarge,
			fmt.Sprintf("objectstore: object %s is %d bytes, limit %d", key, *out.ContentLength, maxBytes))
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, maxBytes+1))
	if err != nil {
		return nil, domain.Ef(domain.KindNetwork, err, "objectstore: read %s", key)
	}
	if int64(len(data)) > maxBytes {
		return nil, domain.E(domain.KindTooLarge,
			fmt.Sprintf("objectstore: object %s exceeds %d bytes", key, maxBytes))
	}
	return data, nil
}

// Put writes an object directly. Used by tests and internal re-ingestion, not
// by the upload path.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.Ef(domain.KindProviderUnavailable, err, "objectstore: put %s", key)
	}
	return nil
}

// KeyFromURL recognizes URLs pointing into this bucket and extracts the
// object key. Both path-style (host/bucket/key) and virtual-hosted
// (bucket.host/key) forms are handled.
func (c *Client) KeyFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	path := strings.TrimPrefix(u.Path, "/")

	if _, ok := c.hostnames[host]; ok {
		if key, found := strings.CutPrefix(path, c.bucket+"/"); found {
			return key, true
		}
		return path, path != ""
	}
	if _, ok := c.hostnames[strings.TrimPrefix(host, c.bucket+".")]; ok && strings.HasPrefix(host, c.bucket+".") {
		return path, path != ""
	}
	return "", false
}

func (c *Client) Bucket() string { return c.bucket }

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return domain.Ef(domain.KindProviderUnavailable, err, "objectstore: head bucket %s", c.bucket)
	}
	return nil
}
