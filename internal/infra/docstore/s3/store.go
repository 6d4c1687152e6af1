// Package s3 implements the document store on an S3-compatible bucket, one JSON
// object per document.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"engagement/internal/docstore/core"
	"engagement/pkg/domain"
)

var _ core.Store = (*Store)(nil)

const objectSuffix = ".json"

// Store maps document paths to object keys "<prefix><path>.json".
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config holds explicit construction parameters.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; if set enables custom endpoint (e.g. MinIO)
	PathStyle bool
	// Prefix namespaces every object key, e.g. "engagement/".
	Prefix string
}

// New creates an S3 document store from Config. Credentials come from the default
// AWS chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Driver reports the backend kind.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

func (s *Store) key(path string) string {
	return s.prefix + core.CleanPath(path) + objectSuffix
}

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (domain.Document, bool, error) {
	if err := core.ValidateDocumentPath(path); err != nil {
		return domain.Document{}, false, err
	}
	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if isNotFound(err) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = out.Body.Close() }()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	data, err := core.Decode(body)
	if err != nil {
		return domain.Document{}, false, err
	}
	clean := core.CleanPath(path)
	return domain.Document{ID: domain.IDOf(clean), Path: clean, Data: data}, true, nil
}

// Create stores data under a generated id.
func (s *Store) Create(ctx context.Context, collection string, data map[string]any) (domain.Document, error) {
	if err := core.ValidateCollectionPath(collection); err != nil {
		return domain.Document{}, err
	}
	path := domain.JoinPath(collection, core.NewID())
	if err := s.Set(ctx, path, data); err != nil {
		return domain.Document{}, err
	}
	normalized, err := core.Normalize(data)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: domain.IDOf(path), Path: path, Data: normalized}, nil
}

// Set creates or replaces the document at path.
func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	if err := core.ValidateDocumentPath(path); err != nil {
		return err
	}
	body, err := core.Encode(data)
	if err != nil {
		return err
	}
	key := s.key(path)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Delete removes the document at path; S3 deletes of missing keys succeed.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := core.ValidateDocumentPath(path); err != nil {
		return err
	}
	key := s.key(path)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// DeleteBatch deletes paths one by one and stops at the first failure. S3 offers
// no multi-object transaction, so a failed batch may be partially applied.
func (s *Store) DeleteBatch(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := core.ValidateDocumentPath(p); err != nil {
			return err
		}
	}
	for _, p := range paths {
		if err := s.Delete(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Query lists the direct children of q.Collection with a delimiter listing and
// evaluates q over their bodies.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := core.ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	listPrefix := s.prefix + core.CleanPath(q.Collection) + "/"
	var docs []domain.Document
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &listPrefix,
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", q.Collection, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, objectSuffix) {
				continue
			}
			path := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), objectSuffix)
			doc, ok, err := s.Get(ctx, path)
			if err != nil {
				return nil, err
			}
			if ok {
				docs = append(docs, doc)
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	return core.Apply(docs, q), nil
}

// Close is a no-op; the SDK client holds no resources needing release.
func (s *Store) Close() error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
