// Package s3backup uploads and restores pipeline snapshots in an S3-compatible bucket.
package s3backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/manovate/crm/internal/app"
)

const (
	defaultRegion = "us-east-1"
	defaultPrefix = "manovate/snapshots"
	contentType   = "application/json"
	keyTimeLayout = "20060102T150405Z"
)

// ErrNoBackups reports an empty backup prefix.
var ErrNoBackups = errors.New("no backups found")

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds bucket coordinates and optional static credentials.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Backup describes one stored snapshot object.
type Backup struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store writes snapshots under <prefix>/<timestamp>-<uuid>.json.
type Store struct {
	client objectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// New builds a Store from the default AWS config chain, overridden by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg), nil
}

func newStore(client objectAPI, cfg Config) *Store {
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: prefix, now: time.Now}
}

// Upload stores snap as a new object and returns its descriptor.
func (s *Store) Upload(ctx context.Context, snap app.Snapshot) (Backup, error) {
	if err := snap.Validate(); err != nil {
		return Backup{}, err
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Backup{}, fmt.Errorf("encode snapshot: %w", err)
	}
	now := s.now().UTC()
	key := path.Join(s.prefix, fmt.Sprintf("%s-%s.json", now.Format(keyTimeLayout), uuid.NewString()))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"snapshot-version": snap.Version,
			"deal-count":       fmt.Sprint(len(snap.Deals)),
		},
	})
	if err != nil {
		return Backup{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Backup{Key: key, Size: int64(len(payload)), LastModified: now}, nil
}

// Download fetches and validates the snapshot stored at key.
func (s *Store) Download(ctx context.Context, key string) (app.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return app.Snapshot{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() {
		_ = out.Body.Close()
	}()
	var snap app.Snapshot
	if err := json.NewDecoder(io.LimitReader(out.Body, 64<<20)).Decode(&snap); err != nil {
		return app.Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := snap.Validate(); err != nil {
		return app.Snapshot{}, err
	}
	return snap, nil
}

// List returns every backup under the prefix, newest first.
func (s *Store) List(ctx context.Context) ([]Backup, error) {
	prefix := s.prefix + "/"
	var (
		out   []Backup
		token *string
	)
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			out = append(out, Backup{Key: key, Size: aws.ToInt64(obj.Size), LastModified: aws.ToTime(obj.LastModified)})
		}
		if aws.ToBool(page.IsTruncated) && page.NextContinuationToken != nil {
			token = page.NextContinuationToken
			continue
		}
		break
	}
	slices.SortFunc(out, func(a, b Backup) int { return strings.Compare(b.Key, a.Key) })
	return out, nil
}

// Latest downloads the newest backup.
func (s *Store) Latest(ctx context.Context) (app.Snapshot, Backup, error) {
	backups, err := s.List(ctx)
	if err != nil {
		return app.Snapshot{}, Backup{}, err
	}
	if len(backups) == 0 {
		return app.Snapshot{}, Backup{}, ErrNoBackups
	}
	snap, err := s.Download(ctx, backups[0].Key)
	if err != nil {
		return app.Snapshot{}, Backup{}, err
	}
	return snap, backups[0], nil
}
