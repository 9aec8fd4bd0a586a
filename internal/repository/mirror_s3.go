package repository

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ordalo/filepress/internal/domain"
	"golang.org/x/sync/errgroup"
)

const resyncConcurrency = 4

// MirrorS3Repository replicates accepted files to an S3-compatible store
// (SeaweedFS, MinIO, or AWS itself) using AWS SDK v2. Mirroring is an
// after-the-fact copy: the local disk remains the source of truth.
type MirrorS3Repository struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// MirrorConfig holds the settings needed to reach the replica store
type MirrorConfig struct {
	Endpoint string
	Region   string
	Bucket   string
}

// NewMirrorS3Repository creates a new mirror repository
func NewMirrorS3Repository(ctx context.Context, cfg MirrorConfig) (*MirrorS3Repository, error) {
	// For SeaweedFS/MinIO we override endpoint resolution and use static
	// credentials "any"/"any" because these stores still require signatures
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("any", "any", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // Required for many S3-compatible stores
	})

	repo := &MirrorS3Repository{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: cfg.Endpoint,
	}

	// Ensure bucket exists
	if err := repo.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

// Upload saves a file to the mirror and returns its URL
func (r *MirrorS3Repository) Upload(ctx context.Context, file []byte, filename string, contentType string) (string, error) {
	key := filename

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to mirror: %w", err)
	}

	// Format: {Endpoint}/{Bucket}/{Key}
	url := fmt.Sprintf("%s/%s/%s", r.publicURL, r.bucket, key)
	return url, nil
}

// Resync walks the local store and re-uploads every file to the mirror, a
// bounded number at a time. Run at startup (MIRROR_RESYNC) or by an operator
// to recover from mirror downtime; the object key is the path relative to
// the store root.
func Resync(ctx context.Context, store *LocalStore, mirror domain.FileRepository) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resyncConcurrency)

	count := 0
	err := filepath.WalkDir(store.Root(), func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || isTempName(d.Name()) {
			return nil
		}
		key, err := filepath.Rel(store.Root(), path)
		if err != nil {
			return err
		}
		count++
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s for mirroring: %w", path, err)
			}
			_, err = mirror.Upload(ctx, data, filepath.ToSlash(key), domain.ContentTypeForExt(filepath.Ext(path)))
			return err
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return count, nil
}

// ensureBucket checks if bucket exists, creating it if necessary
func (r *MirrorS3Repository) ensureBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})

	if err != nil {
		_, err = r.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(r.bucket),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
		}
	}
	return nil
}

var _ domain.FileRepository = (*MirrorS3Repository)(nil)
