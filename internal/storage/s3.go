package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nukevideo/nukevideo/internal/config"
)

// S3Store implements ObjectStore against an S3-compatible bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *slog.Logger
}

// NewS3Store creates an ObjectStore backed by S3. A non-empty endpoint in
// the config switches to path-style addressing for MinIO-style servers.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*S3Store, error) {
	if log == nil {
		log = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  log,
	}, nil
}

// Put stores the reader's content under key.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

// PutFile stores a local file under key and returns its size.
func (s *S3Store) PutFile(ctx context.Context, key, path string, contentType string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("statting %s: %w", path, err)
	}

	if err := s.Put(ctx, key, f, contentType); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Get opens the object for reading. The caller closes the reader.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	return out.Body, nil
}

// DownloadFile fetches the object into a local file and returns its size.
func (s *S3Store) DownloadFile(ctx context.Context, key, path string) (int64, error) {
	body, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		return 0, fmt.Errorf("downloading object %s: %w", key, err)
	}
	return n, nil
}

// Head returns object metadata, or an error if the object is missing.
func (s *S3Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("heading object %s: %w", key, err)
	}
	return &ObjectInfo{Key: key, Size: aws.ToInt64(out.ContentLength)}, nil
}

// Delete removes a single object. Deleting a missing object is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under the prefix and returns the count.
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("listing objects under %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		}); err != nil {
			return deleted, fmt.Errorf("deleting objects under %s: %w", prefix, err)
		}
		deleted += len(objects)
	}

	s.logger.Debug("deleted objects by prefix",
		slog.String("prefix", prefix),
		slog.Int("count", deleted),
	)
	return deleted, nil
}

// PresignGet returns a time-limited GET URL for the object.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning object %s: %w", key, err)
	}
	return req.URL, nil
}

// Ensure S3Store implements ObjectStore at compile time.
var _ ObjectStore = (*S3Store)(nil)
