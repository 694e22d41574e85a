package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

// Options configures the S3 driver. Endpoint is set for MinIO or any other
// S3-compatible service; AccountID selects a Cloudflare R2 endpoint.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// Logger receives endpoint selection messages; nil discards them.
	Logger *zap.Logger
}

// objectAPI is the subset of *s3.Client the driver calls.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Driver implements storage.Store over a bucket. Directories are key
// prefixes; "dir/" marker objects are honoured when present.
type S3Driver struct {
	client   objectAPI
	uploader uploader
	bucket   string
}

func New(ctx context.Context, opts Options) (*S3Driver, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 bucket is not set")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	region := opts.Region
	endpoint := opts.Endpoint
	pathStyle := opts.UsePathStyle

	switch {
	case endpoint != "":
		logger.Info("using custom s3 endpoint", zap.String("endpoint", endpoint))
		pathStyle = true
		if region == "" {
			region = "us-east-1"
		}
	case opts.AccountID != "":
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
		logger.Info("using cloudflare r2 endpoint", zap.String("endpoint", endpoint))
		region = "auto"
	}
	if region == "" {
		return nil, errors.New("s3 region is not set")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" || opts.SecretAccessKey != "" {
		if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
			return nil, errors.New("both access key id and secret access key must be set")
		}
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3Driver{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
	}, nil
}

func dirPrefix(name string) string {
	if name == "" {
		return ""
	}
	return name + "/"
}

func (d *S3Driver) listKeys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (d *S3Driver) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	cleaned, err := storage.Clean(prefix)
	if err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(dirPrefix(cleaned)),
		Delimiter: aws.String("/"),
	})

	var dirs []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list prefixes %s: %w", cleaned, err)
		}
		for _, cp := range page.CommonPrefixes {
			dirs = append(dirs, strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (d *S3Driver) ListDirectoriesRecursive(ctx context.Context, prefix string) ([]string, error) {
	cleaned, err := storage.Clean(prefix)
	if err != nil {
		return nil, err
	}

	keys, err := d.listKeys(ctx, dirPrefix(cleaned))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, key := range keys {
		dir := strings.TrimSuffix(key, "/")
		if !strings.HasSuffix(key, "/") {
			dir = storage.Parent(key)
		}
		for p := dir; storage.Within(cleaned, p); p = storage.Parent(p) {
			seen[p] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (d *S3Driver) ListFilesRecursive(ctx context.Context, prefix string) ([]string, error) {
	cleaned, err := storage.Clean(prefix)
	if err != nil {
		return nil, err
	}

	keys, err := d.listKeys(ctx, dirPrefix(cleaned))
	if err != nil {
		return nil, err
	}

	files := keys[:0]
	for _, key := range keys {
		if !strings.HasSuffix(key, "/") {
			files = append(files, key)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (d *S3Driver) FileSize(ctx context.Context, name string) (int64, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("head %s: %w", name, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("head %s: %w", name, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (d *S3Driver) DeleteFile(ctx context.Context, name string) error {
	cleaned, err := storage.Clean(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: empty object name", storage.ErrInvalidPath)
	}
	return d.deleteObject(ctx, cleaned)
}

func (d *S3Driver) DeleteDirectory(ctx context.Context, name string) error {
	cleaned, err := storage.Clean(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: refusing to delete bucket root", storage.ErrInvalidPath)
	}

	marker := dirPrefix(cleaned)
	out, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(marker),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return fmt.Errorf("list %s: %w", cleaned, err)
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != marker {
			return fmt.Errorf("remove dir %s: %w", cleaned, storage.ErrDirectoryNotEmpty)
		}
	}

	return d.deleteObject(ctx, marker)
}

func (d *S3Driver) deleteObject(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (d *S3Driver) Put(ctx context.Context, name string, body io.Reader) error {
	cleaned, err := storage.Clean(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: empty object name", storage.ErrInvalidPath)
	}

	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(cleaned),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload object %s: %w", cleaned, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

var _ storage.Store = (*S3Driver)(nil)
