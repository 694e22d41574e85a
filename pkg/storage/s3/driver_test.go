package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]int64
}

func newFakeBucket(keys ...string) *fakeBucket {
	b := &fakeBucket{objects: make(map[string]int64)}
	for _, k := range keys {
		b.objects[k] = int64(len(k))
	}
	return b
}

func (b *fakeBucket) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := map[string]bool{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if idx := strings.Index(rest, delim); idx >= 0 {
				cp := prefix + rest[:idx+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		if in.MaxKeys != nil && int32(len(out.Contents)) >= *in.MaxKeys {
			break
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(b.objects[k])})
	}
	return out, nil
}

func (b *fakeBucket) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(size)}, nil
}

func (b *fakeBucket) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (b *fakeBucket) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(in.Key)] = int64(len(data))
	return &manager.UploadOutput{}, nil
}

func newFakeDriver(b *fakeBucket) *S3Driver {
	return &S3Driver{client: b, uploader: b, bucket: "test"}
}

func TestVirtualDirectories(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver(newFakeBucket(
		"tmp/2024/01/10/a.txt",
		"tmp/2024/01/10/nested/b.txt",
		"tmp/uploads/",
		"other/c.txt",
	))

	top, err := d.ListDirectories(ctx, "tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp/2024", "tmp/uploads"}, top)

	all, err := d.ListDirectoriesRecursive(ctx, "tmp/2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp/2024/01", "tmp/2024/01/10", "tmp/2024/01/10/nested"}, all)

	files, err := d.ListFilesRecursive(ctx, "tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp/2024/01/10/a.txt", "tmp/2024/01/10/nested/b.txt"}, files)

	size, err := d.FileSize(ctx, "tmp/2024/01/10/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len("tmp/2024/01/10/a.txt")), size)

	_, err = d.FileSize(ctx, "tmp/missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteDirectoryHonoursMarkers(t *testing.T) {
	ctx := context.Background()
	b := newFakeBucket("tmp/2024/01/10/", "tmp/2024/01/10/a.txt")
	d := newFakeDriver(b)

	err := d.DeleteDirectory(ctx, "tmp/2024/01/10")
	assert.ErrorIs(t, err, storage.ErrDirectoryNotEmpty)

	require.NoError(t, d.DeleteFile(ctx, "tmp/2024/01/10/a.txt"))
	require.NoError(t, d.DeleteDirectory(ctx, "tmp/2024/01/10"))
	require.NoError(t, d.DeleteDirectory(ctx, "tmp/2024/01/10"))
	assert.Empty(t, b.objects)

	assert.ErrorIs(t, d.DeleteDirectory(ctx, ""), storage.ErrInvalidPath)
}

func TestPutUsesUploader(t *testing.T) {
	b := newFakeBucket()
	d := newFakeDriver(b)

	require.NoError(t, d.Put(context.Background(), "/tmp/2024/01/10/up.bin", strings.NewReader("payload")))
	assert.Equal(t, int64(7), b.objects["tmp/2024/01/10/up.bin"])
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Bucket: "b"})
	assert.Error(t, err)
}

func TestNewLogsEndpointSelection(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	_, err := New(context.Background(), Options{
		Bucket:          "b",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Logger:          logger,
	})
	require.NoError(t, err)

	_, err = New(context.Background(), Options{
		Bucket:          "b",
		AccountID:       "acct",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Logger:          logger,
	})
	require.NoError(t, err)

	custom := logs.FilterMessage("using custom s3 endpoint").All()
	require.Len(t, custom, 1)
	assert.Equal(t, "http://127.0.0.1:9000", custom[0].ContextMap()["endpoint"])

	r2 := logs.FilterMessage("using cloudflare r2 endpoint").All()
	require.Len(t, r2, 1)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", r2[0].ContextMap()["endpoint"])
}

func TestS3IntegrationWithMinIO(t *testing.T) {
	endpoint := os.Getenv("LOCAL_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("LOCAL_S3_ENDPOINT not set; skipping MinIO integration test")
	}

	accessKey := os.Getenv("S3_ACCESS_KEY_ID")
	secretKey := os.Getenv("S3_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		t.Skip("S3_ACCESS_KEY_ID or S3_SECRET_ACCESS_KEY not set; skipping MinIO integration test")
	}

	bucket := os.Getenv("LOCAL_S3_BUCKET")
	if bucket == "" {
		bucket = "tmpsweep-integration"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := New(ctx, Options{
		Bucket:          bucket,
		Endpoint:        endpoint,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
	})
	require.NoError(t, err)

	key := fmt.Sprintf("tmp/integration/%d/payload.txt", time.Now().UnixNano())
	require.NoError(t, d.Put(ctx, key, strings.NewReader("integration-payload")))

	size, err := d.FileSize(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len("integration-payload")), size)

	require.NoError(t, d.DeleteFile(ctx, key))
	_, err = d.FileSize(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
