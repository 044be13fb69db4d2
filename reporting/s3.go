package reporting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const S3ReporterName = "s3"

// S3Config configures the object store the s3 reporter uploads to
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Validate checks the required settings are present
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("s3 endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// NewMinIOClient creates an S3 client for the config
func NewMinIOClient(cfg S3Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	})
}

// EnsureBucket creates the bucket when it does not exist yet
func EnsureBucket(ctx context.Context, client *minio.Client, cfg S3Config) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
	}
	return nil
}

// ObjectPutter is the part of *minio.Client the s3 reporter needs
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ Reporter = (*S3Reporter)(nil)

// S3Reporter uploads the JSON report of each run, and the artifacts of its
// failed steps, to <prefix>/<runID>/
type S3Reporter struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Reporter creates a reporter uploading through client
func NewS3Reporter(client ObjectPutter, bucket, prefix string) *S3Reporter {
	return &S3Reporter{client: client, bucket: bucket, prefix: prefix}
}

func (r *S3Reporter) Name() string {
	return S3ReporterName
}

// SetOutputDirectory is a no-op, objects are keyed by prefix
func (r *S3Reporter) SetOutputDirectory(string) {}

// ObjectKey returns the key of an object belonging to a run
func (r *S3Reporter) ObjectKey(runID, name string) string {
	return path.Join(r.prefix, runID, name)
}

func (r *S3Reporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	data, err := marshalReport(run)
	if err != nil {
		return err
	}
	if err := r.put(ctx, r.ObjectKey(run.ID, "report.json"), data, "application/json"); err != nil {
		return err
	}

	for _, step := range run.Steps {
		if step.Artifact == "" {
			continue
		}
		content, err := os.ReadFile(step.Artifact)
		if err != nil {
			return fmt.Errorf("read artifact of step %q: %w", step.Name, err)
		}
		key := r.ObjectKey(run.ID, path.Join("artifacts", filepath.Base(step.Artifact)))
		if err := r.put(ctx, key, content, "application/octet-stream"); err != nil {
			return err
		}
	}
	return nil
}

func (r *S3Reporter) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", r.bucket, key, err)
	}
	return nil
}
