package results

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// BackupConfig holds object storage settings, normally sourced from the
// BACKUP_* environment variables.
type BackupConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// BackupConfigFromEnv assembles a backup configuration from BACKUP_ENDPOINT,
// BACKUP_BUCKET, BACKUP_ACCESS_KEY and BACKUP_SECRET_KEY. The second return
// value is false when no endpoint is configured.
func BackupConfigFromEnv() (BackupConfig, bool) {
	endpoint := strings.TrimSpace(os.Getenv("BACKUP_ENDPOINT"))
	if endpoint == "" {
		return BackupConfig{}, false
	}
	cfg := BackupConfig{
		Endpoint:  endpoint,
		Bucket:    strings.TrimSpace(os.Getenv("BACKUP_BUCKET")),
		AccessKey: strings.TrimSpace(os.Getenv("BACKUP_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("BACKUP_SECRET_KEY")),
		UseSSL:    true,
	}
	return cfg, true
}

// Backup uploads files to an S3-compatible bucket.
type Backup struct {
	client *minio.Client
	bucket string
}

// NewBackup builds a backup client. Endpoints may carry an http/https scheme
// which decides TLS use; bare host:port endpoints default to TLS.
func NewBackup(cfg BackupConfig) (*Backup, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	useSSL := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("backup: parse endpoint %q failed: %w", cfg.Endpoint, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return nil, fmt.Errorf("backup: unsupported endpoint scheme %q", parsed.Scheme)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("backup: endpoint %q is missing host information", cfg.Endpoint)
		}
		endpoint = parsed.Host
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup: bucket is not configured")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       useSSL,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("backup: create client failed: %w", err)
	}
	return &Backup{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (b *Backup) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("backup: check bucket failed: %w", err)
	}
	if exists {
		return nil
	}
	if err = b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("backup: create bucket failed: %w", err)
	}
	return nil
}

// UploadDir uploads every regular file under dir to the bucket beneath a
// timestamped prefix and returns the number of uploaded files.
func (b *Backup) UploadDir(ctx context.Context, dir string) (int, error) {
	prefix := fmt.Sprintf("backup-%s", time.Now().UTC().Format("20060102-150405"))
	uploaded := 0

	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, errRel := filepath.Rel(dir, path)
		if errRel != nil {
			return errRel
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		if _, errPut := b.client.FPutObject(ctx, b.bucket, key, path, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		}); errPut != nil {
			return fmt.Errorf("backup: upload %s failed: %w", rel, errPut)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}

	log.Infof("backed up %d files from %s to bucket %s", uploaded, dir, b.bucket)
	return uploaded, nil
}
