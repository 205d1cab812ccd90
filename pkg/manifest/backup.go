package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BackupKey is the object the project list is written to.
const BackupKey = "project-details-backup.json"

// ErrNoBackup is returned by Restore when the bucket holds no backup.
var ErrNoBackup = errors.New("no project details backup")

// OpenBucket opens a gs://, s3:// or file:// bucket. Input without a scheme
// is a local directory, relative to the working directory.
func OpenBucket(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	if !strings.Contains(bucketURL, "://") {
		dir, err := filepath.Abs(bucketURL)
		if err != nil {
			return nil, fmt.Errorf("resolve bucket directory %s: %w", bucketURL, err)
		}
		bucketURL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}).String()
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket url: %w", err)
	}

	// fileblob needs the directory to exist; keep temp files next to the target.
	if u.Scheme == "file" {
		if u.Host != "" || u.Path == "" {
			return nil, fmt.Errorf("file bucket url %q must name an absolute directory (file:///path)", bucketURL)
		}
		if err := os.MkdirAll(filepath.FromSlash(u.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create local bucket directory %s: %w", u.Path, err)
		}
		q := u.Query()
		q.Set("no_tmp_dir", "true")
		u.RawQuery = q.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", u.Redacted(), err)
	}
	return bucket, nil
}

// Backup writes the project list as indented JSON to BackupKey in bucket.
func Backup(ctx context.Context, bucket *blob.Bucket, m *Manifest) error {
	data, err := json.MarshalIndent(m.Projects, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project details: %w", err)
	}

	if err := bucket.WriteAll(ctx, BackupKey, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write %s: %w", BackupKey, err)
	}
	return nil
}

// Restore reads the project list previously written by Backup.
func Restore(ctx context.Context, bucket *blob.Bucket) (*Manifest, error) {
	data, err := bucket.ReadAll(ctx, BackupKey)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNoBackup
		}
		return nil, fmt.Errorf("read %s: %w", BackupKey, err)
	}

	var projects []ProjectDetails
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("decode %s: %w", BackupKey, err)
	}
	return &Manifest{Projects: projects}, nil
}
