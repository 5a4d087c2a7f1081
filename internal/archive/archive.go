// Package archive keeps raw export files in Cloud Storage under their
// content hash, so the same export uploaded twice is stored once.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
)

// DefaultPrefix is the object name prefix for archived exports
const DefaultPrefix = "raw-exports"

// Bucket is the slice of a blob store the archiver needs
type Bucket interface {
	Name() string
	Exists(ctx context.Context, object string) (bool, error)
	Put(ctx context.Context, object, contentType string, r io.Reader) error
}

// Archiver uploads files to a bucket under {prefix}/{sha256}{ext}
type Archiver struct {
	bucket Bucket
	prefix string
}

// Option configures an Archiver
type Option func(*Archiver)

// WithPrefix replaces DefaultPrefix
func WithPrefix(prefix string) Option {
	return func(a *Archiver) {
		a.prefix = strings.Trim(prefix, "/")
	}
}

// New creates an archiver writing to bucket
func New(bucket Bucket, opts ...Option) *Archiver {
	a := &Archiver{bucket: bucket, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive uploads the file at filePath unless an object with the same
// content already exists, and returns its gs:// URI.
func (a *Archiver) Archive(ctx context.Context, filePath string) (string, error) {
	hash, err := HashFile(filePath)
	if err != nil {
		return "", err
	}
	object := a.ObjectName(hash, filePath)
	uri := fmt.Sprintf("gs://%s/%s", a.bucket.Name(), object)
	log := logger.FromContext(ctx)

	exists, err := a.bucket.Exists(ctx, object)
	if err != nil {
		return "", fmt.Errorf("failed to check %s: %w", uri, err)
	}
	if exists {
		log.Debug().Str("file", filePath).Str("object", uri).Msg("already archived")
		return uri, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if err := a.bucket.Put(ctx, object, contentType(filePath), f); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", uri, err)
	}
	log.Info().Str("file", filePath).Str("object", uri).Msg("archived export")
	return uri, nil
}

// ObjectName returns the object an export with the given hash is stored
// under. The original extension is kept so downloads open in the right tool.
func (a *Archiver) ObjectName(hash, filePath string) string {
	name := hash + strings.ToLower(filepath.Ext(filePath))
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// HashFile returns the hex SHA-256 of a file's content
func HashFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func contentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".ofx", ".qfx":
		return "application/x-ofx"
	case ".csv":
		return "text/csv"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// GCSBucket is a Bucket backed by Cloud Storage
type GCSBucket struct {
	client  *storage.Client
	name    string
	timeout time.Duration
}

// NewGCSBucket opens a Cloud Storage client for bucket. Credentials come
// from opts or Application Default Credentials.
func NewGCSBucket(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSBucket, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBucket{client: client, name: bucket, timeout: 2 * time.Minute}, nil
}

// Name returns the bucket name
func (b *GCSBucket) Name() string { return b.name }

// Exists reports whether object is present in the bucket
func (b *GCSBucket) Exists(ctx context.Context, object string) (bool, error) {
	_, err := b.client.Bucket(b.name).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put streams r into object. The write only creates the object if it does
// not exist yet, so concurrent archivers of the same export do not race.
func (b *GCSBucket) Put(ctx context.Context, object, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	w := b.client.Bucket(b.name).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Close releases the storage client
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
