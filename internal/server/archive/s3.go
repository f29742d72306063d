// Package archive uploads audit snapshots to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/pgElephant/ramd/internal/cryptox"
	sc "github.com/pgElephant/ramd/internal/server/config"
	"github.com/pgElephant/ramd/internal/server/models"
)

// MaxPending bounds the entries held between uploads; the oldest are
// discarded first.
const MaxPending = 10000

const closeTimeout = 30 * time.Second

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectPutter is the part of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver collects audit entries and uploads them as one JSON-lines
// object per Flush, under audit/YYYY/MM/DD/<uuid>.jsonl. With a seal key
// the object is AES-GCM encrypted and gets an .enc suffix.
//
// It implements auditlog.Sink so it can sit behind the forwarder.
type S3Archiver struct {
	client  ObjectPutter
	bucket  string
	sealKey []byte
	now     func() time.Time

	mu      sync.Mutex
	pending []models.AuditEntry
}

// NewS3Archiver builds an archiver from the s3_* settings of cfg.
func NewS3Archiver(ctx context.Context, cfg *sc.Config) (*S3Archiver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3RootUser != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	var key []byte
	if cfg.ArchiveKey != "" {
		key, err = hex.DecodeString(cfg.ArchiveKey)
		if err != nil {
			return nil, fmt.Errorf("decode archive key: %w", err)
		}
	}

	return NewArchiver(client, cfg.S3Bucket, key), nil
}

// NewArchiver wires an archiver to an existing client.
func NewArchiver(client ObjectPutter, bucket string, sealKey []byte) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, sealKey: sealKey, now: time.Now}
}

// Write buffers entries until the next Flush.
func (a *S3Archiver) Write(_ context.Context, entries []models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, entries...)
	if over := len(a.pending) - MaxPending; over > 0 {
		a.pending = append(a.pending[:0], a.pending[over:]...)
	}
	return nil
}

// Pending returns the number of buffered entries.
func (a *S3Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush uploads everything buffered and returns the object key, or ""
// when there was nothing to upload. On failure the entries stay buffered.
func (a *S3Archiver) Flush(ctx context.Context) (string, error) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return "", nil
	}

	key, err := a.upload(ctx, batch)
	if err != nil {
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		if over := len(a.pending) - MaxPending; over > 0 {
			a.pending = a.pending[over:]
		}
		a.mu.Unlock()
		return "", err
	}
	return key, nil
}

func (a *S3Archiver) upload(ctx context.Context, batch []models.AuditEntry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("encode audit entry: %w", err)
		}
	}

	body := buf.Bytes()
	key := ObjectKey(a.now(), uuid.NewString())
	contentType := "application/x-ndjson"
	if len(a.sealKey) > 0 {
		sealed, err := cryptox.Seal(body, a.sealKey)
		if err != nil {
			return "", fmt.Errorf("seal snapshot: %w", err)
		}
		body = sealed
		key += ".enc"
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Close uploads whatever is still buffered.
func (a *S3Archiver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_, err := a.Flush(ctx)
	return err
}

// ObjectKey is the object name for a snapshot taken at t.
func ObjectKey(t time.Time, id string) string {
	return fmt.Sprintf("audit/%s/%s.jsonl", t.UTC().Format("2006/01/02"), id)
}
