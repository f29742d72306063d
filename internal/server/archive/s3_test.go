package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgElephant/ramd/internal/cryptox"
	sc "github.com/pgElephant/ramd/internal/server/config"
	"github.com/pgElephant/ramd/internal/server/models"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type fakePutter struct {
	calls []putCall
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

var snapshotTime = time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)

func newTestArchiver(p ObjectPutter, key []byte) *S3Archiver {
	a := NewArchiver(p, "ramd-audit", key)
	a.now = func() time.Time { return snapshotTime }
	return a
}

func decodeLines(t *testing.T, b []byte) []models.AuditEntry {
	t.Helper()
	var out []models.AuditEntry
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		var e models.AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func TestObjectKey(t *testing.T) {
	local := time.Date(2026, 3, 2, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, "audit/2026/03/01/abc.jsonl", ObjectKey(local, "abc"))
}

func TestFlush_UploadsJSONLines(t *testing.T) {
	p := &fakePutter{}
	a := newTestArchiver(p, nil)

	require.NoError(t, a.Write(context.Background(), []models.AuditEntry{{ID: "1", Action: "view"}, {ID: "2", Action: "backup"}}))
	require.NoError(t, a.Write(context.Background(), []models.AuditEntry{{ID: "3", Action: "failover"}}))
	assert.Equal(t, 3, a.Pending())

	key, err := a.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, p.calls, 1)

	call := p.calls[0]
	assert.Equal(t, key, call.key)
	assert.Equal(t, "ramd-audit", call.bucket)
	assert.True(t, strings.HasPrefix(key, "audit/2026/03/01/"))
	assert.True(t, strings.HasSuffix(key, ".jsonl"))
	assert.Equal(t, "application/x-ndjson", call.contentType)

	got := decodeLines(t, call.body)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[2].ID)
	assert.Zero(t, a.Pending())
}

func TestFlush_NothingPending(t *testing.T) {
	p := &fakePutter{}
	key, err := newTestArchiver(p, nil).Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, p.calls)
}

func TestFlush_SealsWithKey(t *testing.T) {
	sealKey := bytes.Repeat([]byte{7}, 32)
	p := &fakePutter{}
	a := newTestArchiver(p, sealKey)

	require.NoError(t, a.Write(context.Background(), []models.AuditEntry{{ID: "1"}}))
	key, err := a.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".jsonl.enc"))
	assert.Equal(t, "application/octet-stream", p.calls[0].contentType)

	plain, err := cryptox.Open(p.calls[0].body, sealKey)
	require.NoError(t, err)
	got := decodeLines(t, plain)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestFlush_FailureKeepsEntries(t *testing.T) {
	p := &fakePutter{err: errors.New("503 slow down")}
	a := newTestArchiver(p, nil)

	require.NoError(t, a.Write(context.Background(), []models.AuditEntry{{ID: "1"}}))
	_, err := a.Flush(context.Background())
	require.ErrorContains(t, err, "503 slow down")
	assert.Equal(t, 1, a.Pending())

	p.err = nil
	require.NoError(t, a.Write(context.Background(), []models.AuditEntry{{ID: "2"}}))
	require.NoError(t, a.Close())
	got := decodeLines(t, p.calls[0].body)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestWrite_BoundsPending(t *testing.T) {
	a := newTestArchiver(&fakePutter{}, nil)
	batch := make([]models.AuditEntry, MaxPending+5)
	for i := range batch {
		batch[i].ID = string(rune('a' + i%26))
	}
	require.NoError(t, a.Write(context.Background(), batch))
	assert.Equal(t, MaxPending, a.Pending())
	assert.Equal(t, batch[5].ID, a.pending[0].ID)
}

func TestNewS3Archiver(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
	})

	cfg := &sc.Config{
		S3Region:       "eu-central-1",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3Bucket:       "ramd-audit",
		ArchiveKey:     hex.EncodeToString(bytes.Repeat([]byte{1}, 32)),
	}

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "eu-central-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		if lo.Credentials == nil {
			t.Fatalf("static credentials not applied")
		}
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	a, err := NewS3Archiver(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "ramd-audit", a.bucket)
	assert.Len(t, a.sealKey, 32)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3Archiver(context.Background(), cfg)
	require.EqualError(t, err, "load-fail")
}
