package s3backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/domain"
)

type stubObject struct {
	body     []byte
	metadata map[string]string
	ctype    string
}

// stubS3 keeps objects in memory and pages List results one key at a time.
type stubS3 struct {
	objects map[string]stubObject
	putErr  error
	lists   int
}

func newStubS3() *stubS3 { return &stubS3{objects: map[string]stubObject{}} }

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if s.putErr != nil {
		return nil, s.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.objects[aws.ToString(in.Key)] = stubObject{body: body, metadata: in.Metadata, ctype: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := s.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (s *stubS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	s.lists++
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	start := 0
	if in.ContinuationToken != nil {
		start = slices.Index(keys, aws.ToString(in.ContinuationToken))
	}
	if start < 0 || start >= len(keys) {
		return &s3.ListObjectsV2Output{}, nil
	}
	key := keys[start]
	out := &s3.ListObjectsV2Output{
		Contents: []types.Object{{Key: aws.String(key), Size: aws.Int64(int64(len(s.objects[key].body)))}},
	}
	if start+1 < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[start+1])
	}
	return out, nil
}

func testSnapshot(title string) app.Snapshot {
	return app.Snapshot{
		Version:    app.SnapshotVersion,
		ExportedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Deals: []app.SnapshotDeal{{
			ID:      1,
			Title:   title,
			Client:  "Acme Corp",
			Revenue: 12000,
			Stage:   domain.StageClients,
			Status:  domain.StatusOpen,
		}},
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newStubS3()
	store := newStore(client, Config{Bucket: "crm", Prefix: "/team/backups/"})
	store.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }

	backup, err := store.Upload(ctx, testSnapshot("Website Redesign"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(backup.Key, "team/backups/20260302T093000Z-") || !strings.HasSuffix(backup.Key, ".json") {
		t.Fatalf("unexpected backup key %q", backup.Key)
	}
	obj := client.objects[backup.Key]
	if obj.ctype != "application/json" || obj.metadata["deal-count"] != "1" {
		t.Fatalf("unexpected object attributes %#v", obj)
	}
	snap, err := store.Download(ctx, backup.Key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if len(snap.Deals) != 1 || snap.Deals[0].Title != "Website Redesign" {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
}

func TestUploadRejectsInvalidSnapshot(t *testing.T) {
	client := newStubS3()
	store := newStore(client, Config{Bucket: "crm"})
	snap := testSnapshot("x")
	snap.Version = "v0"
	if _, err := store.Upload(context.Background(), snap); !errors.Is(err, app.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	if len(client.objects) != 0 {
		t.Fatal("expected nothing uploaded")
	}
}

func TestUploadPropagatesPutError(t *testing.T) {
	client := newStubS3()
	client.putErr = errors.New("access denied")
	store := newStore(client, Config{Bucket: "crm"})
	if _, err := store.Upload(context.Background(), testSnapshot("x")); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected put error, got %v", err)
	}
}

func TestListAndLatest(t *testing.T) {
	ctx := context.Background()
	client := newStubS3()
	store := newStore(client, Config{Bucket: "crm"})
	if _, _, err := store.Latest(ctx); !errors.Is(err, ErrNoBackups) {
		t.Fatalf("expected ErrNoBackups, got %v", err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		store.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if _, err := store.Upload(ctx, testSnapshot(title)); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
	}
	client.objects["manovate/snapshots/README.txt"] = stubObject{body: []byte("ignore")}
	client.lists = 0

	backups, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups, got %d", len(backups))
	}
	if client.lists < 3 {
		t.Fatalf("expected paginated listing, got %d calls", client.lists)
	}
	snap, latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Key != backups[0].Key || snap.Deals[0].Title != "third" {
		t.Fatalf("expected newest backup, got %q %q", latest.Key, snap.Deals[0].Title)
	}
}

func TestDownloadPreservesStage(t *testing.T) {
	ctx := context.Background()
	store := newStore(newStubS3(), Config{Bucket: "crm"})
	snap := testSnapshot("Cloud Migration")
	snap.Deals[0].Stage = domain.StageRevenue
	backup, err := store.Upload(ctx, snap)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	restored, err := store.Download(ctx, backup.Key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if restored.Deals[0].Stage != domain.StageRevenue {
		t.Fatalf("unexpected stage %q", restored.Deals[0].Stage)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected bucket error")
	}
}
