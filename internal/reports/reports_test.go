package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abhisek/studybuddy/internal/chat"
	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/store"
)

type fakeObjects struct {
	exists     bool
	made       []string
	objects    map[string][]byte
	presignErr error
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[object] = data
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, object string, _ time.Duration, _ url.Values) (*url.URL, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	return &url.URL{Scheme: "http", Host: "minio.local", Path: "/" + bucket + "/" + object}, nil
}

func seededMonitor(t *testing.T) *monitor.Service {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemory()
	day := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveJSON(ctx, kv, chat.HistoryKey("kid"), []chat.Turn{
		chat.NewTurn(chat.RoleUser, "tell me about volcanoes", day, nil),
		chat.NewTurn(chat.RoleAssistant, "Volcanoes are mountains with hot rock inside.", day.Add(time.Minute), nil),
	}))

	svc := monitor.New(kv, nil, zaptest.NewLogger(t))
	require.NoError(t, svc.LogIncident(ctx, monitor.Incident{
		Type: monitor.IncidentInputBlocked, Content: "old", UserID: "kid",
		Timestamp: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, svc.LogIncident(ctx, monitor.Incident{
		Type: monitor.IncidentResponseSanitized, Content: "this week", UserID: "kid",
		Timestamp: day,
	}))
	return svc
}

func TestBuildWeekly(t *testing.T) {
	svc := seededMonitor(t)
	end := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)

	r, err := BuildWeekly(context.Background(), svc, "kid", end, now)
	require.NoError(t, err)

	assert.Equal(t, "kid", r.ChildID)
	assert.Equal(t, now, r.GeneratedAt)
	assert.Equal(t, "2026-03-07", r.Week.EndDate)
	assert.Equal(t, 2, r.Stats.TotalMessages)
	require.Len(t, r.Incidents, 1)
	assert.Equal(t, "this week", r.Incidents[0].Content)
}

func TestMinIOArchiver_CreatesBucketAndUploads(t *testing.T) {
	ctx := context.Background()
	objects := &fakeObjects{}
	a, err := newArchiver(ctx, objects, MinIOConfig{BucketName: "reports", PresignExpiry: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"reports"}, objects.made)

	r, err := BuildWeekly(ctx, seededMonitor(t), "kid", time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), time.Now())
	require.NoError(t, err)

	out, err := a.Archive(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "weekly/kid/2026-03-07.json", out.Key)
	assert.Equal(t, "http://minio.local/reports/weekly/kid/2026-03-07.json", out.URL)

	var stored WeeklyReport
	require.NoError(t, json.Unmarshal(objects.objects[out.Key], &stored))
	assert.Equal(t, r.Stats, stored.Stats)
	assert.Equal(t, int64(len(objects.objects[out.Key])), out.Size)
}

func TestMinIOArchiver_PresignFailureStillArchives(t *testing.T) {
	ctx := context.Background()
	objects := &fakeObjects{exists: true, presignErr: errors.New("no signer")}
	a, err := newArchiver(ctx, objects, MinIOConfig{BucketName: "reports", PresignExpiry: time.Hour}, nil)
	require.NoError(t, err)
	assert.Empty(t, objects.made)

	out, err := a.Archive(ctx, WeeklyReport{ChildID: "kid", Week: monitor.WeeklySummary{EndDate: "2026-03-07"}})
	require.NoError(t, err)
	assert.Empty(t, out.URL)
	assert.Contains(t, objects.objects, "weekly/kid/2026-03-07.json")
}

func TestNewMinIOArchiver_RequiresConfig(t *testing.T) {
	_, err := NewMinIOArchiver(context.Background(), MinIOConfig{}, nil)
	assert.Error(t, err)
}
