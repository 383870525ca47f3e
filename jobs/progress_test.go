package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ProgressStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewProgressStore(rdb, time.Hour, 24*time.Hour), mr
}

func seedJob(t *testing.T, store *ProgressStore, jobID string) {
	t.Helper()
	require.NoError(t, store.CreateJob(context.Background(), ProgressRecord{
		JobID:     jobID,
		OwnerID:   42,
		BlobPath:  "/tmp/blob.zip",
		Filename:  "course.zip",
		SizeBytes: 1024,
	}))
}

func TestCreateAndGetJob(t *testing.T) {
	store, mr := newTestStore(t)
	seedJob(t, store, "job-1")

	rec, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, uint(42), rec.OwnerID)
	assert.Equal(t, "course.zip", rec.Filename)
	assert.Equal(t, int64(1024), rec.SizeBytes)

	// Live progress records carry the short TTL
	ttl := mr.TTL("scorm:job:job-1")
	assert.True(t, ttl > 0 && ttl <= time.Hour)
}

func TestGetJobNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetJob(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestSetStage(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")

	rec, err := store.SetStage(context.Background(), "job-1", StatusExtracting, 30, "Package content extracted")
	require.NoError(t, err)
	assert.Equal(t, StatusExtracting, rec.Status)
	assert.Equal(t, 30, rec.Progress)
	assert.Equal(t, "Package content extracted", rec.Details)
}

func TestResultIsAuthoritativeAndOutlivesProgress(t *testing.T) {
	store, mr := newTestStore(t)
	seedJob(t, store, "job-1")

	_, err := store.SetResult(context.Background(), "job-1", JobResult{
		Status:    StatusCompleted,
		PackageID: "pkg-1",
		LaunchURL: "/content/pkg-1/index.html",
	})
	require.NoError(t, err)

	rec, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "pkg-1", rec.Result.PackageID)

	// Simulate the progress hash expiring before the result does
	mr.Del("scorm:job:job-1")
	rec, err = store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)

	ttl := mr.TTL("scorm:job:job-1:result")
	assert.True(t, ttl > time.Hour)
}

func TestPublicStatusCollapsesPipelineStates(t *testing.T) {
	for _, internal := range []string{StatusReceived, StatusValidating, StatusExtracting, StatusParsingManifest, StatusPersisting} {
		rec := ProgressRecord{JobID: "job-1", Status: internal, Stage: internal}.Public()
		assert.Equal(t, StatusProcessing, rec.Status, internal)
		assert.Equal(t, internal, rec.Stage, internal) // detail survives in the stage field
	}
	for _, terminal := range []string{StatusCompleted, StatusFailed, StatusPermanentlyFailed, StatusCancelled} {
		rec := ProgressRecord{JobID: "job-1", Status: terminal}.Public()
		assert.Equal(t, terminal, rec.Status)
	}
}

func TestSetResultKeepsLastProgressOnFailure(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")
	ctx := context.Background()

	_, err := store.SetStage(ctx, "job-1", StatusExtracting, 30, "Package content extracted")
	require.NoError(t, err)

	_, err = store.SetResult(ctx, "job-1", JobResult{
		Status:    StatusFailed,
		ErrorCode: "ExtractionFailed",
	})
	require.NoError(t, err)

	rec, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 30, rec.Progress)

	// Success still lands at 100
	seedJob(t, store, "job-2")
	_, err = store.SetStage(ctx, "job-2", StatusPersisting, 65, "Persisting package")
	require.NoError(t, err)
	_, err = store.SetResult(ctx, "job-2", JobResult{Status: StatusCompleted})
	require.NoError(t, err)

	rec, err = store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Progress)
}

func TestCancelWhileReceived(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")

	require.NoError(t, store.Cancel(context.Background(), "job-1"))

	rec, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)
}

func TestCancelAfterClaimIsRejected(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")

	status, attempts, err := store.Claim(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "claimed", status)
	assert.Equal(t, 1, attempts)

	err = store.Cancel(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotCancellable))
}

func TestCancelUnknownJob(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Cancel(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestClaimCancelledJob(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")
	require.NoError(t, store.Cancel(context.Background(), "job-1"))

	status, _, err := store.Claim(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
}

func TestEnqueueDequeue(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, "job-1"))
	require.NoError(t, store.Enqueue(ctx, "job-2"))

	first, err := store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job-1", first) // FIFO

	second, err := store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job-2", second)
}

func TestMetadataRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")
	ctx := context.Background()

	require.NoError(t, store.SetMetadata(ctx, "job-1", map[string]string{
		"title":       "Golf Explained",
		"description": "Intro course",
	}))

	meta, err := store.GetMetadata(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Golf Explained", meta["title"])
	assert.Equal(t, "Intro course", meta["description"])
}

func TestRequeueResetsForNextAttempt(t *testing.T) {
	store, _ := newTestStore(t)
	seedJob(t, store, "job-1")
	ctx := context.Background()

	_, _, err := store.Claim(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, store.Requeue(ctx, "job-1", 1, 3))

	rec, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	// The job is back on the queue and claimable again
	jobID, err := store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	status, attempts, err := store.Claim(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "claimed", status)
	assert.Equal(t, 2, attempts)
}
