package jobs

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scormhub/models"
	"scormhub/scorm"
	"scormhub/utils"
)

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="com.example.golf" xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_rootv1p2">
  <metadata>
    <schemaversion>1.2</schemaversion>
  </metadata>
  <organizations default="golf_org">
    <organization identifier="golf_org">
      <title>Golf Explained</title>
      <item identifier="item_1" identifierref="res_1"><title>Playing the Game</title></item>
      <item identifier="item_2" identifierref="res_2"><title>Etiquette</title></item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="res_1" href="playing/index.html"/>
    <resource identifier="res_2" href="etiquette/index.html"/>
  </resources>
</manifest>`

type ingestEnv struct {
	ingestor *Ingestor
	store    *ProgressStore
	db       *gorm.DB
	root     string
}

func newIngestEnv(t *testing.T, migrate bool) *ingestEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	if migrate {
		require.NoError(t, db.AutoMigrate(&models.ScormPackage{}))
	}

	root := t.TempDir()
	files := utils.NewFileStore(filepath.Join(root, "uploads"), filepath.Join(root, "content"), "/content")
	store := NewProgressStore(rdb, time.Hour, 24*time.Hour)
	registry := NewRegistry(rdb, 24*time.Hour)

	ingestor := NewIngestor(db, store, registry, files, filepath.Join(root, "workspace"), 1, 3)
	return &ingestEnv{ingestor: ingestor, store: store, db: db, root: root}
}

// writeArchive drops a zip fixture into the upload area and returns its path
func (e *ingestEnv) writeArchive(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	dir := filepath.Join(e.root, "uploads")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for entryName, content := range entries {
		entry, err := w.Create(entryName)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

// runNext dequeues and processes exactly one job
func (e *ingestEnv) runNext(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	jobID, err := e.store.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	e.ingestor.process(ctx, jobID)
	return jobID
}

func TestIngestValidPackageCompletes(t *testing.T) {
	env := newIngestEnv(t, true)
	ctx := context.Background()

	blob := env.writeArchive(t, "golf.zip", map[string]string{
		"course/imsmanifest.xml":      testManifest,
		"course/playing/index.html":   "<html>playing</html>",
		"course/etiquette/index.html": "<html>etiquette</html>",
	})

	jobID, err := env.ingestor.Submit(ctx, 42, blob, "golf.zip", 2048, map[string]string{
		"description": "golf",
		"version":     "scorm 1.2", // matches the manifest, canonicalized
	})
	require.NoError(t, err)

	env.runNext(t)

	rec, err := env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, 2, rec.Result.EntryCount)
	assert.Equal(t, "Golf Explained", rec.Result.Title)
	assert.Equal(t, "1.2", rec.Result.Version)
	assert.NotEmpty(t, rec.Result.PackageID)
	assert.Equal(t, "/content/"+rec.Result.PackageID+"/course/playing/index.html", rec.Result.LaunchURL)

	// The package row mirrors the result
	var pkg models.ScormPackage
	require.NoError(t, env.db.Where("package_id = ?", rec.Result.PackageID).First(&pkg).Error)
	assert.Equal(t, "Golf Explained", pkg.Title)
	assert.Equal(t, "golf", pkg.Description)
	assert.Equal(t, "course/playing/index.html", pkg.LaunchPath)
	assert.Equal(t, int64(2048), pkg.FileSize)
	assert.NotEmpty(t, pkg.FileHash)
	assert.True(t, pkg.IsActive)

	// Manifest order survives persistence
	var manifest scorm.Manifest
	require.NoError(t, json.Unmarshal([]byte(pkg.ManifestJSON), &manifest))
	require.Len(t, manifest.Entries, 2)
	assert.Equal(t, "item_1", manifest.Entries[0].Identifier)
	assert.Equal(t, "item_2", manifest.Entries[1].Identifier)

	// Content was promoted, workspace and upload blob were released
	_, err = os.Stat(filepath.Join(env.root, "content", pkg.PackageID, "course", "playing", "index.html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.root, "workspace", jobID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(blob)
	assert.True(t, os.IsNotExist(err))
}

func TestIngestMissingDescriptorFails(t *testing.T) {
	env := newIngestEnv(t, true)
	ctx := context.Background()

	blob := env.writeArchive(t, "bad.zip", map[string]string{
		"index.html": "<html></html>",
	})

	jobID, err := env.ingestor.Submit(ctx, 42, blob, "bad.zip", 128, nil)
	require.NoError(t, err)

	env.runNext(t)

	rec, err := env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	// A structurally bad package is fatal on the first attempt, never retried
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "MissingDescriptor", rec.Result.ErrorCode)
	assert.Equal(t, StatusValidating, rec.Result.FailedStage)
	// The failed record keeps the progress of the stage it died in
	assert.Equal(t, 5, rec.Progress)

	var count int64
	env.db.Model(&models.ScormPackage{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestIngestNoLaunchableEntriesFails(t *testing.T) {
	env := newIngestEnv(t, true)
	ctx := context.Background()

	blob := env.writeArchive(t, "empty.zip", map[string]string{
		"imsmanifest.xml": `<?xml version="1.0"?>
<manifest identifier="m"><metadata><schemaversion>1.2</schemaversion></metadata>
<organizations default="o"><organization identifier="o"><title>Empty</title></organization></organizations>
<resources/></manifest>`,
	})

	jobID, err := env.ingestor.Submit(ctx, 42, blob, "empty.zip", 128, nil)
	require.NoError(t, err)

	env.runNext(t)

	rec, err := env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "NoLaunchableEntries", rec.Result.ErrorCode)
	assert.Equal(t, StatusParsingManifest, rec.Result.FailedStage)
	assert.Equal(t, 35, rec.Progress)
}

func TestIngestDeclaredVersionMismatchFails(t *testing.T) {
	env := newIngestEnv(t, true)
	ctx := context.Background()

	blob := env.writeArchive(t, "golf.zip", map[string]string{
		"imsmanifest.xml":    testManifest, // schemaversion 1.2
		"playing/index.html": "<html></html>",
	})

	jobID, err := env.ingestor.Submit(ctx, 42, blob, "golf.zip", 512, map[string]string{"version": "2004"})
	require.NoError(t, err)

	env.runNext(t)

	rec, err := env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "UnsupportedVersion", rec.Result.ErrorCode)
	assert.Equal(t, StatusParsingManifest, rec.Result.FailedStage)
	assert.Contains(t, rec.Result.ErrorMessage, "2004")

	var count int64
	env.db.Model(&models.ScormPackage{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestCancelledJobIsNeverProcessed(t *testing.T) {
	env := newIngestEnv(t, true)
	ctx := context.Background()

	blob := env.writeArchive(t, "golf.zip", map[string]string{
		"imsmanifest.xml":    testManifest,
		"playing/index.html": "<html></html>",
	})

	jobID, err := env.ingestor.Submit(ctx, 42, blob, "golf.zip", 512, nil)
	require.NoError(t, err)

	require.NoError(t, env.store.Cancel(ctx, jobID))

	env.runNext(t)

	rec, err := env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)

	// The upload was dropped and nothing was persisted
	_, err = os.Stat(blob)
	assert.True(t, os.IsNotExist(err))
	var count int64
	env.db.Model(&models.ScormPackage{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestTransientFailureRetriesThenPermanentlyFails(t *testing.T) {
	// No migration: the persist stage hits a missing table, which counts as
	// a transient internal error and burns the attempt budget
	env := newIngestEnv(t, false)
	ctx := context.Background()

	blob := env.writeArchive(t, "golf.zip", map[string]string{
		"imsmanifest.xml":    testManifest,
		"playing/index.html": "<html></html>",
	})

	jobID, err := env.ingestor.Submit(ctx, 42, blob, "golf.zip", 512, nil)
	require.NoError(t, err)

	// Attempts 1 and 2 re-enqueue the whole job
	env.runNext(t)
	rec, err := env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	env.runNext(t)
	rec, err = env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	assert.Equal(t, 2, rec.Attempts)

	// Attempt 3 exhausts the budget
	env.runNext(t)
	rec, err = env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusPermanentlyFailed, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "InternalError", rec.Result.ErrorCode)

	// Re-enqueueing by mistake must not run it again
	require.NoError(t, env.store.Enqueue(ctx, jobID))
	env.runNext(t)
	rec, err = env.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusPermanentlyFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
}

func TestRegistryMembership(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	registry := NewRegistry(rdb, time.Hour)
	ctx := context.Background()

	require.NoError(t, registry.Add(ctx, "job-1", "conn-a", nil))
	require.NoError(t, registry.Add(ctx, "job-1", "conn-b", nil))

	watchers, err := registry.Watchers(ctx, "job-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, watchers)

	// Registry entries never outlive the job records they refer to
	ttl := mr.TTL(WatchersKey("job-1"))
	assert.True(t, ttl > 0 && ttl <= time.Hour)

	registry.Remove(ctx, "job-1", "conn-a")
	watchers, err = registry.Watchers(ctx, "job-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-b"}, watchers)

	registry.Remove(ctx, "job-1", "conn-b")
	watchers, err = registry.Watchers(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, watchers)
}

func TestPublishDeliversOnlyFutureEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	registry := NewRegistry(rdb, time.Hour)
	ctx := context.Background()

	// Published before anyone listens: must not be replayed to late joiners
	registry.Publish(ctx, ProgressRecord{
		JobID: "job-1", Status: StatusValidating, Stage: StatusValidating, Progress: 5,
	})

	sub := rdb.Subscribe(ctx, EventChannel("job-1"))
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx) // subscription confirmed before publishing continues
	require.NoError(t, err)
	events := sub.Channel()

	registry.Publish(ctx, ProgressRecord{
		JobID: "job-1", Status: StatusExtracting, Stage: StatusExtracting,
		Progress: 30, Details: "Package content extracted",
	})

	select {
	case msg := <-events:
		var rec ProgressRecord
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &rec))
		assert.Equal(t, "job-1", rec.JobID)
		// Observers see the same collapsed status the polling endpoint reports
		assert.Equal(t, StatusProcessing, rec.Status)
		assert.Equal(t, StatusExtracting, rec.Stage)
		assert.Equal(t, 30, rec.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress event delivered")
	}

	// Terminal outcomes pass through unchanged
	registry.Publish(ctx, ProgressRecord{
		JobID: "job-1", Status: StatusFailed, Stage: StatusFailed,
		Result: &JobResult{Status: StatusFailed, ErrorCode: "MissingDescriptor"},
	})

	select {
	case msg := <-events:
		var rec ProgressRecord
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &rec))
		assert.Equal(t, StatusFailed, rec.Status)
		require.NotNil(t, rec.Result)
		assert.Equal(t, "MissingDescriptor", rec.Result.ErrorCode)
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal event delivered")
	}

	// Nothing else arrives: the pre-subscribe event is gone for good
	select {
	case msg := <-events:
		t.Fatalf("unexpected replayed event: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}
