package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"scormhub/models"
	"scormhub/scorm"
	"scormhub/utils"
)

// Ingestor drives the package ingestion pipeline:
// received -> validating -> extracting -> parsing_manifest -> persisting -> completed.
// One job occupies one worker for its whole lifetime; all shared job state
// goes through the progress store, never through process memory.
type Ingestor struct {
	db           *gorm.DB
	store        *ProgressStore
	registry     *Registry
	files        *utils.FileStore
	workspaceDir string
	workers      int
	maxAttempts  int

	// Notify is invoked once per terminal outcome (email hook); may be nil
	Notify func(rec ProgressRecord)

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewIngestor(db *gorm.DB, store *ProgressStore, registry *Registry, files *utils.FileStore, workspaceDir string, workers, maxAttempts int) *Ingestor {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Ingestor{
		db:           db,
		store:        store,
		registry:     registry,
		files:        files,
		workspaceDir: workspaceDir,
		workers:      workers,
		maxAttempts:  maxAttempts,
		quit:         make(chan struct{}),
	}
}

// Submit registers a new ingestion job and enqueues it. The caller has already
// validated format and size; this returns immediately, work happens async.
func (in *Ingestor) Submit(ctx context.Context, ownerID uint, blobPath, filename string, sizeBytes int64, metadata map[string]string) (string, error) {
	jobID := uuid.NewString()
	rec := ProgressRecord{
		JobID:     jobID,
		OwnerID:   ownerID,
		BlobPath:  blobPath,
		Filename:  filename,
		SizeBytes: sizeBytes,
	}
	if err := in.store.CreateJob(ctx, rec); err != nil {
		return "", err
	}
	if len(metadata) > 0 {
		if err := in.store.SetMetadata(ctx, jobID, metadata); err != nil {
			return "", err
		}
	}
	if err := in.store.Enqueue(ctx, jobID); err != nil {
		return "", err
	}
	log.Printf("[INGEST] Job %s queued for %s (%d bytes)", jobID, filename, sizeBytes)
	return jobID, nil
}

// Start launches the worker pool
func (in *Ingestor) Start() {
	for i := 0; i < in.workers; i++ {
		in.wg.Add(1)
		go in.workerLoop(i)
	}
	log.Printf("[INGEST] Started %d ingest worker(s)", in.workers)
}

// Stop signals the workers and waits for in-flight jobs to finish
func (in *Ingestor) Stop() {
	close(in.quit)
	in.wg.Wait()
}

func (in *Ingestor) workerLoop(id int) {
	defer in.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-in.quit:
			return
		default:
		}

		jobID, err := in.store.Dequeue(ctx, 2*time.Second)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Printf("[INGEST] Worker %d dequeue error: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		in.process(ctx, jobID)
	}
}

func (in *Ingestor) process(ctx context.Context, jobID string) {
	status, attempts, err := in.store.Claim(ctx, jobID)
	if err != nil {
		log.Printf("[INGEST] Job %s claim failed: %v", jobID, err)
		return
	}
	switch status {
	case "claimed":
		// ours to run
	case StatusCancelled:
		// cancelled while queued: nothing was processed, just drop the upload
		if rec, err := in.store.GetJob(ctx, jobID); err == nil {
			in.files.Remove(rec.BlobPath)
		}
		log.Printf("[INGEST] Job %s was cancelled before processing", jobID)
		return
	case StatusPermanentlyFailed:
		// a permanently failed job must never run again, even if re-enqueued
		log.Printf("[INGEST] Refusing to re-run permanently failed job %s", jobID)
		return
	default:
		log.Printf("[INGEST] Job %s not claimable (status %s), skipping", jobID, status)
		return
	}

	rec, err := in.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("[INGEST] Job %s vanished after claim: %v", jobID, err)
		return
	}
	rec.Attempts = attempts

	workspace := filepath.Join(in.workspaceDir, jobID)
	// the extraction workspace is released on every terminal path
	defer os.RemoveAll(workspace)
	defer os.RemoveAll(workspace + ".partial")

	in.run(ctx, rec, workspace)
}

// run executes the pipeline stages for one claimed attempt
func (in *Ingestor) run(ctx context.Context, rec ProgressRecord, workspace string) {
	jobID := rec.JobID

	in.advance(ctx, jobID, StatusValidating, 5, "Validating package archive")
	archive, err := scorm.OpenArchive(rec.BlobPath)
	if err != nil {
		in.fail(ctx, rec, StatusValidating, err)
		return
	}
	defer archive.Close()
	if err := archive.Validate(); err != nil {
		in.fail(ctx, rec, StatusValidating, err)
		return
	}

	in.advance(ctx, jobID, StatusExtracting, 10, "Extracting package content")
	if err := archive.Extract(workspace); err != nil {
		in.fail(ctx, rec, StatusExtracting, err)
		return
	}
	in.advance(ctx, jobID, StatusExtracting, 30, "Package content extracted")

	in.advance(ctx, jobID, StatusParsingManifest, 35, "Parsing imsmanifest.xml")
	raw, err := archive.ReadDescriptor()
	if err != nil {
		in.fail(ctx, rec, StatusParsingManifest, err)
		return
	}
	manifest, err := scorm.ParseManifest(raw)
	if err != nil {
		in.fail(ctx, rec, StatusParsingManifest, err)
		return
	}

	meta, err := in.store.GetMetadata(ctx, jobID)
	if err != nil {
		in.fail(ctx, rec, StatusParsingManifest, err)
		return
	}
	// The uploader may declare a dialect up front; the manifest stays
	// authoritative, but a contradiction means someone mislabeled the package
	if declared := meta["version"]; declared != "" {
		if v, err := scorm.CanonicalVersion(declared); err == nil && v != manifest.Version {
			in.fail(ctx, rec, StatusParsingManifest,
				fmt.Errorf("%w: declared version %q does not match manifest version %s", scorm.ErrUnsupportedVersion, declared, manifest.Version))
			return
		}
	}
	in.advance(ctx, jobID, StatusParsingManifest, 60, "Manifest parsed")

	in.advance(ctx, jobID, StatusPersisting, 65, "Persisting package")
	result, err := in.persist(rec, archive, manifest, meta, workspace)
	if err != nil {
		in.fail(ctx, rec, StatusPersisting, err)
		return
	}

	in.files.Remove(rec.BlobPath)
	in.finish(ctx, rec, *result)
}

// persist promotes the extracted content and writes the package record
func (in *Ingestor) persist(rec ProgressRecord, archive *scorm.Archive, manifest *scorm.Manifest, meta map[string]string, workspace string) (*JobResult, error) {
	hash, err := in.files.HashFile(rec.BlobPath)
	if err != nil {
		return nil, err
	}

	packageID := uuid.NewString()
	launchPath := path.Join(archive.DescriptorDir(), manifest.Primary().LaunchPath)

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}

	title := meta["title"]
	if title == "" {
		title = manifest.Title
	}
	if title == "" {
		title = rec.Filename
	}

	if err := in.files.Promote(workspace, packageID); err != nil {
		return nil, err
	}

	pkg := models.ScormPackage{
		PackageID:    packageID,
		Title:        title,
		Description:  meta["description"],
		Version:      string(manifest.Version),
		ContentPath:  packageID,
		LaunchPath:   launchPath,
		ManifestJSON: string(manifestJSON),
		FileSize:     rec.SizeBytes,
		FileHash:     hash,
		OwnerID:      rec.OwnerID,
		IsActive:     true,
	}
	if err := in.db.Create(&pkg).Error; err != nil {
		return nil, err
	}

	return &JobResult{
		Status:     StatusCompleted,
		PackageID:  packageID,
		Title:      title,
		Version:    string(manifest.Version),
		LaunchURL:  in.files.PublicURL(packageID, launchPath),
		EntryCount: len(manifest.Entries),
		FinishedAt: time.Now().UTC(),
	}, nil
}

// advance records entry into a stage and fans it out to observers
func (in *Ingestor) advance(ctx context.Context, jobID, status string, progress int, details string) {
	rec, err := in.store.SetStage(ctx, jobID, status, progress, details)
	if err != nil {
		log.Printf("[INGEST] Job %s failed to record stage %s: %v", jobID, status, err)
		return
	}
	in.registry.Publish(ctx, rec)
}

// fail handles a stage error. Fatal errors (bad archive, bad manifest) end the
// job immediately; transient I/O and database errors re-enqueue the whole job
// until the attempt budget runs out, after which the job is permanently failed.
func (in *Ingestor) fail(ctx context.Context, rec ProgressRecord, stage string, cause error) {
	code := scorm.ErrorCode(cause)
	retryable := code == "ExtractionFailed" || code == "InternalError"

	log.Printf("[INGEST] Job %s failed in %s (attempt %d/%d): %v", rec.JobID, stage, rec.Attempts, in.maxAttempts, cause)

	if retryable && rec.Attempts < in.maxAttempts {
		if err := in.store.Requeue(ctx, rec.JobID, rec.Attempts, in.maxAttempts); err != nil {
			log.Printf("[INGEST] Job %s requeue failed: %v", rec.JobID, err)
		} else {
			if updated, err := in.store.GetJob(ctx, rec.JobID); err == nil {
				in.registry.Publish(ctx, updated)
			}
			return
		}
	}

	status := StatusFailed
	if retryable {
		status = StatusPermanentlyFailed
	}
	in.files.Remove(rec.BlobPath)
	in.finish(ctx, rec, JobResult{
		Status:       status,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		FailedStage:  stage,
		FinishedAt:   time.Now().UTC(),
	})
}

// finish writes the terminal result, emits the final notification exactly
// once per attempt and fires the owner notification hook.
func (in *Ingestor) finish(ctx context.Context, rec ProgressRecord, result JobResult) {
	final, err := in.store.SetResult(ctx, rec.JobID, result)
	if err != nil {
		log.Printf("[INGEST] Job %s failed to record result: %v", rec.JobID, err)
		return
	}
	final.OwnerID = rec.OwnerID
	final.Filename = rec.Filename
	in.registry.Publish(ctx, final)
	log.Printf("[INGEST] Job %s finished with status %s", rec.JobID, result.Status)

	if in.Notify != nil {
		go in.Notify(final)
	}
}
