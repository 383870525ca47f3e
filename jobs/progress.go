package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job statuses. The first six are the pipeline states in order; the last three
// are terminal outcomes that never transition again.
const (
	StatusReceived          = "received"
	StatusValidating        = "validating"
	StatusExtracting        = "extracting"
	StatusParsingManifest   = "parsing_manifest"
	StatusPersisting        = "persisting"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusPermanentlyFailed = "permanently_failed"
	StatusCancelled         = "cancelled"
)

// StatusProcessing is the collapsed non-terminal status shown to API clients.
// The pipeline states above stay internal; the stage field keeps the detail.
const StatusProcessing = "processing"

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrNotCancellable = errors.New("not cancellable")
)

// ProgressRecord is the live view of one ingestion job
type ProgressRecord struct {
	JobID     string     `json:"job_id"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage"`
	Progress  int        `json:"progress"`
	Details   string     `json:"stage_details"`
	Filename  string     `json:"filename"`
	SizeBytes int64      `json:"size_bytes"`
	OwnerID   uint       `json:"owner_id"`
	BlobPath  string     `json:"-"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Public returns the externally visible view of the record: any pipeline state
// collapses into processing, terminal outcomes pass through unchanged.
func (r ProgressRecord) Public() ProgressRecord {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusPermanentlyFailed, StatusCancelled:
		return r
	}
	r.Status = StatusProcessing
	return r
}

// JobResult is the terminal payload of a job. Once present it is authoritative
// over the live progress record and it outlives it (longer TTL).
type JobResult struct {
	Status       string    `json:"status"`
	PackageID    string    `json:"package_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Version      string    `json:"version,omitempty"`
	LaunchURL    string    `json:"launch_url,omitempty"`
	EntryCount   int       `json:"entry_count,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FailedStage  string    `json:"failed_stage,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ProgressStore keeps job progress and results in Redis, one hash per job id.
// Everything the HTTP handlers and the workers share goes through here.
type ProgressStore struct {
	rdb       *redis.Client
	statusTTL time.Duration
	resultTTL time.Duration
}

func NewProgressStore(rdb *redis.Client, statusTTL, resultTTL time.Duration) *ProgressStore {
	return &ProgressStore{rdb: rdb, statusTTL: statusTTL, resultTTL: resultTTL}
}

func jobKey(jobID string) string    { return "scorm:job:" + jobID }
func resultKey(jobID string) string { return "scorm:job:" + jobID + ":result" }

// EventChannel is the pub/sub channel progress records fan out on
func EventChannel(jobID string) string { return "scorm:job:" + jobID + ":events" }

// WatchersKey is the registry membership set for a job's observers
func WatchersKey(jobID string) string { return "scorm:job:" + jobID + ":watchers" }

// QueueKey is the list the ingest workers consume
const QueueKey = "scorm:ingest:queue"

// CreateJob writes the initial received record
func (s *ProgressStore) CreateJob(ctx context.Context, rec ProgressRecord) error {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":     StatusReceived,
		"stage":      StatusReceived,
		"progress":   0,
		"details":    "Upload received, queued for processing",
		"filename":   rec.Filename,
		"size_bytes": rec.SizeBytes,
		"owner_id":   rec.OwnerID,
		"blob_path":  rec.BlobPath,
		"attempts":   0,
		"created_at": now.Format(time.RFC3339Nano),
		"updated_at": now.Format(time.RFC3339Nano),
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(rec.JobID), fields)
	pipe.Expire(ctx, jobKey(rec.JobID), s.statusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetStage records entry into a pipeline state and returns the updated record
func (s *ProgressStore) SetStage(ctx context.Context, jobID, status string, progress int, details string) (ProgressRecord, error) {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), map[string]interface{}{
		"status":     status,
		"stage":      status,
		"progress":   progress,
		"details":    details,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, jobKey(jobID), s.statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return ProgressRecord{}, err
	}
	return s.loadProgress(ctx, jobID)
}

// SetResult writes the terminal result and mirrors the terminal status into
// the progress hash for late pollers. The result carries the longer TTL.
func (s *ProgressStore) SetResult(ctx context.Context, jobID string, result JobResult) (ProgressRecord, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return ProgressRecord{}, err
	}
	details := "Package ingested successfully"
	if result.ErrorMessage != "" {
		details = result.ErrorMessage
	}
	fields := map[string]interface{}{
		"status":     result.Status,
		"stage":      result.Status,
		"details":    details,
		"error":      result.ErrorMessage,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	// A failed record keeps the progress of the stage it died in
	if result.Status == StatusCompleted {
		fields["progress"] = 100
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, resultKey(jobID), payload, s.resultTTL)
	pipe.HSet(ctx, jobKey(jobID), fields)
	pipe.Expire(ctx, jobKey(jobID), s.resultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return ProgressRecord{}, err
	}
	rec, err := s.loadProgress(ctx, jobID)
	if err != nil {
		return ProgressRecord{}, err
	}
	rec.Result = &result
	return rec, nil
}

// GetJob resolves a job id to its current view. The result record wins when
// both it and a progress record exist.
func (s *ProgressStore) GetJob(ctx context.Context, jobID string) (ProgressRecord, error) {
	rec, err := s.loadProgress(ctx, jobID)

	raw, resErr := s.rdb.Get(ctx, resultKey(jobID)).Result()
	if resErr == nil {
		var result JobResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			if rec.JobID == "" {
				// progress hash already expired, rebuild the essentials
				rec = ProgressRecord{JobID: jobID, Progress: 100}
			}
			rec.Status = result.Status
			rec.Stage = result.Status
			rec.Result = &result
			rec.Error = result.ErrorMessage
			return rec, nil
		}
	}

	if err != nil {
		return ProgressRecord{}, err
	}
	return rec, nil
}

// cancelScript flips a job to cancelled only while it is still waiting in
// received. Returning the current status lets the caller explain a refusal.
var cancelScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'missing' end
if status == 'received' then
  redis.call('HSET', KEYS[1], 'status', 'cancelled', 'stage', 'cancelled', 'details', 'Cancelled before processing started', 'progress', 0)
  return 'cancelled'
end
return status
`)

// Cancel attempts a cooperative cancel. Only a job still in received can be
// cancelled; anything later is rejected with ErrNotCancellable.
func (s *ProgressStore) Cancel(ctx context.Context, jobID string) error {
	res, err := cancelScript.Run(ctx, s.rdb, []string{jobKey(jobID)}).Text()
	if err != nil {
		return err
	}
	switch res {
	case "cancelled":
		return nil
	case "missing":
		return ErrJobNotFound
	default:
		return fmt.Errorf("%w: job already %s", ErrNotCancellable, res)
	}
}

// claimScript atomically moves received -> validating and bumps the attempt
// counter, so an HTTP cancel and a worker claim can never interleave.
var claimScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return {'missing', 0} end
if status == 'received' then
  local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  redis.call('HSET', KEYS[1], 'status', 'validating', 'stage', 'validating', 'updated_at', ARGV[1])
  return {'claimed', attempts}
end
return {status, tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')}
`)

// Claim is called by a worker after dequeueing a job id. It reports whether
// the worker may process the job and which attempt this is.
func (s *ProgressStore) Claim(ctx context.Context, jobID string) (status string, attempts int, err error) {
	res, err := claimScript.Run(ctx, s.rdb, []string{jobKey(jobID)}, time.Now().UTC().Format(time.RFC3339Nano)).Slice()
	if err != nil {
		return "", 0, err
	}
	if len(res) != 2 {
		return "", 0, fmt.Errorf("unexpected claim reply: %v", res)
	}
	status, _ = res[0].(string)
	if n, ok := res[1].(int64); ok {
		attempts = int(n)
	}
	if status == "missing" {
		return "", 0, ErrJobNotFound
	}
	return status, attempts, nil
}

// Enqueue pushes a job id onto the durable work queue
func (s *ProgressStore) Enqueue(ctx context.Context, jobID string) error {
	return s.rdb.LPush(ctx, QueueKey, jobID).Err()
}

// Dequeue blocks up to timeout for the next job id. Returns redis.Nil when
// the queue stayed empty.
func (s *ProgressStore) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.rdb.BRPop(ctx, timeout, QueueKey).Result()
	if err != nil {
		return "", err
	}
	// BRPOP replies [key, value]
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply: %v", res)
	}
	return res[1], nil
}

// SetMetadata attaches caller-supplied metadata (title, description, ...) to a job
func (s *ProgressStore) SetMetadata(ctx context.Context, jobID string, metadata map[string]string) error {
	fields := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		fields["meta:"+k] = v
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), fields)
	pipe.Expire(ctx, jobKey(jobID), s.statusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetMetadata reads back the caller-supplied metadata for a job
func (s *ProgressStore) GetMetadata(ctx context.Context, jobID string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string)
	for k, v := range fields {
		if strings.HasPrefix(k, "meta:") {
			meta[strings.TrimPrefix(k, "meta:")] = v
		}
	}
	return meta, nil
}

// Requeue puts a failed attempt back on the queue for another try
func (s *ProgressStore) Requeue(ctx context.Context, jobID string, attempt, maxAttempts int) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), map[string]interface{}{
		"status":     StatusReceived,
		"stage":      StatusReceived,
		"progress":   0,
		"details":    fmt.Sprintf("Retrying after failure (attempt %d of %d)", attempt, maxAttempts),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, jobKey(jobID), s.statusTTL)
	pipe.LPush(ctx, QueueKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *ProgressStore) loadProgress(ctx context.Context, jobID string) (ProgressRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return ProgressRecord{}, err
	}
	if len(fields) == 0 {
		return ProgressRecord{}, ErrJobNotFound
	}
	return recordFromFields(jobID, fields), nil
}

func recordFromFields(jobID string, fields map[string]string) ProgressRecord {
	rec := ProgressRecord{
		JobID:    jobID,
		Status:   fields["status"],
		Stage:    fields["stage"],
		Details:  fields["details"],
		Filename: fields["filename"],
		BlobPath: fields["blob_path"],
		Error:    fields["error"],
	}
	rec.Progress, _ = strconv.Atoi(fields["progress"])
	rec.SizeBytes, _ = strconv.ParseInt(fields["size_bytes"], 10, 64)
	rec.Attempts, _ = strconv.Atoi(fields["attempts"])
	if owner, err := strconv.ParseUint(fields["owner_id"], 10, 64); err == nil {
		rec.OwnerID = uint(owner)
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}
