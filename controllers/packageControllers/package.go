package packageControllers

import (
	"bytes"
	"context"
	"errors"
	"log"
	"mime/multipart"

	"scormhub/database"
	"scormhub/jobs"
	"scormhub/middleware"
	"scormhub/models"
	"scormhub/utils"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"
)

// Injected once at startup; see main.go
var (
	Ingest *jobs.Ingestor
	Store  *jobs.ProgressStore
	Watch  *jobs.Registry
	Files  *utils.FileStore
)

// Setup injects the ingestion dependencies into this controller package
func Setup(ingest *jobs.Ingestor, store *jobs.ProgressStore, watch *jobs.Registry, files *utils.FileStore) {
	Ingest = ingest
	Store = store
	Watch = watch
	Files = files
}

// UploadPackage accepts a multipart SCORM zip and queues it for ingestion
func UploadPackage(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	file, ok := c.Locals("packageFile").(*multipart.FileHeader)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Package file is required!", nil)
	}
	metadata, _ := c.Locals("packageMetadata").(map[string]string)

	// Stash the blob first; the worker picks it up from disk
	blobPath, err := Files.SaveUpload(file)
	if err != nil {
		log.Printf("Error saving uploaded package: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to store uploaded package!", nil)
	}

	jobID, err := Ingest.Submit(c.Context(), userID, blobPath, file.Filename, file.Size, metadata)
	if err != nil {
		Files.Remove(blobPath)
		log.Printf("Error submitting ingestion job: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to queue package for processing!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusAccepted, true, "Package queued for processing.", fiber.Map{
		"job_id": jobID,
	})
}

// ImportPackage downloads a package archive from a remote URL and queues it
func ImportPackage(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	reqData, ok := c.Locals("importRequest").(*ImportRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid import request!", nil)
	}

	client := resty.New()
	resp, err := client.R().Get(reqData.URL)
	if err != nil {
		log.Printf("Error downloading package from %s: %v", reqData.URL, err)
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Failed to download package from URL!", nil)
	}
	if resp.StatusCode() != fiber.StatusOK {
		log.Printf("Error downloading package from %s: status %d", reqData.URL, resp.StatusCode())
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Failed to download package from URL!", nil)
	}

	body := resp.Body()
	if len(body) == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Downloaded package is empty!", nil)
	}

	filename := reqData.Filename()
	blobPath, err := Files.SaveStream(filename, bytes.NewReader(body))
	if err != nil {
		log.Printf("Error saving downloaded package: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to store downloaded package!", nil)
	}

	metadata := map[string]string{}
	if reqData.Title != "" {
		metadata["title"] = reqData.Title
	}
	if reqData.Description != "" {
		metadata["description"] = reqData.Description
	}

	jobID, err := Ingest.Submit(c.Context(), userID, blobPath, filename, int64(len(body)), metadata)
	if err != nil {
		Files.Remove(blobPath)
		log.Printf("Error submitting ingestion job: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to queue package for processing!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusAccepted, true, "Package queued for processing.", fiber.Map{
		"job_id": jobID,
	})
}

// JobStatus reports the current progress or terminal result of an ingestion job
func JobStatus(c *fiber.Ctx) error {
	jobID := c.Locals("jobId").(string)

	rec, err := Store.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Job not found!", nil)
		}
		log.Printf("Error fetching job %s: %v", jobID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch job status!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Job status fetched successfully!", rec.Public())
}

// CancelJob attempts a cooperative cancel; only queued jobs can be cancelled
func CancelJob(c *fiber.Ctx) error {
	jobID := c.Locals("jobId").(string)

	err := Store.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Job not found!", nil)
		}
		if errors.Is(err, jobs.ErrNotCancellable) {
			return middleware.JsonResponse(c, fiber.StatusConflict, false, "Job could not be cancelled.", fiber.Map{
				"cancelled": false,
				"reason":    "not cancellable",
			})
		}
		log.Printf("Error cancelling job %s: %v", jobID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to cancel job!", nil)
	}

	// Push the terminal record to anyone already watching
	if rec, err := Store.GetJob(context.Background(), jobID); err == nil {
		Watch.Publish(context.Background(), rec)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Job cancelled.", fiber.Map{
		"cancelled": true,
		"reason":    "",
	})
}

// ImportRequest is the validated payload of POST /package/import
type ImportRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Filename derives a stored filename from the download URL
func (r *ImportRequest) Filename() string {
	for i := len(r.URL) - 1; i >= 0; i-- {
		if r.URL[i] == '/' {
			if name := r.URL[i+1:]; name != "" {
				return name
			}
			break
		}
	}
	return "import.zip"
}

// NotifyOwner is the ingestor's terminal hook: look up the uploader and mail
// them the outcome. Failures only get logged, delivery is best effort.
func NotifyOwner(rec jobs.ProgressRecord) {
	var user models.User
	if err := database.Database.Db.Select("name, email").First(&user, rec.OwnerID).Error; err != nil || user.Email == "" {
		return
	}

	if rec.Result == nil {
		return
	}
	switch rec.Result.Status {
	case jobs.StatusCompleted:
		if err := utils.SendPackageReadyEmail(user.Email, user.Name, rec.Result.Title, rec.Result.LaunchURL); err != nil {
			log.Printf("Error sending package ready email: %v", err)
		}
	case jobs.StatusFailed, jobs.StatusPermanentlyFailed:
		if err := utils.SendPackageFailedEmail(user.Email, user.Name, rec.Filename, rec.Result.ErrorCode, rec.Result.ErrorMessage); err != nil {
			log.Printf("Error sending package failed email: %v", err)
		}
	}
}
