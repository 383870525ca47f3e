package packageValidator

import (
	"path/filepath"
	"strings"

	"scormhub/controllers/packageControllers"
	"scormhub/middleware"
	"scormhub/scorm"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Uploads beyond this are rejected before any work is queued
const maxUploadBytes = 500 << 20

func UploadPackage() fiber.Handler {
	return func(c *fiber.Ctx) error {
		file, err := c.FormFile("package")
		if err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Package file is required!", nil)
		}

		errors := make(map[string]string)

		if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".zip" {
			errors["package"] = "Package must be a .zip archive!"
		}
		if file.Size <= 0 {
			errors["package"] = "Package file is empty!"
		}
		if file.Size > maxUploadBytes {
			errors["package"] = "Package exceeds the maximum upload size!"
		}

		metadata := map[string]string{}
		if title := strings.TrimSpace(c.FormValue("title")); title != "" {
			metadata["title"] = title
		}
		if description := strings.TrimSpace(c.FormValue("description")); description != "" {
			metadata["description"] = description
		}

		// Optional dialect hint; the manifest stays authoritative
		if version := strings.TrimSpace(c.FormValue("version")); version != "" {
			if _, err := scorm.CanonicalVersion(version); err != nil {
				errors["version"] = err.Error()
			} else {
				metadata["version"] = version
			}
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("packageFile", file)
		c.Locals("packageMetadata", metadata)
		return c.Next()
	}
}

func ImportPackage() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(packageControllers.ImportRequest)

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		url := strings.TrimSpace(reqData.URL)
		if url == "" {
			errors["url"] = "URL is required!"
		} else if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			errors["url"] = "URL must be http or https!"
		}
		reqData.URL = url

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("importRequest", reqData)
		return c.Next()
	}
}

func JobID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		jobID := strings.TrimSpace(c.Params("jobId"))
		if jobID == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Job ID is required!", nil)
		}

		// Job ids are always UUIDs we issued ourselves
		if _, err := uuid.Parse(jobID); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Job ID!", nil)
		}

		c.Locals("jobId", jobID)
		return c.Next()
	}
}

func PackageID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		packageID := strings.TrimSpace(c.Params("id"))
		if packageID == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Package ID is required!", nil)
		}
		if _, err := uuid.Parse(packageID); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Package ID!", nil)
		}

		c.Locals("packageId", packageID)
		return c.Next()
	}
}

func ListPackages() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			Page  *int `json:"page"`
			Limit *int `json:"limit"`
		})

		if err := c.QueryParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}

		// Pagination is optional for package listings
		if reqData.Page == nil && reqData.Limit == nil {
			return c.Next()
		}

		errors := make(map[string]string)

		if reqData.Page == nil || *reqData.Page < 1 {
			errors["page"] = "Page must be greater than 0!"
		}
		if reqData.Limit == nil || *reqData.Limit < 1 || *reqData.Limit > 100 {
			errors["limit"] = "Limit must be between 1 and 100!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedPackageList", reqData)
		return c.Next()
	}
}

func UpdatePackage() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			IsActive    *bool   `json:"is_active"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		if reqData.Title == nil && reqData.Description == nil && reqData.IsActive == nil {
			errors["body"] = "At least one field must be provided!"
		}
		if reqData.Title != nil && strings.TrimSpace(*reqData.Title) == "" {
			errors["title"] = "Title cannot be empty!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedPackageUpdate", reqData)
		return c.Next()
	}
}
