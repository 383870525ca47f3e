package packageControllers

import (
	"encoding/json"
	"log"

	"scormhub/database"
	"scormhub/middleware"
	"scormhub/models"
	"scormhub/scorm"

	"github.com/gofiber/fiber/v2"
)

// ListPackages returns the caller's packages, paginated
func ListPackages(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	reqData, ok := c.Locals("validatedPackageList").(*struct {
		Page  *int `json:"page"`
		Limit *int `json:"limit"`
	})

	db := database.Database.Db.Model(&models.ScormPackage{}).Where("owner_id = ? AND is_deleted = ?", userID, false)

	var total int64
	db.Count(&total)

	page, limit := 1, 20
	if ok {
		page, limit = *reqData.Page, *reqData.Limit
	}
	offset := (page - 1) * limit

	var packages []models.ScormPackage
	if err := db.Offset(offset).Limit(limit).Order("created_at desc").Find(&packages).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch packages!", nil)
	}

	response := map[string]interface{}{
		"packages": packages,
		"pagination": map[string]interface{}{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Packages fetched successfully!", response)
}

// GetPackage returns one package with its parsed manifest and launch URL
func GetPackage(c *fiber.Ctx) error {
	packageID := c.Locals("packageId").(string)

	var pkg models.ScormPackage
	if err := database.Database.Db.Where("package_id = ? AND is_deleted = ?", packageID, false).First(&pkg).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Package not found!", nil)
	}

	var manifest scorm.Manifest
	if err := json.Unmarshal([]byte(pkg.ManifestJSON), &manifest); err != nil {
		log.Printf("Error decoding manifest for package %s: %v", packageID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to decode package manifest!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Package fetched successfully!", fiber.Map{
		"package":    pkg,
		"manifest":   manifest,
		"launch_url": Files.PublicURL(pkg.ContentPath, pkg.LaunchPath),
	})
}

// UpdatePackage edits the mutable metadata of a package. The content location
// is immutable after ingestion and is deliberately not touchable here.
func UpdatePackage(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	packageID := c.Locals("packageId").(string)

	reqData, ok := c.Locals("validatedPackageUpdate").(*struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		IsActive    *bool   `json:"is_active"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	var pkg models.ScormPackage
	if err := database.Database.Db.Where("package_id = ? AND owner_id = ? AND is_deleted = ?", packageID, userID, false).First(&pkg).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Package not found!", nil)
	}

	if reqData.Title != nil {
		pkg.Title = *reqData.Title
	}
	if reqData.Description != nil {
		pkg.Description = *reqData.Description
	}
	if reqData.IsActive != nil {
		pkg.IsActive = *reqData.IsActive
	}

	if err := database.Database.Db.Save(&pkg).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update package!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Package updated successfully!", pkg)
}

// DeletePackage soft-deletes a package. Content blob retention is handled by
// the cleanup policy, not here.
func DeletePackage(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	packageID := c.Locals("packageId").(string)

	var pkg models.ScormPackage
	if err := database.Database.Db.Where("package_id = ? AND owner_id = ? AND is_deleted = ?", packageID, userID, false).First(&pkg).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Package not found!", nil)
	}

	pkg.IsDeleted = true
	pkg.IsActive = false
	if err := database.Database.Db.Save(&pkg).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to delete package!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Package deleted successfully!", nil)
}
