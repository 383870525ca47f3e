package runtimeControllers

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"scormhub/database"
	"scormhub/middleware"
	"scormhub/models"
	"scormhub/scorm"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm/clause"
)

// CommitSession merges a runtime delta into the session. The whole commit is
// one transaction: either every scalar merge and every new interaction insert
// lands, or nothing does. There is no internal retry; a storage conflict goes
// straight back to the caller.
func CommitSession(c *fiber.Ctx) error {
	token := c.Locals("sessionToken").(string)
	data, ok := c.Locals("commitData").(*scorm.CommitData)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid commit payload!", nil)
	}

	var session models.ScormSession
	if err := database.Database.Db.Where("token = ?", token).First(&session).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Session not found!", nil)
	}

	var pkg models.ScormPackage
	if err := database.Database.Db.First(&pkg, session.PackageID).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Session package is missing!", nil)
	}

	version, err := scorm.CanonicalVersion(pkg.Version)
	if err != nil {
		log.Printf("Package %s carries an invalid version %q: %v", pkg.PackageID, pkg.Version, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Package version is invalid!", nil)
	}
	strategy := scorm.StrategyFor(version)

	now := time.Now()

	// Validation happens before any mutation; an invalid element rejects the
	// whole commit and leaves the session exactly as it was.
	if err := scorm.ApplyCommit(strategy, &session, data, now); err != nil {
		var cmiErr *scorm.InvalidCmiElementError
		if errors.As(err, &cmiErr) {
			return middleware.JsonResponse(c, fiber.StatusUnprocessableEntity, false, "Commit rejected.", fiber.Map{
				"error":   "InvalidCmiElement",
				"element": cmiErr.Element,
				"message": cmiErr.Error(),
			})
		}
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, err.Error(), nil)
	}

	newInteractions := dedupeInteractions(session.ID, data.Interactions, now)

	tx := database.Database.Db.Begin()
	if tx.Error != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to open transaction!", nil)
	}

	if err := tx.Save(&session).Error; err != nil {
		tx.Rollback()
		log.Printf("Error saving session %s: %v", token, err)
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Commit failed, please retry from current state!", nil)
	}

	if len(newInteractions) > 0 {
		// The composite unique index backs this up: replayed ids are skipped,
		// never overwritten
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&newInteractions).Error; err != nil {
			tx.Rollback()
			log.Printf("Error inserting interactions for session %s: %v", token, err)
			return middleware.JsonResponse(c, fiber.StatusConflict, false, "Commit failed, please retry from current state!", nil)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Commit failed, please retry from current state!", nil)
	}

	// Echo the merged state so the runtime client needs no second read
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Commit applied.", fiber.Map{
		"session":              SessionSnapshot(&session),
		"interactions_added":   len(newInteractions),
		"interactions_skipped": len(data.Interactions) - len(newInteractions),
	})
}

// dedupeInteractions drops deltas whose id already exists for the session and
// collapses duplicates inside the payload itself, keeping the first occurrence.
func dedupeInteractions(sessionID uint, deltas []scorm.InteractionDelta, commitTime time.Time) []models.ScormInteraction {
	if len(deltas) == 0 {
		return nil
	}

	var existing []string
	database.Database.Db.Model(&models.ScormInteraction{}).
		Where("session_id = ?", sessionID).
		Pluck("interaction_id", &existing)

	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}

	var records []models.ScormInteraction
	for _, d := range deltas {
		if d.ID == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		records = append(records, scorm.NewInteraction(sessionID, d, commitTime, encodeList))
	}
	return records
}

// encodeList serializes an ordered response list at the storage boundary
func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
