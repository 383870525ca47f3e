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
	"scormhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Injected once at startup; see main.go
var Files *utils.FileStore

// Setup injects the file store used to resolve launch URLs
func Setup(files *utils.FileStore) {
	Files = files
}

// LaunchSession starts or resumes a tracking session for (package, learner).
// A non-terminal session is resumed; a terminal one gets a fresh token.
func LaunchSession(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	packageID := c.Locals("packageId").(string)

	var pkg models.ScormPackage
	if err := database.Database.Db.Where("package_id = ? AND is_active = ? AND is_deleted = ?", packageID, true, false).First(&pkg).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Package not found or inactive!", nil)
	}

	version, err := scorm.CanonicalVersion(pkg.Version)
	if err != nil {
		log.Printf("Package %s carries an invalid version %q: %v", packageID, pkg.Version, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Package version is invalid!", nil)
	}
	strategy := scorm.StrategyFor(version)

	now := time.Now()
	resumed := false

	var session models.ScormSession
	err = database.Database.Db.
		Where("package_id = ? AND user_id = ? AND status IN ?", pkg.ID, userID, []string{models.SessionActive, models.SessionSuspended}).
		Order("created_at desc").First(&session).Error
	if err == nil {
		// Resume the live session
		resumed = true
		if session.Status == models.SessionSuspended {
			session.Status = models.SessionActive
		}
		session.Entry = "resume"
		session.LastAccessed = now
		if err := database.Database.Db.Save(&session).Error; err != nil {
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to resume session!", nil)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		// A transient lookup failure must not spawn a duplicate session
		log.Printf("Error looking up session for package %s: %v", packageID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to look up session!", nil)
	} else {
		session = models.ScormSession{
			Token:            uuid.NewString(),
			PackageID:        pkg.ID,
			UserID:           userID,
			Status:           models.SessionActive,
			LessonStatus:     "not attempted",
			CompletionStatus: "unknown",
			SuccessStatus:    "unknown",
			Entry:            "ab-initio",
			Credit:           "credit",
			Mode:             "normal",
			LastAccessed:     now,
		}
		if err := database.Database.Db.Create(&session).Error; err != nil {
			log.Printf("Error creating session: %v", err)
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to start session!", nil)
		}
	}

	var manifest scorm.Manifest
	_ = json.Unmarshal([]byte(pkg.ManifestJSON), &manifest)

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Session ready.", fiber.Map{
		"session":    SessionSnapshot(&session),
		"resumed":    resumed,
		"api":        strategy.APIConfiguration(),
		"launch_url": Files.PublicURL(pkg.ContentPath, pkg.LaunchPath),
		"entries":    manifest.Entries,
	})
}

// GetSession returns the current CMI snapshot for a session token
func GetSession(c *fiber.Ctx) error {
	token := c.Locals("sessionToken").(string)

	var session models.ScormSession
	if err := database.Database.Db.Where("token = ?", token).First(&session).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Session not found!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Session fetched successfully!", SessionSnapshot(&session))
}

// SuspendSession stores the suspend payload verbatim and parks the session.
// Only legal from ACTIVE.
func SuspendSession(c *fiber.Ctx) error {
	token := c.Locals("sessionToken").(string)
	suspendData, _ := c.Locals("suspendData").(string)

	var session models.ScormSession
	if err := database.Database.Db.Where("token = ?", token).First(&session).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Session not found!", nil)
	}

	if session.Status != models.SessionActive {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Only an active session can be suspended!", nil)
	}

	session.Status = models.SessionSuspended
	session.Exit = "suspend"
	if suspendData != "" {
		session.SuspendData = suspendData // opaque, never interpreted
	}
	session.LastAccessed = time.Now()

	if err := database.Database.Db.Save(&session).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to suspend session!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Session suspended.", SessionSnapshot(&session))
}

// TerminateSession ends a session. Completion and pass state are derived only
// by commit; terminate never computes them.
func TerminateSession(c *fiber.Ctx) error {
	token := c.Locals("sessionToken").(string)

	var session models.ScormSession
	if err := database.Database.Db.Where("token = ?", token).First(&session).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Session not found!", nil)
	}

	if !session.CanResume() {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Session is already terminal!", nil)
	}

	session.Status = models.SessionTerminated
	session.Exit = "logout"
	session.LastAccessed = time.Now()

	if err := database.Database.Db.Save(&session).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to terminate session!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Session terminated.", SessionSnapshot(&session))
}

// SessionSnapshot mirrors the merged session state for the runtime client
func SessionSnapshot(s *models.ScormSession) fiber.Map {
	return fiber.Map{
		"token":              s.Token,
		"status":             s.Status,
		"can_resume":         s.CanResume(),
		"lesson_status":      s.LessonStatus,
		"completion_status":  s.CompletionStatus,
		"success_status":     s.SuccessStatus,
		"score_raw":          s.ScoreRaw,
		"score_scaled":       s.ScoreScaled,
		"location":           s.Location,
		"entry":              s.Entry,
		"exit":               s.Exit,
		"credit":             s.Credit,
		"mode":               s.Mode,
		"suspend_data":       s.SuspendData,
		"session_time":       s.SessionTime,
		"total_time_seconds": s.TotalTimeSeconds,
		"is_completed":       s.IsCompleted,
		"is_passed":          s.IsPassed,
		"completed_at":       s.CompletedAt,
		"last_accessed":      s.LastAccessed,
	}
}
