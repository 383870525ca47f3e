package runtimeRoutes

import (
	controllers "scormhub/controllers/runtimeControllers"
	"scormhub/middleware"
	validators "scormhub/validators/runtimeValidator"

	"github.com/gofiber/fiber/v2"
)

// SetupRuntimeRoutes sets up the SCORM runtime tracking protocol
func SetupRuntimeRoutes(app *fiber.App) {
	runtimeGroup := app.Group("/runtime")

	// Session lifecycle
	runtimeGroup.Post("/package/:packageId/session", middleware.JWTMiddleware, validators.PackageID(), controllers.LaunchSession)
	runtimeGroup.Get("/session/:token", middleware.JWTMiddleware, validators.SessionToken(), controllers.GetSession)
	runtimeGroup.Post("/session/:token/suspend", middleware.JWTMiddleware, validators.SessionToken(), validators.Suspend(), controllers.SuspendSession)
	runtimeGroup.Post("/session/:token/terminate", middleware.JWTMiddleware, validators.SessionToken(), controllers.TerminateSession)

	// Commit: the runtime client's periodic state push
	runtimeGroup.Post("/session/:token/commit", middleware.JWTMiddleware, validators.SessionToken(), validators.Commit(), controllers.CommitSession)
}
