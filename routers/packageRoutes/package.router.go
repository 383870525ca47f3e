package packageRoutes

import (
	controllers "scormhub/controllers/packageControllers"
	"scormhub/middleware"
	validators "scormhub/validators/packageValidator"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// SetupPackageRoutes sets up package ingestion and management routes
func SetupPackageRoutes(app *fiber.App) {
	pkgGroup := app.Group("/package")

	// Ingestion
	pkgGroup.Post("/upload", middleware.JWTMiddleware, validators.UploadPackage(), controllers.UploadPackage)
	pkgGroup.Post("/import", middleware.JWTMiddleware, validators.ImportPackage(), controllers.ImportPackage)

	// Job progress: polling, cancel and live websocket observers
	pkgGroup.Get("/job/:jobId/status", middleware.JWTMiddleware, validators.JobID(), controllers.JobStatus)
	pkgGroup.Post("/job/:jobId/cancel", middleware.JWTMiddleware, validators.JobID(), controllers.CancelJob)
	pkgGroup.Get("/job/:jobId/ws", controllers.UpgradeProgressSocket, websocket.New(controllers.ProgressSocket))

	// Package management
	pkgGroup.Get("/list", middleware.JWTMiddleware, validators.ListPackages(), controllers.ListPackages)
	pkgGroup.Get("/:id", middleware.JWTMiddleware, validators.PackageID(), controllers.GetPackage)
	pkgGroup.Patch("/:id", middleware.JWTMiddleware, validators.PackageID(), validators.UpdatePackage(), controllers.UpdatePackage)
	pkgGroup.Delete("/:id", middleware.JWTMiddleware, validators.PackageID(), controllers.DeletePackage)
}
