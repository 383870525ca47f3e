package main

import (
	"time"

	"scormhub/config"
	packageControllers "scormhub/controllers/packageControllers"
	runtimeControllers "scormhub/controllers/runtimeControllers"
	"scormhub/database"
	"scormhub/jobs"
	authRoutes "scormhub/routers/authRoutes"
	packageRoutes "scormhub/routers/packageRoutes"
	runtimeRoutes "scormhub/routers/runtimeRoutes"
	"scormhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"log"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()
	database.ConnectRedis()

	cfg := config.AppConfig

	// Ingestion pipeline wiring: progress store, observer registry, worker pool
	files := utils.NewFileStore(cfg.UploadDir, cfg.ContentDir, cfg.ContentBaseURL)
	store := jobs.NewProgressStore(database.Redis,
		time.Duration(cfg.JobStatusTTL)*time.Second,
		time.Duration(cfg.JobResultTTL)*time.Second)
	registry := jobs.NewRegistry(database.Redis, time.Duration(cfg.WsRegistryTTL)*time.Second)

	ingestor := jobs.NewIngestor(database.Database.Db, store, registry, files,
		cfg.WorkspaceDir, cfg.IngestWorkers, cfg.IngestMaxAttempts)
	ingestor.Notify = packageControllers.NotifyOwner
	ingestor.Start()
	defer ingestor.Stop()

	packageControllers.Setup(ingestor, store, registry, files)
	runtimeControllers.Setup(files)

	utils.StartCleanupScheduler()

	app := fiber.New(fiber.Config{
		BodyLimit: 512 * 1024 * 1024, // uploads are whole SCORM archives
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",    // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization",   // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	// Extracted package content is served directly by the web process
	app.Static(cfg.ContentBaseURL, cfg.ContentDir)

	authRoutes.SetupAuthRoutes(app)
	packageRoutes.SetupPackageRoutes(app)
	runtimeRoutes.SetupRuntimeRoutes(app)

	log.Printf("Server is running on port %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
