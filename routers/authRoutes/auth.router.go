package authRoutes

import (
	authController "scormhub/controllers/auth"

	"github.com/gofiber/fiber/v2"
)

// SetupAuthRoutes sets up registration and login
func SetupAuthRoutes(app *fiber.App) {
	authGroup := app.Group("/auth")

	authGroup.Post("/register", authController.Signup)
	authGroup.Post("/login", authController.Login)
}
