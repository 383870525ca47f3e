package runtimeValidator

import (
	"strings"

	"scormhub/middleware"
	"scormhub/scorm"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func PackageID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		packageID := strings.TrimSpace(c.Params("packageId"))
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

func SessionToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Params("token"))
		if token == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Session token is required!", nil)
		}
		if _, err := uuid.Parse(token); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid session token!", nil)
		}

		c.Locals("sessionToken", token)
		return c.Next()
	}
}

func Commit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(scorm.CommitData)

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid commit payload!", nil)
		}

		errors := make(map[string]string)

		// Interactions carry client-supplied ids; an id-less delta can never
		// be deduped and is rejected up front
		for i, interaction := range reqData.Interactions {
			if strings.TrimSpace(interaction.ID) == "" {
				errors["interactions"] = "Every interaction requires an id!"
				break
			}
			reqData.Interactions[i].ID = strings.TrimSpace(interaction.ID)
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("commitData", reqData)
		return c.Next()
	}
}

func Suspend() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			SuspendData string `json:"suspend_data"`
		})

		// An empty body is fine: suspending without payload is legal
		if len(c.Body()) > 0 {
			if err := c.BodyParser(reqData); err != nil {
				return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
			}
		}

		c.Locals("suspendData", reqData.SuspendData)
		return c.Next()
	}
}
