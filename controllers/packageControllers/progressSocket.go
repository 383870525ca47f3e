package packageControllers

import (
	"context"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UpgradeProgressSocket gates the websocket route: plain HTTP requests get 426
func UpgradeProgressSocket(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ProgressSocket streams ingestion progress for one job to a connected
// observer. Observers joining mid-flight only see future updates. The
// connection prunes itself from the registry when its read loop ends.
func ProgressSocket(conn *websocket.Conn) {
	jobID := conn.Params("jobId")
	connID := uuid.NewString()
	ctx := context.Background()

	if err := Watch.Add(ctx, jobID, connID, conn); err != nil {
		log.Printf("[WS] Failed to register watcher for job %s: %v", jobID, err)
		conn.Close()
		return
	}
	defer func() {
		Watch.Remove(ctx, jobID, connID)
		conn.Close()
	}()

	// Observers only listen; the read loop exists to detect disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
