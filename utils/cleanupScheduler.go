package utils

import (
	"log"
	"os"
	"path/filepath"
	"scormhub/config"
	"time"

	"github.com/robfig/cron/v3"
)

// logCleanup logs cleanup scheduler events with timestamp
func logCleanup(message string) {
	log.Printf("[CLEANUP-SCHEDULER %s] %s", time.Now().Format(time.RFC3339), message)
}

// sweepDir removes direct children of dir that were last modified before cutoff
func sweepDir(dir string, cutoff time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logCleanup("Error reading " + dir + ": " + err.Error())
		}
		return
	}

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			logCleanup("Error removing " + target + ": " + err.Error())
		} else {
			logCleanup("Removed stale entry " + target)
		}
	}
}

// runCleanup clears extraction workspaces and upload temp files left behind by
// crashed or abandoned jobs. Anything older than a day cannot belong to a live
// job: the job status TTL is far shorter.
func runCleanup() {
	cutoff := time.Now().Add(-24 * time.Hour)
	sweepDir(config.AppConfig.WorkspaceDir, cutoff)
	sweepDir(config.AppConfig.UploadDir, cutoff)
}

// StartCleanupScheduler runs the stale file sweep every hour
func StartCleanupScheduler() {
	c := cron.New()

	_, err := c.AddFunc("@hourly", runCleanup)
	if err != nil {
		logCleanup("Failed to register cleanup job: " + err.Error())
		return
	}

	c.Start()
	logCleanup("Cleanup scheduler started (hourly)")
}
