package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drummonds/pdfworker/database"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// logger returns the injected Logger, falling back to the slog default so the
// worker can be used as a library without injectGlobals
func logger() *slog.Logger {
	if Logger != nil {
		return Logger
	}
	return slog.Default()
}

// InitializeSchedules starts all the cron jobs (currently just one) and
// returns the scheduler so the caller can stop it on shutdown
func (serverHandler *ServerHandler) InitializeSchedules(db database.Repository) *cron.Cron {
	interval := serverHandler.ServerConfig.JobCleanupInterval
	if interval <= 0 {
		interval = 60
	}
	retention := time.Duration(serverHandler.ServerConfig.JobRetentionHours) * time.Hour
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	c := cron.New()
	var cleanupJob cron.Job
	cleanupJob = cron.FuncJob(func() { serverHandler.cleanupJobFunc(db, retention) })
	cleanupJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cleanupJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", interval), cleanupJob); err != nil {
		Logger.Error("Unable to schedule job cleanup", "error", err)
		return c
	}
	Logger.Info("Adding job cleanup scheduler", "interval_minutes", interval, "retention", retention)
	c.Start()
	return c
}

// cleanupJobFunc purges finished jobs older than retention
func (serverHandler *ServerHandler) cleanupJobFunc(db database.Repository, retention time.Duration) int {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in cleanup job", "panic", r)
		}
	}()

	deleted, err := db.DeleteOldJobs(retention)
	if err != nil {
		Logger.Error("Failed to delete old jobs", "error", err)
		return 0
	}
	if deleted > 0 {
		Logger.Info("Deleted old jobs", "count", deleted, "retention", retention)
	}
	return deleted
}
