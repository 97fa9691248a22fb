package engine

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfworker/database"
)

// jobFunc is one document operation run under job tracking. progress may be
// passed straight to the worker, it updates the job row.
type jobFunc func(progress ProgressFunc) (interface{}, error)

// runJobWithTracking records op as a job, runs it on the calling goroutine and
// stores either the JSON result or the error. A panic in the renderer fails
// the job instead of taking the server down.
func (serverHandler *ServerHandler) runJobWithTracking(jobType database.JobType, op, message string, fn jobFunc) (jobID ulid.ULID, result interface{}, err error) {
	db := serverHandler.DB

	job, err := db.CreateJob(jobType, message)
	if err != nil {
		Logger.Error("Failed to create job", "type", jobType, "error", err)
		return jobID, nil, newError(KindIOError, op, "", err, "failed to create job")
	}
	jobID = job.ID

	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in job", "panic", r, "jobID", jobID, "operation", op)
			err = newError(KindIOError, op, "", nil, "panic: %v", r)
			result = nil
			if updateErr := db.UpdateJobError(jobID, err.Error()); updateErr != nil {
				Logger.Error("Failed to record job panic", "jobID", jobID, "error", updateErr)
			}
		}
	}()

	// Mark job as running
	if err := db.UpdateJobStatus(jobID, database.JobStatusRunning, message); err != nil {
		Logger.Error("Failed to update job status", "jobID", jobID, "error", err)
	}

	progress := func(current, total int) {
		step := fmt.Sprintf("Processed %d of %d", current, total)
		if err := db.UpdateJobProgress(jobID, database.ProgressPercent(current, total), step); err != nil {
			Logger.Warn("Failed to update job progress", "jobID", jobID, "error", err)
		}
	}

	result, err = fn(progress)
	if err != nil {
		Logger.Warn("Job failed", "jobID", jobID, "operation", op, "code", KindOf(err), "error", err)
		if updateErr := db.UpdateJobError(jobID, err.Error()); updateErr != nil {
			Logger.Error("Failed to record job error", "jobID", jobID, "error", updateErr)
		}
		return jobID, nil, err
	}

	encoded, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		Logger.Error("Unable to encode job result", "jobID", jobID, "error", marshalErr)
		encoded = []byte("{}")
	}
	if err := db.CompleteJob(jobID, string(encoded)); err != nil {
		Logger.Error("Failed to mark job as complete", "jobID", jobID, "error", err)
	}

	Logger.Info("Job completed", "jobID", jobID, "operation", op)
	return jobID, result, nil
}
