package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ngthanhbui/imageflow-be/internal/api/auth"
	"github.com/ngthanhbui/imageflow-be/internal/api/domain"
	"github.com/ngthanhbui/imageflow-be/internal/api/dto"
	"github.com/ngthanhbui/imageflow-be/internal/api/model"
	"github.com/ngthanhbui/imageflow-be/internal/api/storage"
)

// SubmitJob handles POST /api/v1/jobs
// Accepts an image edit request and dispatches it for processing.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ownerID := auth.Principal(c)

	jobID, err := h.dispatcher.Submit(c.Request.Context(), ownerID, req.Operation, req.Payload)
	if err != nil {
		h.logger.Error("Failed to submit job",
			slog.String("owner_id", ownerID),
			slog.String("operation", req.Operation),
			slog.Any("error", err),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:  jobID,
		Status: "PENDING",
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves one of the principal's jobs; the terminal state here is the
// recovery path for clients that missed the real-time event.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Jobs of other principals are indistinguishable from missing ones
	if job.OwnerID != auth.Principal(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists the principal's jobs with optional filtering and cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	filter := storage.JobFilter{
		OwnerID:   auth.Principal(c),
		Operation: req.Operation,
		Status:    req.Status,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		respondError(c, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = toJobDTO(&job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// toJobDTO projects a row through its JobState so a stray column value can
// never surface a result on a non-DONE job or a reason on a non-FAILED one.
func toJobDTO(job *model.Job) dto.JobDTO {
	state := domain.StateFromRow(job.Status, job.Result.String, job.ErrorMessage.String)

	out := dto.JobDTO{
		JobID:     job.JobID,
		Operation: job.Operation,
		Status:    state.Status(),
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	if result, ok := state.Result(); ok {
		out.Result = result
	}
	if reason, ok := state.Reason(); ok {
		out.Error = reason
	}
	if job.CompletedAt.Valid {
		out.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}

	return out
}
