package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"prreview/internal/github"
	"prreview/internal/model"
	"prreview/internal/queue"
	"prreview/internal/store"
)

// newJobID prefers uuidv7 so ids sort by submission time.
func newJobID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

func loggerFrom(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals("logger").(*slog.Logger); ok {
		return l
	}
	return nil
}

// analyzePRHandler creates a job, records it as pending and hands it to
// the queue. It does not wait for the review to run.
func analyzePRHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(store.JobStore)
	q := c.Locals("queue").(queue.Queue)
	v := c.Locals("validator").(*RequestValidator)

	var req AnalyzePRRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}
	if err := v.Validate(&req); err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "VALIDATION_ERROR",
				Error:   fe.Error(),
				Details: fe,
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   err.Error(),
		})
	}

	repo, err := github.ParseRepo(req.RepoURL)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   err.Error(),
		})
	}

	job := model.Job{
		ID:         newJobID(),
		Repo:       repo,
		Number:     req.PRNumber,
		Credential: req.GitHubToken,
	}

	ctx := c.Context()
	if err := st.SetStatus(ctx, job.ID, model.Pending()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "failed to record job: " + err.Error(),
		})
	}

	if err := q.Enqueue(ctx, job); err != nil {
		// Nothing will ever pick this job up; do not leave it pending.
		if serr := st.SetStatus(ctx, job.ID, model.Failed("enqueue failed: "+err.Error())); serr != nil {
			if logger := loggerFrom(c); logger != nil {
				logger.Error("review_enqueue_status_failed", "job_id", job.ID, "enqueue_error", err, "error", serr)
			}
		}
		code := fiber.StatusInternalServerError
		if errors.Is(err, queue.ErrFull) {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(ErrorResponse{
			Success: false,
			Code:    "QUEUE_UNAVAILABLE",
			Error:   err.Error(),
		})
	}

	if logger := loggerFrom(c); logger != nil {
		logger.Info("review_enqueued",
			"job_id", job.ID,
			"repo", job.Repo,
			"pr", job.Number,
			"has_token", job.Credential != "",
		)
	}

	return c.Status(fiber.StatusAccepted).JSON(AnalyzePRResponse{TaskID: job.ID})
}

// statusHandler returns the current status of a job.
func statusHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(store.JobStore)
	id := c.Params("id")

	s, err := st.GetStatus(c.Context(), id)
	if err != nil {
		return storeErrorResponse(c, err)
	}

	return c.JSON(StatusResponse{TaskID: id, Status: s.State, Reason: s.Reason})
}

// resultHandler returns the result of a completed job. Jobs that have not
// completed, or never will, read as not found.
func resultHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(store.JobStore)
	id := c.Params("id")

	s, err := st.GetStatus(c.Context(), id)
	if err != nil {
		return storeErrorResponse(c, err)
	}
	if s.State != model.StateCompleted {
		return storeErrorResponse(c, store.ErrNotFound)
	}

	res, err := st.GetResult(c.Context(), id)
	if err != nil {
		return storeErrorResponse(c, err)
	}

	return c.JSON(ResultResponse{TaskID: id, Result: res})
}

func storeErrorResponse(c *fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Task not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success: false,
		Code:    "INTERNAL_ERROR",
		Error:   err.Error(),
	})
}
