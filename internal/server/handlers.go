package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/surveyops/internal/eventdef"
	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/schedule"
	"github.com/roach88/surveyops/internal/store"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreateResponseResult is the body of a successful POST /responses.
type CreateResponseResult struct {
	ResponseID string        `json:"responseId"`
	Plan       schedule.Plan `json:"plan"`
}

func fail(c *fiber.Ctx, status int, code string, err error) error {
	body := ErrorResponse{Error: code}
	if err != nil {
		body.Message = err.Error()
	}
	return c.Status(status).JSON(body)
}

func internalError(c *fiber.Ctx, op string, err error) error {
	slog.Error("request failed", "op", op, "path", c.Path(), "error", err)
	return fail(c, http.StatusInternalServerError, "internal_server_error", nil)
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.store.Ping(c.UserContext()); err != nil {
		return fail(c, http.StatusServiceUnavailable, "store_unavailable", err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// putEvent validates the body with the event file schema and stores it.
func (s *Server) putEvent(c *fiber.Ctx) error {
	body := c.Body()
	if !json.Valid(body) {
		return fail(c, http.StatusBadRequest, "invalid_json", nil)
	}

	doc := make([]byte, 0, len(body)+16)
	doc = append(doc, `{"events":[`...)
	doc = append(doc, body...)
	doc = append(doc, "]}"...)

	events, err := eventdef.Parse("request", doc)
	if err != nil {
		var loadErrs eventdef.LoadErrors
		if errors.As(err, &loadErrs) {
			return fail(c, http.StatusBadRequest, "invalid_event", err)
		}
		return internalError(c, "put event", err)
	}

	event := events[0]
	if event.ID != c.Params("id") {
		return fail(c, http.StatusBadRequest, "id_mismatch", nil)
	}
	if err := s.store.PutEvent(c.UserContext(), event); err != nil {
		return internalError(c, "put event", err)
	}

	slog.Info("event stored", "event", event.ID)
	return c.JSON(event)
}

func (s *Server) getResults(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.GetEvent(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(c, http.StatusNotFound, "event_not_found", nil)
		}
		return internalError(c, "get results", err)
	}

	results, err := s.store.ReadResults(c.UserContext(), id)
	if err != nil {
		return internalError(c, "get results", err)
	}
	if results == nil {
		return fail(c, http.StatusNotFound, "no_results", nil)
	}
	return c.JSON(results)
}

// createResponse stores a submitted response and runs the scheduling
// pipeline for it. A post-event response whose pre-response was already
// used is rejected. Resending a response id that is already stored for the
// same event skips the insert and reruns the pipeline, so a client can
// retry after a 500.
func (s *Server) createResponse(c *fiber.Ctx) error {
	var resp model.Response
	if err := json.Unmarshal(c.Body(), &resp); err != nil {
		return fail(c, http.StatusBadRequest, "invalid_json", err)
	}
	if resp.EventID == "" {
		return fail(c, http.StatusBadRequest, "event_id_required", nil)
	}
	if resp.ID == "" {
		resp.ID = s.ids.Generate()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = s.now()
	}
	// System fields are owned by the pipeline.
	resp.CheckedIn, resp.CheckedOut, resp.Exported, resp.Used = nil, nil, nil, nil
	resp.UploadError, resp.UploadAttemptedAt = "", nil

	ctx := c.UserContext()
	if _, err := s.store.GetEvent(ctx, resp.EventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(c, http.StatusNotFound, "event_not_found", nil)
		}
		return internalError(c, "create response", err)
	}

	existing, err := s.store.GetResponse(ctx, resp.ID)
	switch {
	case err == nil:
		// A resubmission after a failed pipeline run: keep the stored
		// response and run the pipeline again.
		if existing.EventID != resp.EventID {
			return fail(c, http.StatusConflict, "response_id_conflict", nil)
		}
		slog.Info("response resubmitted, rerunning pipeline", "response", resp.ID, "event", resp.EventID)
		resp = existing
	case errors.Is(err, store.ErrNotFound):
		status, code, err := s.checkPreResponse(ctx, resp)
		if err != nil {
			return internalError(c, "create response", err)
		}
		if status != 0 {
			return fail(c, status, code, nil)
		}
		if err := s.store.PutResponse(ctx, resp); err != nil {
			return internalError(c, "create response", err)
		}
	default:
		return internalError(c, "create response", err)
	}

	plan, err := s.engine.OnResponseCreated(ctx, resp)
	if err != nil {
		return internalError(c, "schedule response", err)
	}
	return c.Status(http.StatusCreated).JSON(CreateResponseResult{ResponseID: resp.ID, Plan: plan})
}

// checkPreResponse rejects a response whose linked pre-response was
// already used. A missing pre-response is logged and accepted.
func (s *Server) checkPreResponse(ctx context.Context, resp model.Response) (int, string, error) {
	if resp.PreResponseID == "" {
		return 0, "", nil
	}
	pre, err := s.store.GetResponse(ctx, resp.PreResponseID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.Warn("pre-response not found", "response", resp.ID, "pre_response", resp.PreResponseID)
		return 0, "", nil
	case err != nil:
		return 0, "", err
	case pre.Used != nil:
		return http.StatusConflict, "pre_response_used", nil
	}
	return 0, "", nil
}

func (s *Server) checkIn(c *fiber.Ctx) error {
	plan, err := s.engine.OnCheckIn(c.UserContext(), c.Params("id"))
	return s.planReply(c, "check in", plan, err)
}

func (s *Server) checkOut(c *fiber.Ctx) error {
	plan, err := s.engine.OnCheckOut(c.UserContext(), c.Params("id"))
	return s.planReply(c, "check out", plan, err)
}

func (s *Server) planReply(c *fiber.Ctx, op string, plan schedule.Plan, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, http.StatusNotFound, "not_found", err)
	}
	if err != nil {
		return internalError(c, op, err)
	}
	return c.JSON(plan)
}

// dispatchTask runs one executor directly with the request body as the
// task payload. Retryable failures answer 500 so the caller retries;
// permanent failures answer 422.
func (s *Server) dispatchTask(c *fiber.Ctx) error {
	name := queue.Name(c.Params("queue"))
	h, ok := s.handlers[name]
	if !ok {
		return fail(c, http.StatusNotFound, "unknown_queue", nil)
	}

	body := c.Body()
	if !json.Valid(body) {
		return fail(c, http.StatusBadRequest, "invalid_json", nil)
	}
	payload := make(json.RawMessage, len(body))
	copy(payload, body)

	now := s.now()
	task := queue.Task{
		ID:        s.ids.Generate(),
		Queue:     string(name),
		Payload:   payload,
		NotBefore: now,
		Attempts:  1,
		Status:    model.TaskRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx := queue.WithTaskName(c.UserContext(), task, 1)

	if err := h.Handle(ctx, task); err != nil {
		slog.Warn("direct task failed", "task", queue.TaskName(ctx), "error", err)
		if queue.IsPermanent(err) {
			return fail(c, http.StatusUnprocessableEntity, "permanent_failure", err)
		}
		return fail(c, http.StatusInternalServerError, "task_failed", err)
	}
	return c.JSON(fiber.Map{"task": queue.TaskName(ctx), "status": "done"})
}

func (s *Server) runExport(c *fiber.Ctx) error {
	if s.exporter == nil {
		return fail(c, http.StatusNotFound, "export_disabled", nil)
	}
	report, err := s.exporter.Run(c.UserContext())
	if err != nil {
		return internalError(c, "run export", err)
	}
	return c.JSON(report)
}
