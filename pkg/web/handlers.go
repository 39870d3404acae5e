package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/mailgrove/mailgrove/pkg/services"
)

type APIHandlers struct {
	executionService *services.Execution
	campaignService  *services.Campaign
	analyticsService *services.Analytics
	queues           *queue.Service
	validator        *validator.Validate
}

func NewAPIHandlers(
	executionService *services.Execution,
	campaignService *services.Campaign,
	analyticsService *services.Analytics,
	queues *queue.Service,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executionService: executionService,
		campaignService:  campaignService,
		analyticsService: analyticsService,
		queues:           queues,
		validator:        validator,
	}
}

// StartExecution creates a PENDING execution and enqueues its first step.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	executionID, err := h.executionService.Start(c.Context(), req.AutomationID, req.SubscriberID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(StartExecutionResponse{ExecutionID: executionID})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionTimeline(c fiber.Ctx) error {
	timeline, err := h.executionService.Timeline(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": c.Params("id"),
		"steps":        timeline,
	})
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	if err := h.executionService.Pause(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "paused"})
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	if err := h.executionService.Resume(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "running"})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.executionService.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}

// SendCampaign moves a campaign to SENDING and enqueues the first batch.
func (h *APIHandlers) SendCampaign(c fiber.Ctx) error {
	if err := h.campaignService.Start(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "sending"})
}

// TrackEvent ingests one analytics event through the analytics queue.
func (h *APIHandlers) TrackEvent(c fiber.Ctx) error {
	var req TrackEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	err := h.analyticsService.Track(c.Context(), models.AnalyticsEvent{
		TenantID:     req.TenantID,
		Kind:         req.Kind,
		SubscriberID: req.SubscriberID,
		CampaignID:   req.CampaignID,
		ExecutionID:  req.ExecutionID,
		Data:         req.Data,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// GetQueueStats snapshots the lifecycle counters of every queue.
func (h *APIHandlers) GetQueueStats(c fiber.Ctx) error {
	return c.JSON(h.queues.Stats())
}

func (h *APIHandlers) PauseQueue(c fiber.Ctx) error {
	if err := h.queues.Pause(c.Params("name")); err != nil {
		return notFound(c, err.Error())
	}

	return c.JSON(fiber.Map{"queue": c.Params("name"), "paused": true})
}

func (h *APIHandlers) ResumeQueue(c fiber.Ctx) error {
	if err := h.queues.Resume(c.Params("name")); err != nil {
		return notFound(c, err.Error())
	}

	return c.JSON(fiber.Map{"queue": c.Params("name"), "paused": false})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.executionService.HealthCheck(c.Context())
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": message,
		})
	}

	return c.JSON(fiber.Map{"status": "healthy", "message": message})
}
