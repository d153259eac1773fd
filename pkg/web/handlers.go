// Package web provides HTTP handlers and REST API endpoints for plan runs.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/planforge/planforge/pkg/registry"
)

type APIHandlers struct {
	manager   *RunManager
	validator *validator.Validate
	registry  *registry.Registry
}

func NewAPIHandlers(manager *RunManager, validator *validator.Validate, registry *registry.Registry) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		validator: validator,
		registry:  registry,
	}
}

// CreateRun plans a request and starts executing it in the background. The
// response carries the run ID to poll.
func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.manager.StartRun(c.Context(), req)
	if err != nil {
		return handlePlanningError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TransformRunResponse(run))
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs := h.manager.ListRuns()

	responses := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, TransformRunResponse(run))
	}

	return c.JSON(fiber.Map{
		"runs":        responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, ok := h.manager.GetRun(id)
	if !ok {
		return notFound(c, "Run not found")
	}

	return c.JSON(TransformRunResponse(run))
}

func (h *APIHandlers) GetPlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Plan ID is required")
	}

	plan, ok := h.manager.GetPlan(id)
	if !ok {
		return notFound(c, "Plan not found")
	}

	return c.JSON(plan)
}

// GetHandlerTypes lists the registered task handler factories.
func (h *APIHandlers) GetHandlerTypes(c fiber.Ctx) error {
	factories := h.registry.Factories()

	types := make([]fiber.Map, 0, len(factories))
	for _, factory := range factories {
		types = append(types, fiber.Map{
			"id":          factory.ID(),
			"name":        factory.Name(),
			"description": factory.Description(),
			"schema":      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"handlers": types})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Planforge API is healthy"
	httpStatus := http.StatusOK

	storeErr := h.manager.HealthCheck(c.Context())
	if storeErr != nil {
		status = "unhealthy"
		message = "Planforge API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	checkers := fiber.Map{
		"checkpoint_store": "ok",
	}
	if storeErr != nil {
		checkers["checkpoint_store"] = storeErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
