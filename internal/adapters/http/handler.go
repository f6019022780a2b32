package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

type ContainerHandler struct {
	service ports.LifecycleService
}

func NewContainerHandler(service ports.LifecycleService) *ContainerHandler {
	return &ContainerHandler{service: service}
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.List(c.Context(), ownerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(containers)
}

type CreateContainerRequest struct {
	// Image is optional; the configured default is used when empty.
	Image string `json:"image"`
}

func (h *ContainerHandler) CreateContainer(c *fiber.Ctx) error {
	var req CreateContainerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, invalidArgument("create container", err))
		}
	}

	record, err := h.service.Create(c.Context(), ownerID(c), req.Image)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// GetContainer returns the record after refreshing its status from the
// runtime.
func (h *ContainerHandler) GetContainer(c *fiber.Ctx) error {
	record, err := h.service.Reconcile(c.Context(), ownerID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

func (h *ContainerHandler) StartContainer(c *fiber.Ctx) error {
	record, err := h.service.Start(c.Context(), ownerID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":   "Container started",
		"container": record,
	})
}

func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	record, err := h.service.Stop(c.Context(), ownerID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":   "Container stopped",
		"container": record,
	})
}

func (h *ContainerHandler) DeleteContainer(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), ownerID(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Container deleted"})
}

func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	logs, err := h.service.Logs(c.Context(), ownerID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	// fasthttp closes the stream once the body has been written.
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendStream(logs)
}
