package http

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// FilesystemHandler exposes the files of a caller's running container.
type FilesystemHandler struct {
	service ports.FilesystemService
}

func NewFilesystemHandler(service ports.FilesystemService) *FilesystemHandler {
	return &FilesystemHandler{service: service}
}

type SaveFileRequest struct {
	ContainerID string `json:"container_id"`
	Name        string `json:"name"`
	ParentPath  string `json:"parent_path"`
	Content     string `json:"content"`
}

type MoveItemRequest struct {
	ContainerID     string `json:"container_id"`
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

type CreateFolderRequest struct {
	ContainerID string `json:"container_id"`
	FolderPath  string `json:"folder_path"`
}

type CreateFileRequest struct {
	ContainerID string `json:"container_id"`
	FilePath    string `json:"file_path"`
}

type RemovePathRequest struct {
	ContainerID string `json:"container_id"`
	Path        string `json:"path"`
}

// parseRequest decodes the body and requires a container id.
func parseRequest(c *fiber.Ctx, op string, req any, containerID func() string) error {
	if err := c.BodyParser(req); err != nil {
		return invalidArgument(op, err)
	}
	if containerID() == "" {
		return invalidArgument(op, errors.New("container_id is required"))
	}
	return nil
}

func (h *FilesystemHandler) GetFilesystem(c *fiber.Ctx) error {
	entries, err := h.service.ListTree(c.Context(), ownerID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entries)
}

// GetDirectory lists the entries under a base64 encoded path. The encoded
// value may itself contain "/", so it is taken from the wildcard.
func (h *FilesystemHandler) GetDirectory(c *fiber.Ctx) error {
	param := c.Params("*")
	if param == "" {
		return h.GetFilesystem(c)
	}
	encoded, err := url.PathUnescape(param)
	if err != nil {
		return writeError(c, invalidArgument("list directory", err))
	}

	entries, err := h.service.ListChildren(c.Context(), ownerID(c), c.Params("id"), encoded)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entries)
}

func (h *FilesystemHandler) GetFileContent(c *fiber.Ctx) error {
	content, err := h.service.ReadFile(c.Context(), ownerID(c), c.Params("id"), c.Query("file_path"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(content)
}

func (h *FilesystemHandler) SaveFile(c *fiber.Ctx) error {
	var req SaveFileRequest
	if err := parseRequest(c, "write file", &req, func() string { return req.ContainerID }); err != nil {
		return writeError(c, err)
	}
	if err := h.service.WriteFile(c.Context(), ownerID(c), req.ContainerID, req.Name, req.ParentPath, req.Content); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "File saved successfully"})
}

func (h *FilesystemHandler) MoveItem(c *fiber.Ctx) error {
	var req MoveItemRequest
	if err := parseRequest(c, "move", &req, func() string { return req.ContainerID }); err != nil {
		return writeError(c, err)
	}
	if err := h.service.Move(c.Context(), ownerID(c), req.ContainerID, req.SourcePath, req.DestinationPath); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Item moved successfully"})
}

func (h *FilesystemHandler) CreateFolder(c *fiber.Ctx) error {
	var req CreateFolderRequest
	if err := parseRequest(c, "create folder", &req, func() string { return req.ContainerID }); err != nil {
		return writeError(c, err)
	}
	if err := h.service.CreateFolder(c.Context(), ownerID(c), req.ContainerID, req.FolderPath); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Folder created successfully"})
}

func (h *FilesystemHandler) CreateFile(c *fiber.Ctx) error {
	var req CreateFileRequest
	if err := parseRequest(c, "create file", &req, func() string { return req.ContainerID }); err != nil {
		return writeError(c, err)
	}
	if err := h.service.CreateFile(c.Context(), ownerID(c), req.ContainerID, req.FilePath); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "File created successfully"})
}

func (h *FilesystemHandler) RemovePath(c *fiber.Ctx) error {
	var req RemovePathRequest
	if err := parseRequest(c, "remove path", &req, func() string { return req.ContainerID }); err != nil {
		return writeError(c, err)
	}
	if err := h.service.RemovePath(c.Context(), ownerID(c), req.ContainerID, req.Path); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Path removed successfully"})
}
