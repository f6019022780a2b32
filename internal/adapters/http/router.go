package http

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
	"github.com/melih/lighthouse-sandbox/internal/core/services"
)

// Deps are the services and settings the HTTP layer is built from.
type Deps struct {
	Lifecycle  ports.LifecycleService
	Filesystem ports.FilesystemService
	Terminal   *services.TerminalBridge
	Guard      services.RunningGuard

	JWTSecret   string
	FrontendURL string
	PreviewPort int

	// SessionContext bounds terminal sessions. Defaults to Background.
	SessionContext context.Context
	// AccessLog receives one line per request. Nil disables access logs.
	AccessLog io.Writer
}

// NewApp builds the Fiber application and registers every route.
func NewApp(d Deps) *fiber.App {
	sessionCtx := d.SessionContext
	if sessionCtx == nil {
		sessionCtx = context.Background()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	if d.AccessLog != nil {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
			Output: d.AccessLog,
		}))
	}
	if d.FrontendURL != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     d.FrontendURL,
			AllowCredentials: true,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	containerHandler := NewContainerHandler(d.Lifecycle)
	filesystemHandler := NewFilesystemHandler(d.Filesystem)
	terminalHandler := NewTerminalHandler(sessionCtx, d.Terminal, d.Guard)
	proxyHandler := NewProxyHandler(d.Lifecycle, d.PreviewPort)

	api := app.Group("/api")
	v1 := api.Group("/v1", NewAuthenticator(d.JWTSecret).Middleware())

	// Routes for Container operations
	containers := v1.Group("/containers")
	containers.Get("/", containerHandler.ListContainers)
	containers.Post("/", containerHandler.CreateContainer)
	containers.Get("/:id", containerHandler.GetContainer)
	containers.Put("/:id/start", containerHandler.StartContainer)
	containers.Put("/:id/stop", containerHandler.StopContainer)
	containers.Delete("/:id", containerHandler.DeleteContainer)
	containers.Get("/:id/logs", containerHandler.GetContainerLogs)

	containers.Get("/:id/filesystem", filesystemHandler.GetFilesystem)
	containers.Get("/:id/filesystem/*", filesystemHandler.GetDirectory)
	containers.Get("/:id/file", filesystemHandler.GetFileContent)

	containers.Get("/:id/terminal", terminalHandler.Upgrade, terminalHandler.Serve())
	containers.All("/:id/preview/*", proxyHandler.ProxyRequest)

	// Mutations carry the container id in the body.
	filesystem := v1.Group("/filesystem")
	filesystem.Post("/save-file", filesystemHandler.SaveFile)
	filesystem.Post("/move", filesystemHandler.MoveItem)
	filesystem.Post("/create-folder", filesystemHandler.CreateFolder)
	filesystem.Post("/create-file", filesystemHandler.CreateFile)
	filesystem.Post("/remove-path", filesystemHandler.RemovePath)

	v1.Get("/terminal/sessions", terminalHandler.ListSessions)

	return app
}
