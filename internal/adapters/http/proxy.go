package http

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
	"github.com/melih/lighthouse-sandbox/internal/log"
)

// ProxyHandler forwards preview requests to a web server running inside the
// caller's container.
type ProxyHandler struct {
	service ports.LifecycleService
	port    int
}

// NewProxyHandler creates a proxy that targets port inside containers.
func NewProxyHandler(service ports.LifecycleService, port int) *ProxyHandler {
	return &ProxyHandler{service: service, port: port}
}

// ProxyRequest routes /containers/:id/preview/* to the container's address.
// Only the owner of a running container reaches it.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	containerID := c.Params("id")
	addr, err := h.service.Address(c.Context(), ownerID(c), containerID)
	if err != nil {
		return writeError(c, err)
	}

	remote := &url.URL{Scheme: "http", Host: net.JoinHostPort(addr, strconv.Itoa(h.port))}
	upstreamPath := "/" + c.Params("*")

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host and strip the route prefix so the application inside sees
	// a request addressed to itself. Our credentials are not forwarded.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Path = upstreamPath
		req.URL.RawPath = ""
		req.Header.Del(fiber.HeaderAuthorization)
		query := req.URL.Query()
		query.Del("token")
		req.URL.RawQuery = query.Encode()
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("preview proxy failed", "container_id", containerID, "target", remote.Host, "error", err)
		w.Header().Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(fiber.Map{
			"error": "preview " + containerID + ": " + err.Error(),
			"kind":  "runtime_failure",
		})
	}

	return adaptor.HTTPHandler(proxy)(c)
}
