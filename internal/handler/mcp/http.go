package mcp

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"OptionsFlow/internal/service/ratelimit"
)

// HTTPHandler serves JSON-RPC over POST /mcp.
type HTTPHandler struct {
	server  *Server
	limiter *ratelimit.Limiter
}

// NewHTTPHandler wraps s. A nil limiter disables rate limiting.
func NewHTTPHandler(s *Server, limiter *ratelimit.Limiter) *HTTPHandler {
	return &HTTPHandler{server: s, limiter: limiter}
}

// RegisterRoutes mounts the endpoint.
func (h *HTTPHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/mcp", h.handle, h.rateLimit)
}

func (h *HTTPHandler) handle(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxLineBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read request body")
	}
	out := h.server.Handle(c.Request().Context(), body)
	if out == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSONBlob(http.StatusOK, out)
}

// rateLimit applies one token bucket per client address.
func (h *HTTPHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
