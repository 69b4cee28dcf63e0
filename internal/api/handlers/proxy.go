package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/clipline/internal/container"
)

type Forwarder interface {
	Forward(ctx context.Context, method, path string, body []byte, contentType string) (*container.Response, error)
}

// ProxyHandler relays requests verbatim to the backing media process
// through the container manager.
type ProxyHandler struct {
	manager Forwarder
}

func NewProxyHandler(manager Forwarder) *ProxyHandler {
	return &ProxyHandler{manager: manager}
}

func (h *ProxyHandler) Forward(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.manager.Forward(
		c.Request.Context(),
		c.Request.Method,
		c.Request.URL.Path,
		body,
		c.GetHeader("Content-Type"),
	)
	if err != nil {
		if errors.Is(err, container.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "container unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}
