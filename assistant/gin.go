package assistant

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// RegisterGinRoutes mounts the assistant and sync endpoints under /v1.
// Every route runs behind the identity middleware.
func RegisterGinRoutes(r gin.IRouter, h *Handler) error {
	if r == nil {
		return fmt.Errorf("router is nil")
	}
	if h == nil {
		return fmt.Errorf("handler is nil")
	}

	v1 := r.Group("/v1", IdentityMiddleware())
	v1.POST("/assistant/stream", h.handleStream)
	v1.POST("/assistant/message", h.handleMessage)
	v1.POST("/assistant/confirm", h.handleConfirm)
	v1.POST("/assistant/cancel", h.handleCancel)
	v1.GET("/assistant/pending", h.handlePending)
	v1.GET("/sync/stream", h.handleSyncStream)
	v1.GET("/sync/since", h.handleSyncSince)
	return nil
}
