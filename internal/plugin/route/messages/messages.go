package messages

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loqui/chat-service/internal/chat"
	"github.com/loqui/chat-service/internal/model"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/security"
)

// MountRoutes mounts message routes.
func MountRoutes(r *gin.Engine, svc *chat.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/conversations/:conversationId/messages", func(c *gin.Context) {
		listMessages(c, svc)
	})
	g.POST("/conversations/:conversationId/messages", func(c *gin.Context) {
		postMessage(c, svc)
	})
	g.PUT("/conversations/:conversationId/messages/:messageId", func(c *gin.Context) {
		editMessage(c, svc)
	})
	g.DELETE("/conversations/:conversationId/messages/:messageId", func(c *gin.Context) {
		deleteMessage(c, svc)
	})
	g.POST("/conversations/:conversationId/read", func(c *gin.Context) {
		markRead(c, svc)
	})
}

func listMessages(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", model.DefaultMessagesPerPage)

	result, err := svc.ListMessages(c.Request.Context(), convID, userID, page, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func postMessage(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	var req struct {
		Content  string `json:"content"`
		ImageURL string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	msg, err := svc.PostMessage(c.Request.Context(), convID, userID, req.Content, req.ImageURL)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func editMessage(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")
	msgID := c.Param("messageId")

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	msg, err := svc.EditMessage(c.Request.Context(), convID, msgID, userID, req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func deleteMessage(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")
	msgID := c.Param("messageId")

	msg, err := svc.DeleteMessage(c.Request.Context(), convID, msgID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func markRead(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	marked, err := svc.MarkConversationRead(c.Request.Context(), convID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"markedRead": marked})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError
	var invalidRef *registrystore.InvalidReferenceError
	var invalidOp *registrystore.InvalidOperationError
	var noOp *registrystore.NoOpError
	var alreadyDeleted *registrystore.AlreadyDeletedError
	var invalidRange *registrystore.InvalidRangeError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &invalidRef):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_reference", "error": err.Error()})
	case errors.As(err, &invalidOp):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_operation", "error": err.Error()})
	case errors.As(err, &noOp):
		c.JSON(http.StatusBadRequest, gin.H{"code": "no_op", "error": err.Error()})
	case errors.As(err, &alreadyDeleted):
		c.JSON(http.StatusBadRequest, gin.H{"code": "already_deleted", "error": err.Error()})
	case errors.As(err, &invalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": invalidRange.Field})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if n, _ := fmt.Sscanf(v, "%d", &i); n == 1 {
		return i
	}
	return def
}
