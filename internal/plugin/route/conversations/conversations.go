package conversations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loqui/chat-service/internal/chat"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/security"
)

// MountRoutes mounts conversation membership routes on the given router.
// Called after store initialization so the service is available.
func MountRoutes(r *gin.Engine, svc *chat.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, svc)
	})
	g.POST("/conversations", func(c *gin.Context) {
		createConversation(c, svc)
	})
	g.GET("/conversations/previews", func(c *gin.Context) {
		listPreviews(c, svc)
	})
	g.GET("/conversations/:conversationId", func(c *gin.Context) {
		getConversation(c, svc)
	})
	g.DELETE("/conversations/:conversationId", func(c *gin.Context) {
		deleteConversation(c, svc)
	})
	g.POST("/conversations/:conversationId/users", func(c *gin.Context) {
		addUsers(c, svc)
	})
	g.DELETE("/conversations/:conversationId/users", func(c *gin.Context) {
		removeUsers(c, svc)
	})
	g.DELETE("/conversations/:conversationId/leave", func(c *gin.Context) {
		leaveConversation(c, svc)
	})
}

func listConversations(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	conversations, err := svc.ListConversations(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conversations})
}

func createConversation(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	var req struct {
		Name    string   `json:"name"    binding:"required"`
		UserIDs []string `json:"userIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	conv, err := svc.CreateConversation(c.Request.Context(), userID, req.Name, req.UserIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func listPreviews(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	previews, err := svc.ListPreviews(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": previews})
}

func getConversation(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	conv, err := svc.GetConversation(c.Request.Context(), convID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func deleteConversation(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	if err := svc.DeleteConversation(c.Request.Context(), convID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func addUsers(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	var req struct {
		UserIDs []string `json:"userIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	conv, err := svc.AddUsers(c.Request.Context(), convID, userID, req.UserIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func removeUsers(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	var req struct {
		UserIDs []string `json:"userIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	conv, err := svc.RemoveUsers(c.Request.Context(), convID, userID, req.UserIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func leaveConversation(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	convID := c.Param("conversationId")

	if err := svc.Leave(c.Request.Context(), convID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var invalidUsers *registrystore.InvalidUsersError
	var invalidOp *registrystore.InvalidOperationError
	var noOp *registrystore.NoOpError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &invalidUsers):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_users", "error": err.Error(), "userIds": invalidUsers.IDs})
	case errors.As(err, &invalidOp):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_operation", "error": err.Error()})
	case errors.As(err, &noOp):
		c.JSON(http.StatusBadRequest, gin.H{"code": "no_op", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
