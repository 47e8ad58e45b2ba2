package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loqui/chat-service/internal/chat"
	"github.com/loqui/chat-service/internal/model"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/security"
)

// MountRoutes mounts user directory routes. The authenticated identity is
// always the acting user; profile mutations only ever apply to it.
func MountRoutes(r *gin.Engine, svc *chat.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/users", func(c *gin.Context) {
		registerUser(c, svc)
	})
	g.GET("/users", func(c *gin.Context) {
		searchUsers(c, svc)
	})
	g.GET("/users/me", func(c *gin.Context) {
		getSelf(c, svc)
	})
	g.PUT("/users/me", func(c *gin.Context) {
		updateProfile(c, svc)
	})
	g.DELETE("/users/me", func(c *gin.Context) {
		deleteSelf(c, svc)
	})
	g.GET("/users/:userId", func(c *gin.Context) {
		getProfile(c, svc)
	})
	g.DELETE("/users/:userId", func(c *gin.Context) {
		deleteUser(c, svc)
	})
	g.POST("/users/blocked", func(c *gin.Context) {
		blockUser(c, svc)
	})
	g.DELETE("/users/blocked/:userId", func(c *gin.Context) {
		unblockUser(c, svc)
	})
	g.PUT("/users/pins", func(c *gin.Context) {
		updatePin(c, svc)
	})
}

func registerUser(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	var req struct {
		Username string  `json:"username" binding:"required"`
		Bio      string  `json:"bio"`
		Avatar   *string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	user, err := svc.RegisterUser(c.Request.Context(), userID, req.Username, req.Bio, req.Avatar)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func searchUsers(c *gin.Context, svc *chat.Service) {
	prefix := c.Query("username")
	limit := queryInt(c, "limit", model.DefaultMessagesPerPage)

	profiles, err := svc.SearchUsers(c.Request.Context(), prefix, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profiles})
}

func getSelf(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	user, err := svc.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func getProfile(c *gin.Context, svc *chat.Service) {
	profile, err := svc.GetProfile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// updateProfile distinguishes absent fields from explicit nulls so that an
// avatar can be cleared with {"avatar": null} without touching the rest.
func updateProfile(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	var update registrystore.UserUpdate
	if data, ok := raw["username"]; ok {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid username"})
			return
		}
		update.Username = &value
	}
	if data, ok := raw["bio"]; ok {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid bio"})
			return
		}
		update.Bio = &value
	}
	if data, ok := raw["avatar"]; ok {
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			var cleared *string
			update.Avatar = &cleared
		} else {
			var value string
			if err := json.Unmarshal(data, &value); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid avatar"})
				return
			}
			avatar := &value
			update.Avatar = &avatar
		}
	}

	user, err := svc.UpdateProfile(c.Request.Context(), userID, update)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func deleteSelf(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	if err := svc.DeleteUser(c.Request.Context(), userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteUser only ever deletes the caller's own account; deleting someone
// else is rejected outright.
func deleteUser(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)
	if c.Param("userId") != userID {
		handleError(c, &registrystore.ForbiddenError{Message: "cannot delete another user"})
		return
	}
	deleteSelf(c, svc)
}

func blockUser(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	user, err := svc.BlockUser(c.Request.Context(), userID, req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func unblockUser(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	user, err := svc.UnblockUser(c.Request.Context(), userID, c.Param("userId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func updatePin(c *gin.Context, svc *chat.Service) {
	userID := security.GetUserID(c)

	var req struct {
		ConversationID string `json:"conversationId" binding:"required"`
		Pinned         *bool  `json:"pinned"         binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	var user *model.User
	var err error
	if *req.Pinned {
		user, err = svc.PinConversation(c.Request.Context(), userID, req.ConversationID)
	} else {
		user, err = svc.UnpinConversation(c.Request.Context(), userID, req.ConversationID)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
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
	case errors.As(err, &invalidOp):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_operation", "error": err.Error()})
	case errors.As(err, &noOp):
		c.JSON(http.StatusBadRequest, gin.H{"code": "no_op", "error": err.Error()})
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
