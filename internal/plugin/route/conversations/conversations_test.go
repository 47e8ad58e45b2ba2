package conversations_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loqui/chat-service/internal/chat"
	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/plugin/route/conversations"
	"github.com/loqui/chat-service/internal/plugin/route/messages"
	"github.com/loqui/chat-service/internal/plugin/route/users"
	"github.com/loqui/chat-service/internal/plugin/store/memory"
	"github.com/loqui/chat-service/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *chat.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	svc := chat.NewService(store, nil, 0)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	resolver := security.NewTokenResolver(&cfg)
	auth := security.AuthMiddleware(resolver)

	router := gin.New()
	conversations.MountRoutes(router, svc, auth)
	messages.MountRoutes(router, svc, auth)
	users.MountRoutes(router, svc, auth)
	return router, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedUser(t *testing.T, svc *chat.Service, id string) {
	t.Helper()
	_, err := svc.RegisterUser(context.Background(), id, id, "", nil)
	require.NoError(t, err)
}

func TestCreateConversation_RequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations", "", gin.H{
		"name": "movie night", "userIds": []string{"alice"},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetConversation(t *testing.T) {
	router, svc := newTestRouter(t)
	seedUser(t, svc, "alice")
	seedUser(t, svc, "bob")

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations", "alice", gin.H{
		"name": "movie night", "userIds": []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var conv struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		UserIDs []string `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "movie night", conv.Name)
	assert.Equal(t, []string{"alice", "bob"}, conv.UserIDs)

	got := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID, "bob", nil)
	require.Equal(t, http.StatusOK, got.Code)

	// Non-members get a 404, not a 403, so membership is not leaked.
	hidden := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID, "mallory", nil)
	require.Equal(t, http.StatusNotFound, hidden.Code)
}

func TestCreateConversation_ValidationError(t *testing.T) {
	router, svc := newTestRouter(t)
	seedUser(t, svc, "alice")

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations", "alice", gin.H{
		"name": "x", "userIds": []string{"alice"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestAddUsers_AdminOnly(t *testing.T) {
	router, svc := newTestRouter(t)
	seedUser(t, svc, "alice")
	seedUser(t, svc, "bob")
	seedUser(t, svc, "carol")

	conv, err := svc.CreateConversation(context.Background(), "alice", "group", []string{"alice", "bob"})
	require.NoError(t, err)

	forbidden := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/users", "bob", gin.H{
		"userIds": []string{"carol"},
	})
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	ok := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/users", "alice", gin.H{
		"userIds": []string{"carol"},
	})
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Contains(t, ok.Body.String(), "carol")
}

func TestLeaveAndPreviews(t *testing.T) {
	router, svc := newTestRouter(t)
	seedUser(t, svc, "alice")
	seedUser(t, svc, "bob")

	conv, err := svc.CreateConversation(context.Background(), "alice", "group", []string{"alice", "bob"})
	require.NoError(t, err)

	_, err = svc.PostMessage(context.Background(), conv.ID, "alice", "hello bob", "")
	require.NoError(t, err)

	previews := doJSON(t, router, http.MethodGet, "/v1/conversations/previews", "bob", nil)
	require.Equal(t, http.StatusOK, previews.Code)
	assert.Contains(t, previews.Body.String(), "hello bob")

	left := doJSON(t, router, http.MethodDelete, "/v1/conversations/"+conv.ID+"/leave", "bob", nil)
	require.Equal(t, http.StatusNoContent, left.Code)

	gone := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID, "bob", nil)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestMessagesOverHTTP(t *testing.T) {
	router, svc := newTestRouter(t)
	seedUser(t, svc, "alice")
	seedUser(t, svc, "bob")

	conv, err := svc.CreateConversation(context.Background(), "alice", "group", []string{"alice", "bob"})
	require.NoError(t, err)

	post := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "alice", gin.H{
		"content": "first",
	})
	require.Equal(t, http.StatusCreated, post.Code)

	empty := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "alice", gin.H{
		"content": "   ",
	})
	require.Equal(t, http.StatusBadRequest, empty.Code)

	list := doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/conversations/%s/messages?page=1&limit=10", conv.ID), "bob", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "first")

	read := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, read.Code)
	assert.Contains(t, read.Body.String(), `"markedRead":1`)
}

func TestUserRoutes(t *testing.T) {
	router, svc := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/v1/users", "alice", gin.H{
		"username": "alice", "bio": "movie fan",
	})
	require.Equal(t, http.StatusCreated, created.Code)

	dup := doJSON(t, router, http.MethodPost, "/v1/users", "alice2", gin.H{
		"username": "alice",
	})
	require.Equal(t, http.StatusConflict, dup.Code)

	seedUser(t, svc, "bob")

	blocked := doJSON(t, router, http.MethodPost, "/v1/users/blocked", "alice", gin.H{"userId": "bob"})
	require.Equal(t, http.StatusOK, blocked.Code)

	again := doJSON(t, router, http.MethodPost, "/v1/users/blocked", "alice", gin.H{"userId": "bob"})
	require.Equal(t, http.StatusBadRequest, again.Code)

	unblocked := doJSON(t, router, http.MethodDelete, "/v1/users/blocked/bob", "alice", nil)
	require.Equal(t, http.StatusOK, unblocked.Code)

	search := doJSON(t, router, http.MethodGet, "/v1/users?username=ali", "bob", nil)
	require.Equal(t, http.StatusOK, search.Code)
	assert.Contains(t, search.Body.String(), "alice")
}
