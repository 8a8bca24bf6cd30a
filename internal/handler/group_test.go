package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/service"
	appErrors "sudooom.im.chat/pkg/errors"
)

// MockMutationEngine 模拟 MutationEngine
type MockMutationEngine struct {
	CreateMessageFunc func(ctx context.Context, text string, groupID int64) (*model.Message, error)
	LeaveGroupFunc    func(ctx context.Context, groupID int64, userID *int64) (int64, error)
	MarkReadFunc      func(ctx context.Context, groupID, messageID int64) (int64, error)
}

func (m *MockMutationEngine) CreateMessage(ctx context.Context, text string, groupID int64) (*model.Message, error) {
	return m.CreateMessageFunc(ctx, text, groupID)
}

func (m *MockMutationEngine) CreateGroup(context.Context, *service.CreateGroupRequest) (*model.Group, error) {
	return nil, appErrors.ErrServerError
}

func (m *MockMutationEngine) DeleteGroup(context.Context, int64) (*model.Group, error) {
	return nil, appErrors.ErrServerError
}

func (m *MockMutationEngine) LeaveGroup(ctx context.Context, groupID int64, userID *int64) (int64, error) {
	return m.LeaveGroupFunc(ctx, groupID, userID)
}

func (m *MockMutationEngine) UpdateGroup(context.Context, int64, model.GroupUpdate) (*model.Group, error) {
	return nil, appErrors.ErrServerError
}

func (m *MockMutationEngine) MarkRead(ctx context.Context, groupID, messageID int64) (int64, error) {
	return m.MarkReadFunc(ctx, groupID, messageID)
}

// APIResponse 用于解析响应体
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupTestRouter(engine service.MutationEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewGroupHandler(engine, nil)
	r.POST("/groups/:id/messages", h.CreateMessage)
	r.POST("/groups/:id/leave", h.LeaveGroup)
	r.POST("/groups/:id/read", h.MarkRead)
	return r
}

func post(r http.Handler, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestGroupHandler_CreateMessage(t *testing.T) {
	engine := &MockMutationEngine{
		CreateMessageFunc: func(_ context.Context, text string, groupID int64) (*model.Message, error) {
			return &model.Message{ID: 100, GroupID: groupID, SenderID: 1, Text: text}, nil
		},
	}
	r := setupTestRouter(engine)

	w, resp := post(r, "/groups/7/messages", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appErrors.CodeSuccess, resp.Code)

	var msg model.Message
	require.NoError(t, json.Unmarshal(resp.Data, &msg))
	assert.Equal(t, int64(7), msg.GroupID)
	assert.Equal(t, "hi", msg.Text)
}

func TestGroupHandler_CreateMessage_InvalidParams(t *testing.T) {
	r := setupTestRouter(&MockMutationEngine{})

	w, resp := post(r, "/groups/abc/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.CodeInvalidParams, resp.Code)

	w, _ = post(r, "/groups/7/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupHandler_CreateMessage_Forbidden(t *testing.T) {
	engine := &MockMutationEngine{
		CreateMessageFunc: func(context.Context, string, int64) (*model.Message, error) {
			return nil, appErrors.ErrForbidden
		},
	}
	r := setupTestRouter(engine)

	w, resp := post(r, "/groups/7/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.CodeForbidden, resp.Code)
}

func TestGroupHandler_LeaveGroup_OptionalBody(t *testing.T) {
	var gotUserID *int64
	engine := &MockMutationEngine{
		LeaveGroupFunc: func(_ context.Context, groupID int64, userID *int64) (int64, error) {
			gotUserID = userID
			return groupID, nil
		},
	}
	r := setupTestRouter(engine)

	w, resp := post(r, "/groups/7/leave", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotUserID)
	assert.JSONEq(t, `{"id":7}`, string(resp.Data))

	w, _ = post(r, "/groups/7/leave", map[string]int64{"userId": 3})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotUserID)
	assert.Equal(t, int64(3), *gotUserID)
}

func TestGroupHandler_MarkRead(t *testing.T) {
	engine := &MockMutationEngine{
		MarkReadFunc: func(_ context.Context, _, messageID int64) (int64, error) {
			return messageID, nil
		},
	}
	r := setupTestRouter(engine)

	w, resp := post(r, "/groups/7/read", map[string]int64{"messageId": 42})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"lastRead":42}`, string(resp.Data))

	w, _ = post(r, "/groups/7/read", map[string]int64{"messageId": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
