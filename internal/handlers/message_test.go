package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/access"
	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/ws"
)

type messageTestDeps struct {
	messageRepo *mocks.MessageRepositoryMock
	memberRepo  *mocks.MembershipRepositoryMock
	handler     *MessageHandler
}

func newMessageTestDeps() messageTestDeps {
	messageRepo := new(mocks.MessageRepositoryMock)
	memberRepo := new(mocks.MembershipRepositoryMock)
	guard := access.NewGuard(memberRepo)
	hub := ws.NewHub(memberRepo, guard)
	return messageTestDeps{
		messageRepo: messageRepo,
		memberRepo:  memberRepo,
		handler:     NewMessageHandler(messageRepo, guard, hub),
	}
}

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/chats/:chat_id/messages", handler.ListMessages)
	r.POST("/chats/:chat_id/messages", handler.PostMessage)
	r.DELETE("/chats/:chat_id/messages/:message_id", handler.DeleteMessage)
	r.DELETE("/chats/:chat_id/messages", handler.DeleteMyMessages)
	return r
}

func TestPostMessageSuccess(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	deps.messageRepo.On("Append", mock.Anything, int64(5), int64(1), "hello", models.MessageTypeText, (*int64)(nil)).
		Return(models.Message{ID: 42, ChatID: 5, SenderID: 1, Content: "hello", Type: models.MessageTypeText}, nil).Once()
	deps.memberRepo.On("MemberIDs", mock.Anything, int64(5)).Return([]int64{1, 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	deps.messageRepo.AssertExpectations(t)
	deps.memberRepo.AssertExpectations(t)
}

func TestPostMessageNotMember(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.messageRepo.AssertNotCalled(t, "Append")
	deps.memberRepo.AssertExpectations(t)
}

func TestPostMessageInvalidType(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"x","type":"sticker"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessagesFromBeginning(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	deps.messageRepo.On("ListSince", mock.Anything, int64(5), models.Cursor{}, 100).
		Return([]models.Message{{ID: 1, ChatID: 5}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.messageRepo.AssertExpectations(t)
}

func TestListMessagesWithCursor(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	deps.messageRepo.On("ListSince", mock.Anything, int64(5), mock.MatchedBy(func(cur models.Cursor) bool {
		return cur.ID == 42 && cur.CreatedAt.Equal(ts)
	}), 50).Return([]models.Message{}, nil).Once()

	url := "/chats/5/messages?after_ts=" + ts.Format(time.RFC3339Nano) + "&after_id=42&limit=50"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.messageRepo.AssertExpectations(t)
}

func TestListMessagesBadCursor(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages?after_ts=yesterday&after_id=42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	deps.messageRepo.AssertNotCalled(t, "ListSince")
}

func TestListMessagesNotMember(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.messageRepo.AssertNotCalled(t, "ListSince")
}

func TestDeleteMessageBySender(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.messageRepo.On("GetMessage", mock.Anything, int64(9)).
		Return(models.Message{ID: 9, ChatID: 5, SenderID: 1}, nil).Once()
	deps.messageRepo.On("Delete", mock.Anything, int64(9)).Return(nil).Once()
	deps.memberRepo.On("MemberIDs", mock.Anything, int64(5)).Return([]int64{1, 2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	deps.messageRepo.AssertExpectations(t)
}

func TestDeleteMessageNotSender(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.messageRepo.On("GetMessage", mock.Anything, int64(9)).
		Return(models.Message{ID: 9, ChatID: 5, SenderID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.messageRepo.AssertNotCalled(t, "Delete")
}

func TestDeleteMessageWrongChat(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.messageRepo.On("GetMessage", mock.Anything, int64(9)).
		Return(models.Message{ID: 9, ChatID: 6, SenderID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	deps.messageRepo.AssertNotCalled(t, "Delete")
}

func TestDeleteMessageNotFound(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.messageRepo.On("GetMessage", mock.Anything, int64(9)).
		Return(models.Message{}, models.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	deps.messageRepo.AssertExpectations(t)
}

func TestDeleteMyMessages(t *testing.T) {
	deps := newMessageTestDeps()
	router := setupMessageRouter(deps.handler)

	deps.memberRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	deps.messageRepo.On("DeleteAllBySender", mock.Anything, int64(5), int64(1)).
		Return([]int64{3, 4}, nil).Once()
	deps.memberRepo.On("MemberIDs", mock.Anything, int64(5)).Return([]int64{1, 2}, nil).Twice()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"deleted":2}`, rec.Body.String())
	deps.messageRepo.AssertExpectations(t)
	deps.memberRepo.AssertExpectations(t)
}
