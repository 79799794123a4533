package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/access"
	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/presence"
	"chat-backend/internal/ws"
)

type chatTestDeps struct {
	chatRepo   *mocks.ChatRepositoryMock
	memberRepo *mocks.MembershipRepositoryMock
	friendRepo *mocks.FriendRepositoryMock
	handler    *ChatHandler
}

func newChatTestDeps() chatTestDeps {
	chatRepo := new(mocks.ChatRepositoryMock)
	memberRepo := new(mocks.MembershipRepositoryMock)
	friendRepo := new(mocks.FriendRepositoryMock)
	guard := access.NewGuard(memberRepo)
	hub := ws.NewHub(memberRepo, guard)
	tracker := presence.NewTracker(3 * time.Second)
	return chatTestDeps{
		chatRepo:   chatRepo,
		memberRepo: memberRepo,
		friendRepo: friendRepo,
		handler:    NewChatHandler(chatRepo, memberRepo, friendRepo, guard, hub, tracker, nil),
	}
}

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.POST("/chats/direct", handler.StartDirectChat)
	r.POST("/chats/group", handler.CreateGroupChat)
	r.GET("/chats/:chat_id/members", handler.ListMembers)
	r.POST("/chats/:chat_id/members", handler.AddMember)
	r.DELETE("/chats/:chat_id/members/:user_id", handler.RemoveMember)
	return r
}

func TestListChatsSuccess(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.chatRepo.On("ListChats", mock.Anything, int64(1)).
		Return([]models.Chat{{ID: 3, Kind: models.ChatKindDirect}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.chatRepo.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.chatRepo.On("ListChats", mock.Anything, int64(1)).
		Return(([]models.Chat)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	deps.chatRepo.AssertExpectations(t)
}

func TestStartDirectChatSuccess(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.friendRepo.On("AreFriends", mock.Anything, int64(1), int64(2)).Return(true, nil).Once()
	deps.chatRepo.On("GetOrCreateDirectChat", mock.Anything, int64(1), int64(2)).
		Return(models.Chat{ID: 10, Kind: models.ChatKindDirect}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/direct", bytes.NewBufferString(`{"friend_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.friendRepo.AssertExpectations(t)
	deps.chatRepo.AssertExpectations(t)
}

func TestStartDirectChatNotFriends(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.friendRepo.On("AreFriends", mock.Anything, int64(1), int64(5)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/direct", bytes.NewBufferString(`{"friend_id":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.friendRepo.AssertExpectations(t)
}

func TestStartDirectChatWithSelf(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	req := httptest.NewRequest(http.MethodPost, "/chats/direct", bytes.NewBufferString(`{"friend_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupChatSuccess(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.chatRepo.On("CreateGroupChat", mock.Anything, int64(1), "team", "", []int64{2, 3}).
		Return(models.Chat{ID: 7, Kind: models.ChatKindGroup, Name: "team"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/group", bytes.NewBufferString(`{"name":"team","member_ids":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	deps.chatRepo.AssertExpectations(t)
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("Role", mock.Anything, int64(5), int64(1)).Return(models.RoleMember, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/members", bytes.NewBufferString(`{"user_id":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}

func TestAddMemberSuccess(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("Role", mock.Anything, int64(5), int64(1)).Return(models.RoleAdmin, nil).Once()
	deps.memberRepo.On("AddMember", mock.Anything, int64(5), int64(9), models.RoleMember).
		Return(models.Membership{ChatID: 5, UserID: 9, Role: models.RoleMember}, nil).Once()
	deps.memberRepo.On("MemberIDs", mock.Anything, int64(5)).Return([]int64{1, 9}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/members", bytes.NewBufferString(`{"user_id":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}

func TestAddMemberDuplicateConflict(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("Role", mock.Anything, int64(5), int64(1)).Return(models.RoleAdmin, nil).Once()
	deps.memberRepo.On("AddMember", mock.Anything, int64(5), int64(9), models.RoleMember).
		Return(models.Membership{}, models.ErrConflict).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/members", bytes.NewBufferString(`{"user_id":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}

func TestAddMemberDirectChatFull(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("Role", mock.Anything, int64(5), int64(1)).Return(models.RoleAdmin, nil).Once()
	deps.memberRepo.On("AddMember", mock.Anything, int64(5), int64(9), models.RoleMember).
		Return(models.Membership{}, models.ErrCapacityExceeded).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/members", bytes.NewBufferString(`{"user_id":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}

func TestRemoveMemberSelfLeave(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("RemoveMember", mock.Anything, int64(5), int64(1)).Return(nil).Once()
	deps.memberRepo.On("MemberIDs", mock.Anything, int64(5)).Return([]int64{2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}

func TestRemoveMemberKickRequiresAdmin(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("Role", mock.Anything, int64(5), int64(1)).Return(models.RoleMember, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}

func TestRemoveMemberLastAdminBlocked(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("RemoveMember", mock.Anything, int64(5), int64(1)).Return(models.ErrConflict).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	deps.memberRepo.AssertNotCalled(t, "MemberIDs")
	deps.memberRepo.AssertExpectations(t)
}

func TestRemoveMemberNotFound(t *testing.T) {
	deps := newChatTestDeps()
	router := setupChatRouter(deps.handler)

	deps.memberRepo.On("RemoveMember", mock.Anything, int64(5), int64(1)).Return(models.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	deps.memberRepo.AssertExpectations(t)
}
