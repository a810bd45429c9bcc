package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/config"
	"github.com/teamsync-io/teamsync/internal/events"
	"github.com/teamsync-io/teamsync/internal/server"
	"github.com/teamsync-io/teamsync/internal/stats"
	"github.com/teamsync-io/teamsync/internal/store"
	"github.com/teamsync-io/teamsync/internal/testutil"
	"github.com/teamsync-io/teamsync/internal/types"
)

func newTestApp(t *testing.T, mockRepo *store.MockRepository) *App {
	t.Helper()

	logger := testutil.TestLogger(t)
	bus := events.NewBus(logger)
	svc := chat.NewService(logger, mockRepo, chat.NewMembershipAuthorizer(mockRepo), bus)
	presence := chat.NewPresenceTracker(logger, mockRepo, bus)

	mockStats := new(stats.MockStatsUpdater)
	mockStats.On("RegisterMetric", mock.Anything)
	mockStats.On("Incr", mock.Anything)
	mockStats.On("Decr", mock.Anything)
	router := server.NewRoomRouter(logger, mockRepo, presence, mockStats)

	cfg := &config.Config{
		ServerAddr: "localhost:8080",
		SigningKey: []byte("test-signing-key"),
	}
	return NewApp(logger, http.NewServeMux(), cfg, mockRepo, svc, presence, router)
}

func authedRequest(method, target string, body []byte, userId, orgId string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(WithIdentity(req.Context(), userId, orgId))
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name         string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successful health check",
			mockErr:      nil,
			expectedCode: http.StatusOK,
		},
		{
			name:         "failed health check",
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(store.MockRepository)
			mockRepo.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
			app.healthCheck(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestCreateChatHandler(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()
	chatId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("CreateChat", mock.Anything, mock.MatchedBy(func(c store.Chat) bool {
		return c.Type == types.ChatTypeGroup && c.Name == "backend" && c.Organization == orgId
	})).Return(store.Chat{
		Id:           chatId,
		Name:         "backend",
		Type:         types.ChatTypeGroup,
		Organization: orgId,
		Creator:      userId,
		Members: []store.ChatMember{
			{User: userId, Role: types.RoleAdmin},
		},
	}, nil)

	app := newTestApp(t, mockRepo)
	body, _ := json.Marshal(chat.CreateChatInput{Name: "backend", Type: types.ChatTypeGroup})
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/chats", body, userId.Hex(), orgId.Hex())
	app.createChat(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

	var resp types.Chat
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "expected valid json")
	assert.Equal(t, chatId.Hex(), resp.Id, "unexpected chat id")
	assert.Equal(t, types.RoleAdmin, resp.Members[0].Role, "creator should be admin")
	mockRepo.AssertExpectations(t)
}

func TestCreateChatHandler_BadBody(t *testing.T) {
	app := newTestApp(t, new(store.MockRepository))

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/chats", []byte("not json"), primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
	app.createChat(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
}

func TestGetChatHandler(t *testing.T) {
	chatId := primitive.NewObjectID()
	memberId := primitive.NewObjectID()
	strangerId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	chatDoc := store.Chat{
		Id:   chatId,
		Name: "backend",
		Type: types.ChatTypeGroup,
		Members: []store.ChatMember{
			{User: memberId, Role: types.RoleAdmin},
		},
		Creator: memberId,
	}

	tcases := []struct {
		name         string
		callerId     string
		setupMock    func(m *store.MockRepository)
		expectedCode int
	}{
		{
			name:     "member gets the chat",
			callerId: memberId.Hex(),
			setupMock: func(m *store.MockRepository) {
				m.On("GetChat", mock.Anything, chatId).Return(chatDoc, nil)
				m.On("GetUsers", mock.Anything, mock.Anything).
					Return([]store.User{{Id: memberId, FirstName: "Ada"}}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:     "non-member is forbidden",
			callerId: strangerId.Hex(),
			setupMock: func(m *store.MockRepository) {
				m.On("GetChat", mock.Anything, chatId).Return(chatDoc, nil)
			},
			expectedCode: http.StatusForbidden,
		},
		{
			name:     "missing chat",
			callerId: memberId.Hex(),
			setupMock: func(m *store.MockRepository) {
				m.On("GetChat", mock.Anything, chatId).Return(store.Chat{}, store.ErrNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(store.MockRepository)
			tc.setupMock(mockRepo)

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := authedRequest(http.MethodGet, "/api/chats/"+chatId.Hex(), nil, tc.callerId, orgId.Hex())
			req.SetPathValue("id", chatId.Hex())
			app.getChat(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestSendMessageHandler(t *testing.T) {
	chatId := primitive.NewObjectID()
	memberId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()
	msgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("GetChat", mock.Anything, chatId).Return(store.Chat{
		Id:   chatId,
		Type: types.ChatTypeGroup,
		Members: []store.ChatMember{
			{User: memberId, Role: types.RoleMember},
		},
		Settings: store.ChatSettings{CanMembersMessage: true},
	}, nil)
	mockRepo.On("CreateMessage", mock.Anything, mock.Anything).
		Return(store.Message{Id: msgId, Chat: chatId, Sender: memberId, Content: "hello"}, nil)
	mockRepo.On("GetUser", mock.Anything, memberId).Return(store.User{Id: memberId}, nil)
	mockRepo.On("SetLastMessage", mock.Anything, chatId, msgId).Return(nil)

	app := newTestApp(t, mockRepo)
	body, _ := json.Marshal(chat.SendMessageInput{Content: "hello"})
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/chats/"+chatId.Hex()+"/messages", body, memberId.Hex(), orgId.Hex())
	req.SetPathValue("id", chatId.Hex())
	app.sendMessage(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

	var resp types.Message
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "expected valid json")
	assert.Equal(t, msgId.Hex(), resp.Id, "unexpected message id")
	mockRepo.AssertExpectations(t)
}

func TestAddMembersHandler(t *testing.T) {
	chatId := primitive.NewObjectID()
	adminId := primitive.NewObjectID()
	newUser := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("GetChat", mock.Anything, chatId).Return(store.Chat{
		Id:   chatId,
		Type: types.ChatTypeGroup,
		Members: []store.ChatMember{
			{User: adminId, Role: types.RoleAdmin},
		},
	}, nil)
	mockRepo.On("AddMember", mock.Anything, chatId, mock.Anything).Return(true, nil)

	app := newTestApp(t, mockRepo)
	body, _ := json.Marshal(AddMembersRequest{UserIds: []string{newUser.Hex()}})
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/chats/"+chatId.Hex()+"/members", body, adminId.Hex(), orgId.Hex())
	req.SetPathValue("id", chatId.Hex())
	app.addMembers(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var resp AddMembersResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "expected valid json")
	assert.Equal(t, []string{newUser.Hex()}, resp.Added, "unexpected added list")
	mockRepo.AssertExpectations(t)
}

func TestAddMembersHandler_EmptyBody(t *testing.T) {
	app := newTestApp(t, new(store.MockRepository))

	body, _ := json.Marshal(AddMembersRequest{})
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/chats/abc/members", body, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
	req.SetPathValue("id", "abc")
	app.addMembers(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
}

func TestListChatsHandler(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("ListUserChats", mock.Anything, userId, orgId, store.ChatQuery{Page: 2, Limit: 10, Type: types.ChatTypeGroup}).
		Return([]store.ChatDetail{}, int64(0), nil)

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/chats?page=2&limit=10&type=group", nil, userId.Hex(), orgId.Hex())
	app.listChats(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
	mockRepo.AssertExpectations(t)
}

func TestListChatsHandler_BadPage(t *testing.T) {
	app := newTestApp(t, new(store.MockRepository))

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/chats?page=abc", nil, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
	app.listChats(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
}

func TestMarkMessagesReadHandler(t *testing.T) {
	chatId := primitive.NewObjectID()
	readerId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()
	msgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("GetChat", mock.Anything, chatId).Return(store.Chat{
		Id:   chatId,
		Type: types.ChatTypeGroup,
		Members: []store.ChatMember{
			{User: readerId, Role: types.RoleMember},
		},
	}, nil)
	mockRepo.On("MarkMessagesRead", mock.Anything, chatId, []primitive.ObjectID{msgId}, readerId).Return(nil)

	app := newTestApp(t, mockRepo)
	body, _ := json.Marshal(MarkReadRequest{MessageIds: []string{msgId.Hex()}})
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/chats/"+chatId.Hex()+"/read", body, readerId.Hex(), orgId.Hex())
	req.SetPathValue("id", chatId.Hex())
	app.markMessagesRead(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")
	mockRepo.AssertExpectations(t)
}

func TestGetPresenceHandler(t *testing.T) {
	userId := primitive.NewObjectID()
	targetId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("GetPresence", mock.Anything, targetId).
		Return(store.Presence{}, store.ErrNotFound)

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/users/"+targetId.Hex()+"/presence", nil, userId.Hex(), orgId.Hex())
	req.SetPathValue("id", targetId.Hex())
	app.getPresence(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var resp types.Presence
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "expected valid json")
	assert.Equal(t, types.StatusOffline, resp.Status, "unknown user reports offline")
	mockRepo.AssertExpectations(t)
}

func TestSearchHandler(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("SearchUsers", mock.Anything, orgId, "ada").
		Return([]store.User{{Id: primitive.NewObjectID(), FirstName: "Ada"}}, nil)
	mockRepo.On("SearchChats", mock.Anything, userId, orgId, "ada").
		Return([]store.ChatDetail{}, nil)

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/search?q=ada", nil, userId.Hex(), orgId.Hex())
	app.search(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var resp chat.SearchResult
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "expected valid json")
	assert.Len(t, resp.Users, 1, "expected one user")
	mockRepo.AssertExpectations(t)
}

func TestServeWs_MissingOrganization(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	app := newTestApp(t, new(store.MockRepository))
	rr := httptest.NewRecorder()
	// no organization_id query parameter
	req := authedRequest(http.MethodGet, "/ws", nil, userId.Hex(), orgId.Hex())
	app.serveWs(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code, "connection must be refused without a tenant")
}

func TestDeleteChatHandler_NonAdmin(t *testing.T) {
	chatId := primitive.NewObjectID()
	adminId := primitive.NewObjectID()
	memberId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("GetChat", mock.Anything, chatId).Return(store.Chat{
		Id:   chatId,
		Type: types.ChatTypeGroup,
		Members: []store.ChatMember{
			{User: adminId, Role: types.RoleAdmin},
			{User: memberId, Role: types.RoleMember},
		},
	}, nil)

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodDelete, "/api/chats/"+chatId.Hex(), nil, memberId.Hex(), orgId.Hex())
	req.SetPathValue("id", chatId.Hex())
	app.deleteChat(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	mockRepo.AssertNotCalled(t, "DeleteChat", mock.Anything, mock.Anything)
}
