package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUser(ctx context.Context, id primitive.ObjectID) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUsers(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) SearchUsers(ctx context.Context, orgId primitive.ObjectID, term string) ([]User, error) {
	args := m.Called(ctx, orgId, term)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) CreateChat(ctx context.Context, chat Chat) (Chat, error) {
	args := m.Called(ctx, chat)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) GetChat(ctx context.Context, id primitive.ObjectID) (Chat, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) FindDirectChat(ctx context.Context, orgId, userA, userB primitive.ObjectID) (Chat, error) {
	args := m.Called(ctx, orgId, userA, userB)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) UpdateChat(ctx context.Context, id primitive.ObjectID, params UpdateChatParams) error {
	args := m.Called(ctx, id, params)
	return args.Error(0)
}
func (m *MockRepository) DeleteChat(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepository) AddMember(ctx context.Context, chatId primitive.ObjectID, member ChatMember) (bool, error) {
	args := m.Called(ctx, chatId, member)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) RemoveMember(ctx context.Context, chatId, userId primitive.ObjectID) error {
	args := m.Called(ctx, chatId, userId)
	return args.Error(0)
}
func (m *MockRepository) SetLastMessage(ctx context.Context, chatId, messageId primitive.ObjectID) error {
	args := m.Called(ctx, chatId, messageId)
	return args.Error(0)
}
func (m *MockRepository) ListUserChats(ctx context.Context, userId, orgId primitive.ObjectID, query ChatQuery) ([]ChatDetail, int64, error) {
	args := m.Called(ctx, userId, orgId, query)
	return args.Get(0).([]ChatDetail), args.Get(1).(int64), args.Error(2)
}
func (m *MockRepository) ListMemberChatIds(ctx context.Context, userId, orgId primitive.ObjectID) ([]primitive.ObjectID, error) {
	args := m.Called(ctx, userId, orgId)
	return args.Get(0).([]primitive.ObjectID), args.Error(1)
}
func (m *MockRepository) SearchChats(ctx context.Context, userId, orgId primitive.ObjectID, term string) ([]ChatDetail, error) {
	args := m.Called(ctx, userId, orgId, term)
	return args.Get(0).([]ChatDetail), args.Error(1)
}
func (m *MockRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessage(ctx context.Context, chatId, messageId primitive.ObjectID) (Message, error) {
	args := m.Called(ctx, chatId, messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) UpdateMessage(ctx context.Context, chatId, messageId primitive.ObjectID, params UpdateMessageParams) error {
	args := m.Called(ctx, chatId, messageId, params)
	return args.Error(0)
}
func (m *MockRepository) DeleteMessage(ctx context.Context, chatId, messageId primitive.ObjectID) error {
	args := m.Called(ctx, chatId, messageId)
	return args.Error(0)
}
func (m *MockRepository) MarkMessagesRead(ctx context.Context, chatId primitive.ObjectID, messageIds []primitive.ObjectID, userId primitive.ObjectID) error {
	args := m.Called(ctx, chatId, messageIds, userId)
	return args.Error(0)
}
func (m *MockRepository) ListMessages(ctx context.Context, chatId primitive.ObjectID, query MessageQuery) ([]Message, int64, error) {
	args := m.Called(ctx, chatId, query)
	return args.Get(0).([]Message), args.Get(1).(int64), args.Error(2)
}
func (m *MockRepository) UpsertPresence(ctx context.Context, userId primitive.ObjectID, status string, lastSeen time.Time) error {
	args := m.Called(ctx, userId, status, lastSeen)
	return args.Error(0)
}
func (m *MockRepository) GetPresence(ctx context.Context, userId primitive.ObjectID) (Presence, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(Presence), args.Error(1)
}
