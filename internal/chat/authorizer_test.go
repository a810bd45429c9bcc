package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/store"
	"github.com/teamsync-io/teamsync/internal/types"
)

func TestResolveMembership(t *testing.T) {
	chatId := primitive.NewObjectID()
	memberId := primitive.NewObjectID()
	strangerId := primitive.NewObjectID()

	chat := store.Chat{
		Id:   chatId,
		Type: types.ChatTypeGroup,
		Members: []store.ChatMember{
			{User: memberId, Role: types.RoleAdmin},
		},
	}

	tcases := []struct {
		name        string
		chatId      string
		userId      string
		setupMock   func(m *store.MockRepository)
		expectedErr error
		role        string
	}{
		{
			name:   "member resolves with role",
			chatId: chatId.Hex(),
			userId: memberId.Hex(),
			setupMock: func(m *store.MockRepository) {
				m.On("GetChat", mock.Anything, chatId).Return(chat, nil)
			},
			role: types.RoleAdmin,
		},
		{
			name:   "non-member is forbidden",
			chatId: chatId.Hex(),
			userId: strangerId.Hex(),
			setupMock: func(m *store.MockRepository) {
				m.On("GetChat", mock.Anything, chatId).Return(chat, nil)
			},
			expectedErr: ErrForbidden,
		},
		{
			name:   "missing chat is not found",
			chatId: chatId.Hex(),
			userId: memberId.Hex(),
			setupMock: func(m *store.MockRepository) {
				m.On("GetChat", mock.Anything, chatId).Return(store.Chat{}, store.ErrNotFound)
			},
			expectedErr: ErrNotFound,
		},
		{
			name:        "invalid chat id is a bad request",
			chatId:      "not-an-id",
			userId:      memberId.Hex(),
			setupMock:   func(m *store.MockRepository) {},
			expectedErr: ErrBadRequest,
		},
		{
			name:        "invalid user id is a bad request",
			chatId:      chatId.Hex(),
			userId:      "nope",
			setupMock:   func(m *store.MockRepository) {},
			expectedErr: ErrBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(store.MockRepository)
			tc.setupMock(mockRepo)

			auth := NewMembershipAuthorizer(mockRepo)
			membership, err := auth.ResolveMembership(context.Background(), tc.chatId, tc.userId)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr, "expected error %v", tc.expectedErr)
			} else {
				assert.NoError(t, err, "expected no error")
				assert.Equal(t, tc.role, membership.Role, "unexpected role")
				assert.Equal(t, tc.chatId, membership.ChatId, "unexpected chat id")
				assert.Equal(t, tc.userId, membership.UserId, "unexpected user id")
			}
			mockRepo.AssertExpectations(t)
		})
	}
}
