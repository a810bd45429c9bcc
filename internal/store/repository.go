package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a queried document does not exist. Callers
// translate it into their own taxonomy; nothing above this package should
// depend on driver error values.
var ErrNotFound = errors.New("store: not found")

type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsers(ctx context.Context, ids []primitive.ObjectID) ([]User, error)
	SearchUsers(ctx context.Context, orgId primitive.ObjectID, term string) ([]User, error)

	CreateChat(ctx context.Context, chat Chat) (Chat, error)
	GetChat(ctx context.Context, id primitive.ObjectID) (Chat, error)
	FindDirectChat(ctx context.Context, orgId, userA, userB primitive.ObjectID) (Chat, error)
	UpdateChat(ctx context.Context, id primitive.ObjectID, params UpdateChatParams) error
	DeleteChat(ctx context.Context, id primitive.ObjectID) error
	AddMember(ctx context.Context, chatId primitive.ObjectID, member ChatMember) (bool, error)
	RemoveMember(ctx context.Context, chatId, userId primitive.ObjectID) error
	SetLastMessage(ctx context.Context, chatId, messageId primitive.ObjectID) error
	ListUserChats(ctx context.Context, userId, orgId primitive.ObjectID, query ChatQuery) ([]ChatDetail, int64, error)
	ListMemberChatIds(ctx context.Context, userId, orgId primitive.ObjectID) ([]primitive.ObjectID, error)
	SearchChats(ctx context.Context, userId, orgId primitive.ObjectID, term string) ([]ChatDetail, error)

	CreateMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, chatId, messageId primitive.ObjectID) (Message, error)
	UpdateMessage(ctx context.Context, chatId, messageId primitive.ObjectID, params UpdateMessageParams) error
	DeleteMessage(ctx context.Context, chatId, messageId primitive.ObjectID) error
	MarkMessagesRead(ctx context.Context, chatId primitive.ObjectID, messageIds []primitive.ObjectID, userId primitive.ObjectID) error
	ListMessages(ctx context.Context, chatId primitive.ObjectID, query MessageQuery) ([]Message, int64, error)

	UpsertPresence(ctx context.Context, userId primitive.ObjectID, status string, lastSeen time.Time) error
	GetPresence(ctx context.Context, userId primitive.ObjectID) (Presence, error)
}
