package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamsync-io/teamsync/internal/store"
)

// Membership binds a user to a chat. It is the unit every mutating chat or
// message operation resolves before touching state.
type Membership struct {
	ChatId   string
	UserId   string
	Role     string
	JoinedAt time.Time
}

// MembershipAuthorizer is the single membership gate for both transports:
// REST handlers and socket handlers go through the same resolution, so the
// two paths cannot drift.
type MembershipAuthorizer struct {
	db store.Repository
}

func NewMembershipAuthorizer(db store.Repository) *MembershipAuthorizer {
	return &MembershipAuthorizer{db: db}
}

// ResolveMembership loads the chat and locates the caller in its member
// list. ErrNotFound if the chat does not exist, ErrForbidden if the user is
// not a member.
func (a *MembershipAuthorizer) ResolveMembership(ctx context.Context, chatId, userId string) (Membership, error) {
	_, membership, err := a.resolveChat(ctx, chatId, userId)
	return membership, err
}

// resolveChat returns the chat document alongside the membership so callers
// that need both (settings gates, member sets for fanout) issue one read.
func (a *MembershipAuthorizer) resolveChat(ctx context.Context, chatId, userId string) (store.Chat, Membership, error) {
	chatOID, err := parseID(chatId)
	if err != nil {
		return store.Chat{}, Membership{}, err
	}
	userOID, err := parseID(userId)
	if err != nil {
		return store.Chat{}, Membership{}, err
	}

	chat, err := a.db.GetChat(ctx, chatOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Chat{}, Membership{}, fmt.Errorf("%w: chat %s", ErrNotFound, chatId)
		}
		return store.Chat{}, Membership{}, fmt.Errorf("get chat: %w", err)
	}

	for _, m := range chat.Members {
		if m.User == userOID {
			return chat, Membership{
				ChatId:   chatId,
				UserId:   userId,
				Role:     m.Role,
				JoinedAt: m.JoinedAt,
			}, nil
		}
	}

	return store.Chat{}, Membership{}, fmt.Errorf("%w: not a member of chat %s", ErrForbidden, chatId)
}
