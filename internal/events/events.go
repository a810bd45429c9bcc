// Package events carries domain events from the write path to delivery.
// The event set is closed: producers publish one of the variants below and
// subscribers switch on the concrete type, so a payload-shape mismatch is a
// compile error rather than a runtime surprise.
package events

import (
	"time"

	"github.com/teamsync-io/teamsync/internal/types"
)

type Event interface {
	event()
}

// MessageCreated is published after a message has been durably persisted.
// It carries the fully populated message so delivery never re-queries.
type MessageCreated struct {
	ChatId  string
	Message types.Message
}

// MembersAdded is published for the net-new member set only; users already
// present in the chat never appear in UserIds.
type MembersAdded struct {
	ChatId  string
	UserIds []string
	AddedBy string
}

type MessageRead struct {
	ChatId     string
	ReaderId   string
	MessageIds []string
}

// TypingChanged carries the chat type and member set so the fanout layer can
// route direct-chat typing to the other member without loading the chat.
type TypingChanged struct {
	ChatId    string
	UserId    string
	IsTyping  bool
	ChatType  string
	MemberIds []string
}

type PresenceChanged struct {
	UserId     string
	Status     string
	LastSeenAt time.Time
}

func (MessageCreated) event()  {}
func (MembersAdded) event()    {}
func (MessageRead) event()     {}
func (TypingChanged) event()   {}
func (PresenceChanged) event() {}
