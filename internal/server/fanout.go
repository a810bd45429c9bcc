package server

import (
	"log"

	"github.com/teamsync-io/teamsync/internal/events"
	"github.com/teamsync-io/teamsync/internal/types"
)

// Fanout turns domain events into socket deliveries. It is the only place
// that knows the routing rules; the services publishing events never talk
// to sessions directly.
type Fanout struct {
	log    *log.Logger
	router *RoomRouter
}

func NewFanout(logger *log.Logger, router *RoomRouter) *Fanout {
	return &Fanout{log: logger, router: router}
}

func (f *Fanout) Register(bus *events.Bus) {
	bus.Subscribe(f.handle)
}

func (f *Fanout) handle(e events.Event) {
	switch evt := e.(type) {
	case events.MessageCreated:
		f.messageCreated(evt)
	case events.MembersAdded:
		f.membersAdded(evt)
	case events.MessageRead:
		f.messageRead(evt)
	case events.TypingChanged:
		f.typingChanged(evt)
	case events.PresenceChanged:
		f.presenceChanged(evt)
	}
}

// messageCreated reaches every session in the chat room, the sender's
// included: the sender's other tabs need the message too.
func (f *Fanout) messageCreated(evt events.MessageCreated) {
	msg := evt.Message
	f.router.Broadcast(chatRoom(evt.ChatId), &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Message:     &msg,
	}, "")
}

// membersAdded notifies the room about the new members, then invites each
// net-new member individually on their user room so they can subscribe.
func (f *Fanout) membersAdded(evt events.MembersAdded) {
	f.router.Broadcast(chatRoom(evt.ChatId), &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			MembersAdded: &MembersAddedNotification{
				ChatId:  evt.ChatId,
				UserIds: evt.UserIds,
				AddedBy: evt.AddedBy,
			},
		},
	}, "")

	for _, userId := range evt.UserIds {
		f.router.BroadcastToUser(userId, &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				ChatInvite: &ChatInviteNotification{
					ChatId:  evt.ChatId,
					AddedBy: evt.AddedBy,
				},
			},
		})
	}
}

// messageRead goes to the room minus the reader; the reader already knows.
func (f *Fanout) messageRead(evt events.MessageRead) {
	f.router.Broadcast(chatRoom(evt.ChatId), &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			MessagesRead: &MessagesReadNotification{
				ChatId:     evt.ChatId,
				UserId:     evt.ReaderId,
				MessageIds: evt.MessageIds,
			},
		},
	}, evt.ReaderId)
}

// typingChanged routes by chat type. In a direct chat the indicator lands
// on the other member's user room so it renders even before they join the
// chat room; in a group it goes to the room minus the typist.
func (f *Fanout) typingChanged(evt events.TypingChanged) {
	notification := &Notification{
		Typing: &TypingNotification{
			ChatId:   evt.ChatId,
			UserId:   evt.UserId,
			IsTyping: evt.IsTyping,
		},
	}

	if evt.ChatType == types.ChatTypeDirect {
		notification.Typing.IsMeTyping = true
		for _, memberId := range evt.MemberIds {
			if memberId == evt.UserId {
				continue
			}
			f.router.BroadcastToUser(memberId, &ServerMessage{
				BaseMessage:  BaseMessage{Timestamp: Now()},
				Notification: notification,
			})
		}
		return
	}

	f.router.Broadcast(chatRoom(evt.ChatId), &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: notification,
	}, evt.UserId)
}

// presenceChanged is organization-wide and reaches every live session
// except the user's own.
func (f *Fanout) presenceChanged(evt events.PresenceChanged) {
	f.router.BroadcastAll(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Presence: &PresenceNotification{
				UserId:     evt.UserId,
				Status:     evt.Status,
				LastSeenAt: evt.LastSeenAt,
			},
		},
	}, evt.UserId)
}
