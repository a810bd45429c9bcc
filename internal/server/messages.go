package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the tagged union read off the socket: exactly one of the
// operation pointers is expected to be set.
type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Typing  *Typing  `json:"typing,omitempty"`
	Read    *Read    `json:"read,omitempty"`
	UserId  string   `json:"-"`
}

type Publish struct {
	ChatId      string             `json:"chat_id"`
	Content     string             `json:"content"`
	MessageType string             `json:"message_type,omitempty"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
	Mentions    []string           `json:"mentions,omitempty"`
	ReplyTo     string             `json:"reply_to,omitempty"`
}

type Join struct {
	ChatId string `json:"chat_id"`
}

type Leave struct {
	ChatId string `json:"chat_id"`
}

type Typing struct {
	ChatId   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}

type Read struct {
	ChatId     string   `json:"chat_id"`
	MessageIds []string `json:"message_ids"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Notification struct {
	Typing       *TypingNotification       `json:"typing,omitempty"`
	MessagesRead *MessagesReadNotification `json:"messages_read,omitempty"`
	MembersAdded *MembersAddedNotification `json:"members_added,omitempty"`
	ChatInvite   *ChatInviteNotification   `json:"chat_invite,omitempty"`
	Presence     *PresenceNotification     `json:"presence,omitempty"`
}

type TypingNotification struct {
	ChatId     string `json:"chat_id"`
	UserId     string `json:"user_id"`
	IsTyping   bool   `json:"is_typing"`
	IsMeTyping bool   `json:"is_me_typing,omitempty"`
}

type MessagesReadNotification struct {
	ChatId     string   `json:"chat_id"`
	UserId     string   `json:"user_id"`
	MessageIds []string `json:"message_ids"`
}

type MembersAddedNotification struct {
	ChatId  string   `json:"chat_id"`
	UserIds []string `json:"user_ids"`
	AddedBy string   `json:"added_by"`
}

type ChatInviteNotification struct {
	ChatId  string `json:"chat_id"`
	AddedBy string `json:"added_by"`
}

type PresenceNotification struct {
	UserId     string    `json:"user_id"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

// errResponse translates a domain error into a socket response. Unknown
// errors are masked as an internal error so store details never leak.
func errResponse(id int, err error) *ServerMessage {
	code := http.StatusInternalServerError
	text := "internal server error"

	switch {
	case errors.Is(err, chat.ErrNotFound):
		code = http.StatusNotFound
		text = err.Error()
	case errors.Is(err, chat.ErrForbidden):
		code = http.StatusForbidden
		text = err.Error()
	case errors.Is(err, chat.ErrBadRequest):
		code = http.StatusBadRequest
		text = err.Error()
	case errors.Is(err, chat.ErrConflict):
		code = http.StatusConflict
		text = err.Error()
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
