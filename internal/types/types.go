package types

import (
	"time"
)

const (
	ChatTypeDirect = "direct"
	ChatTypeGroup  = "group"

	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	RoleAdmin  = "admin"
	RoleMember = "member"

	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

type User struct {
	Id           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Avatar       string    `json:"avatar,omitempty"`
	Organization string    `json:"organization_id,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type ChatMember struct {
	User     User      `json:"user"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type ChatSettings struct {
	CanMembersInvite  bool `json:"can_members_invite"`
	CanMembersMessage bool `json:"can_members_message"`
	ApprovalRequired  bool `json:"approval_required"`
}

type Chat struct {
	Id           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Type         string       `json:"type"`
	Visibility   string       `json:"visibility"`
	Organization string       `json:"organization_id"`
	Project      string       `json:"project_id,omitempty"`
	Creator      User         `json:"creator"`
	Members      []ChatMember `json:"members"`
	Settings     ChatSettings `json:"settings"`
	Avatar       string       `json:"avatar,omitempty"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	IsArchived   bool         `json:"is_archived"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at,omitempty"`
}

type Attachment struct {
	Url  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type Reaction struct {
	UserId    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	Id          string       `json:"id"`
	ChatId      string       `json:"chat_id"`
	Sender      User         `json:"sender"`
	Content     string       `json:"content"`
	MessageType string       `json:"message_type"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Mentions    []string     `json:"mentions,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	ReadBy      []string     `json:"read_by,omitempty"`
	IsEdited    bool         `json:"is_edited"`
	EditedAt    *time.Time   `json:"edited_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at,omitempty"`
}

type Presence struct {
	UserId     string    `json:"user_id"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ChatPage is the paginated chat-list read model returned by GetUserChats.
type ChatPage struct {
	Data       []Chat `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
}

type MessagePage struct {
	Data       []Message `json:"data"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
}
