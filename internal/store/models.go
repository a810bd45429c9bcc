package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	Id           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	FirstName    string             `bson:"first_name"`
	LastName     string             `bson:"last_name"`
	PasswordHash string             `bson:"password_hash"`
	Avatar       string             `bson:"avatar,omitempty"`
	Organization primitive.ObjectID `bson:"organization,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type ChatMember struct {
	User     primitive.ObjectID `bson:"user"`
	Role     string             `bson:"role"`
	JoinedAt time.Time          `bson:"joined_at"`
}

type ChatSettings struct {
	CanMembersInvite  bool `bson:"can_members_invite"`
	CanMembersMessage bool `bson:"can_members_message"`
	ApprovalRequired  bool `bson:"approval_required"`
}

type Chat struct {
	Id           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name,omitempty"`
	Description  string             `bson:"description,omitempty"`
	Type         string             `bson:"type"`
	Visibility   string             `bson:"visibility"`
	Organization primitive.ObjectID `bson:"organization"`
	Project      primitive.ObjectID `bson:"project,omitempty"`
	Creator      primitive.ObjectID `bson:"creator"`
	Members      []ChatMember       `bson:"members"`
	Settings     ChatSettings       `bson:"settings"`
	Avatar       string             `bson:"avatar,omitempty"`
	LastMessage  primitive.ObjectID `bson:"last_message,omitempty"`
	IsArchived   bool               `bson:"is_archived"`
	DeletedAt    *time.Time         `bson:"deleted_at,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type Attachment struct {
	Url  string `bson:"url"`
	Name string `bson:"name"`
	Type string `bson:"type"`
	Size int64  `bson:"size"`
}

type Reaction struct {
	User      primitive.ObjectID `bson:"user"`
	Emoji     string             `bson:"emoji"`
	CreatedAt time.Time          `bson:"created_at"`
}

type Message struct {
	Id          primitive.ObjectID   `bson:"_id,omitempty"`
	Chat        primitive.ObjectID   `bson:"chat"`
	Sender      primitive.ObjectID   `bson:"sender"`
	Content     string               `bson:"content"`
	MessageType string               `bson:"message_type"`
	Attachments []Attachment         `bson:"attachments,omitempty"`
	Mentions    []primitive.ObjectID `bson:"mentions,omitempty"`
	Reactions   []Reaction           `bson:"reactions,omitempty"`
	ReplyTo     primitive.ObjectID   `bson:"reply_to,omitempty"`
	ReadBy      []primitive.ObjectID `bson:"read_by"`
	IsEdited    bool                 `bson:"is_edited"`
	EditedAt    *time.Time           `bson:"edited_at,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

type Presence struct {
	UserId     primitive.ObjectID `bson:"_id"`
	Status     string             `bson:"status"`
	LastSeenAt time.Time          `bson:"last_seen_at"`
}

// ChatDetail is the denormalized chat-list read model: the chat document
// joined with its member and creator user documents and the last message.
type ChatDetail struct {
	Chat        `bson:",inline"`
	MemberUsers []User   `bson:"member_users"`
	CreatorUser *User    `bson:"creator_user,omitempty"`
	LastMsg     *Message `bson:"last_msg,omitempty"`
}

type CreateUserParams struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Avatar       string
	Organization primitive.ObjectID
}

type UpdateChatParams struct {
	Name        *string
	Description *string
	Visibility  *string
	Avatar      *string
	IsArchived  *bool
}

type UpdateMessageParams struct {
	Content string
}

type ChatQuery struct {
	Page   int
	Limit  int
	Type   string
	Search string
}

type MessageQuery struct {
	Page        int
	Limit       int
	StartDate   *time.Time
	EndDate     *time.Time
	MessageType string
	Search      string
}
