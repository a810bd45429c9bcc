package chat

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/store"
	"github.com/teamsync-io/teamsync/internal/types"
)

func userDTO(u store.User) types.User {
	dto := types.User{
		Id:        u.Id.Hex(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if !u.Organization.IsZero() {
		dto.Organization = u.Organization.Hex()
	}
	return dto
}

func settingsDTO(s store.ChatSettings) types.ChatSettings {
	return types.ChatSettings{
		CanMembersInvite:  s.CanMembersInvite,
		CanMembersMessage: s.CanMembersMessage,
		ApprovalRequired:  s.ApprovalRequired,
	}
}

// chatDTO maps a bare chat document; member and creator user fields carry
// ids only. chatDetailDTO is the populated variant.
func chatDTO(c store.Chat) types.Chat {
	members := make([]types.ChatMember, len(c.Members))
	for i, m := range c.Members {
		members[i] = types.ChatMember{
			User:     types.User{Id: m.User.Hex()},
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		}
	}

	dto := types.Chat{
		Id:           c.Id.Hex(),
		Name:         c.Name,
		Description:  c.Description,
		Type:         c.Type,
		Visibility:   c.Visibility,
		Organization: c.Organization.Hex(),
		Creator:      types.User{Id: c.Creator.Hex()},
		Members:      members,
		Settings:     settingsDTO(c.Settings),
		Avatar:       c.Avatar,
		IsArchived:   c.IsArchived,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if !c.Project.IsZero() {
		dto.Project = c.Project.Hex()
	}
	return dto
}

func chatDetailDTO(d store.ChatDetail) types.Chat {
	dto := chatDTO(d.Chat)

	usersById := make(map[primitive.ObjectID]store.User, len(d.MemberUsers))
	for _, u := range d.MemberUsers {
		usersById[u.Id] = u
	}
	for i, m := range d.Chat.Members {
		if u, ok := usersById[m.User]; ok {
			dto.Members[i].User = userDTO(u)
		}
	}

	if d.CreatorUser != nil {
		dto.Creator = userDTO(*d.CreatorUser)
	}
	if d.LastMsg != nil {
		msg := messageDTO(*d.LastMsg)
		if u, ok := usersById[d.LastMsg.Sender]; ok {
			msg.Sender = userDTO(u)
		}
		dto.LastMessage = &msg
	}
	return dto
}

func attachmentDTOs(attachments []store.Attachment) []types.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]types.Attachment, len(attachments))
	for i, a := range attachments {
		out[i] = types.Attachment{Url: a.Url, Name: a.Name, Type: a.Type, Size: a.Size}
	}
	return out
}

func messageDTO(m store.Message) types.Message {
	dto := types.Message{
		Id:          m.Id.Hex(),
		ChatId:      m.Chat.Hex(),
		Sender:      types.User{Id: m.Sender.Hex()},
		Content:     m.Content,
		MessageType: m.MessageType,
		Attachments: attachmentDTOs(m.Attachments),
		IsEdited:    m.IsEdited,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for _, id := range m.Mentions {
		dto.Mentions = append(dto.Mentions, id.Hex())
	}
	for _, r := range m.Reactions {
		dto.Reactions = append(dto.Reactions, types.Reaction{
			UserId:    r.User.Hex(),
			Emoji:     r.Emoji,
			CreatedAt: r.CreatedAt,
		})
	}
	for _, id := range m.ReadBy {
		dto.ReadBy = append(dto.ReadBy, id.Hex())
	}
	if !m.ReplyTo.IsZero() {
		dto.ReplyTo = m.ReplyTo.Hex()
	}
	return dto
}
