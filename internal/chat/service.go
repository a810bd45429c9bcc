package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/events"
	"github.com/teamsync-io/teamsync/internal/store"
	"github.com/teamsync-io/teamsync/internal/types"
)

const (
	maxContentLength     = 5000
	minChatNameLength    = 2
	maxChatNameLength    = 100
	maxDescriptionLength = 500
)

type CreateChatInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        string              `json:"type"`
	Visibility  string              `json:"visibility"`
	Project     string              `json:"project_id"`
	Avatar      string              `json:"avatar"`
	Members     []string            `json:"members"`
	Settings    *types.ChatSettings `json:"settings"`
}

type UpdateChatInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
	Avatar      *string `json:"avatar"`
	IsArchived  *bool   `json:"is_archived"`
}

type SendMessageInput struct {
	Content     string             `json:"content"`
	MessageType string             `json:"message_type"`
	Attachments []types.Attachment `json:"attachments"`
	Mentions    []string           `json:"mentions"`
	ReplyTo     string             `json:"reply_to"`
}

type UpdateMessageInput struct {
	Content string `json:"content"`
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

// Service orchestrates the chat write path: membership checks, persistence
// and event publication. It never delivers anything itself; delivery is the
// fanout layer's job.
type Service struct {
	log  *log.Logger
	db   store.Repository
	auth *MembershipAuthorizer
	bus  *events.Bus
}

func NewService(logger *log.Logger, db store.Repository, auth *MembershipAuthorizer, bus *events.Bus) *Service {
	return &Service{log: logger, db: db, auth: auth, bus: bus}
}

// ValidateMembership is the shared gate consumed by both REST handlers and
// socket handlers.
func (s *Service) ValidateMembership(ctx context.Context, chatId, userId string) (Membership, error) {
	return s.auth.ResolveMembership(ctx, chatId, userId)
}

// totalPages mirrors the store's paging window so the page count agrees
// with what a caller walking the pages will actually see.
func totalPages(total int64, limit int) int {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func validMessageType(t string) bool {
	switch t {
	case types.MessageTypeText, types.MessageTypeImage, types.MessageTypeFile, types.MessageTypeSystem:
		return true
	}
	return false
}

// CreateChat creates a chat with the caller as admin. Direct chats are
// idempotent: an existing direct chat between the same two users is
// returned unchanged instead of duplicated.
func (s *Service) CreateChat(ctx context.Context, input CreateChatInput, callerId, orgId string) (types.Chat, error) {
	callerOID, err := parseID(callerId)
	if err != nil {
		return types.Chat{}, err
	}
	orgOID, err := parseID(orgId)
	if err != nil {
		return types.Chat{}, err
	}

	if input.Type != types.ChatTypeDirect && input.Type != types.ChatTypeGroup {
		return types.Chat{}, fmt.Errorf("%w: invalid chat type %q", ErrBadRequest, input.Type)
	}

	memberOIDs, err := s.parseMemberIds(input.Members, callerOID)
	if err != nil {
		return types.Chat{}, err
	}

	if input.Type == types.ChatTypeDirect {
		if len(memberOIDs) != 1 {
			return types.Chat{}, fmt.Errorf("%w: direct chat must have exactly 2 distinct members", ErrBadRequest)
		}

		existing, err := s.db.FindDirectChat(ctx, orgOID, callerOID, memberOIDs[0])
		if err == nil {
			return chatDTO(existing), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return types.Chat{}, fmt.Errorf("find direct chat: %w", err)
		}
	} else {
		name := strings.TrimSpace(input.Name)
		if len(name) < minChatNameLength || len(name) > maxChatNameLength {
			return types.Chat{}, fmt.Errorf("%w: chat name must be %d-%d characters", ErrBadRequest, minChatNameLength, maxChatNameLength)
		}
		input.Name = name
	}
	if len(input.Description) > maxDescriptionLength {
		return types.Chat{}, fmt.Errorf("%w: description too long", ErrBadRequest)
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = types.VisibilityPublic
	}
	if visibility != types.VisibilityPublic && visibility != types.VisibilityPrivate {
		return types.Chat{}, fmt.Errorf("%w: invalid visibility %q", ErrBadRequest, visibility)
	}

	settings := store.ChatSettings{CanMembersInvite: true, CanMembersMessage: true}
	if input.Settings != nil {
		settings = store.ChatSettings{
			CanMembersInvite:  input.Settings.CanMembersInvite,
			CanMembersMessage: input.Settings.CanMembersMessage,
			ApprovalRequired:  input.Settings.ApprovalRequired,
		}
	}

	now := time.Now().UTC()
	members := make([]store.ChatMember, 0, len(memberOIDs)+1)
	members = append(members, store.ChatMember{User: callerOID, Role: types.RoleAdmin, JoinedAt: now})
	for _, id := range memberOIDs {
		members = append(members, store.ChatMember{User: id, Role: types.RoleMember, JoinedAt: now})
	}

	// direct-chat invariant, re-checked after dedup
	if input.Type == types.ChatTypeDirect && len(members) != 2 {
		return types.Chat{}, fmt.Errorf("%w: direct chat must have exactly 2 distinct members", ErrBadRequest)
	}

	chat := store.Chat{
		Name:         input.Name,
		Description:  input.Description,
		Type:         input.Type,
		Visibility:   visibility,
		Organization: orgOID,
		Creator:      callerOID,
		Members:      members,
		Settings:     settings,
		Avatar:       input.Avatar,
	}
	if input.Project != "" {
		projectOID, err := parseID(input.Project)
		if err != nil {
			return types.Chat{}, err
		}
		chat.Project = projectOID
	}

	created, err := s.db.CreateChat(ctx, chat)
	if err != nil {
		return types.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chatDTO(created), nil
}

// parseMemberIds parses and dedupes the requested member ids, dropping the
// caller who is added separately as admin.
func (s *Service) parseMemberIds(ids []string, callerOID primitive.ObjectID) ([]primitive.ObjectID, error) {
	seen := map[primitive.ObjectID]struct{}{callerOID: {}}
	var out []primitive.ObjectID
	for _, id := range ids {
		oid, err := parseID(id)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[oid]; ok {
			continue
		}
		seen[oid] = struct{}{}
		out = append(out, oid)
	}
	return out, nil
}

func (s *Service) GetChat(ctx context.Context, chatId, callerId string) (types.Chat, error) {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return types.Chat{}, err
	}

	dto := chatDTO(chat)

	// populate member detail
	ids := make([]primitive.ObjectID, len(chat.Members))
	for i, m := range chat.Members {
		ids[i] = m.User
	}
	users, err := s.db.GetUsers(ctx, ids)
	if err != nil {
		return types.Chat{}, fmt.Errorf("get members: %w", err)
	}
	byId := make(map[string]store.User, len(users))
	for _, u := range users {
		byId[u.Id.Hex()] = u
	}
	for i, m := range dto.Members {
		if u, ok := byId[m.User.Id]; ok {
			dto.Members[i].User = userDTO(u)
		}
	}
	if u, ok := byId[dto.Creator.Id]; ok {
		dto.Creator = userDTO(u)
	}
	return dto, nil
}

func (s *Service) UpdateChat(ctx context.Context, chatId string, input UpdateChatInput, callerId string) error {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}

	params := store.UpdateChatParams{
		Description: input.Description,
		Avatar:      input.Avatar,
		IsArchived:  input.IsArchived,
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < minChatNameLength || len(name) > maxChatNameLength {
			return fmt.Errorf("%w: chat name must be %d-%d characters", ErrBadRequest, minChatNameLength, maxChatNameLength)
		}
		params.Name = &name
	}
	if input.Description != nil && len(*input.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long", ErrBadRequest)
	}
	if input.Visibility != nil {
		if *input.Visibility != types.VisibilityPublic && *input.Visibility != types.VisibilityPrivate {
			return fmt.Errorf("%w: invalid visibility %q", ErrBadRequest, *input.Visibility)
		}
		params.Visibility = input.Visibility
	}

	if err := s.db.UpdateChat(ctx, chat.Id, params); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: chat %s", ErrNotFound, chatId)
		}
		return fmt.Errorf("update chat: %w", err)
	}
	return nil
}

func (s *Service) DeleteChat(ctx context.Context, chatId, callerId string) error {
	chat, membership, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}
	if membership.Role != types.RoleAdmin {
		return fmt.Errorf("%w: only admins can delete a chat", ErrForbidden)
	}

	if err := s.db.DeleteChat(ctx, chat.Id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: chat %s", ErrNotFound, chatId)
		}
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// SendMessage persists the message and publishes message.created with the
// populated result. The lastMessage pointer on the chat is a best-effort
// read-model update; its failure never fails the send.
func (s *Service) SendMessage(ctx context.Context, chatId string, input SendMessageInput, callerId string) (types.Message, error) {
	chat, membership, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return types.Message{}, err
	}

	if !chat.Settings.CanMembersMessage && membership.Role != types.RoleAdmin {
		return types.Message{}, fmt.Errorf("%w: messaging is restricted to admins in this chat", ErrForbidden)
	}

	content := strings.TrimSpace(input.Content)
	if content == "" && len(input.Attachments) == 0 {
		return types.Message{}, fmt.Errorf("%w: message content cannot be empty", ErrBadRequest)
	}
	if len(content) > maxContentLength {
		return types.Message{}, fmt.Errorf("%w: message content exceeds %d characters", ErrBadRequest, maxContentLength)
	}

	messageType := input.MessageType
	if messageType == "" {
		messageType = types.MessageTypeText
	}
	if !validMessageType(messageType) {
		return types.Message{}, fmt.Errorf("%w: invalid message type %q", ErrBadRequest, messageType)
	}

	callerOID, err := parseID(callerId)
	if err != nil {
		return types.Message{}, err
	}

	msg := store.Message{
		Chat:        chat.Id,
		Sender:      callerOID,
		Content:     content,
		MessageType: messageType,
	}
	for _, a := range input.Attachments {
		msg.Attachments = append(msg.Attachments, store.Attachment{
			Url: a.Url, Name: a.Name, Type: a.Type, Size: a.Size,
		})
	}
	for _, mention := range input.Mentions {
		oid, err := parseID(mention)
		if err != nil {
			return types.Message{}, err
		}
		msg.Mentions = append(msg.Mentions, oid)
	}
	if input.ReplyTo != "" {
		replyOID, err := parseID(input.ReplyTo)
		if err != nil {
			return types.Message{}, err
		}
		msg.ReplyTo = replyOID
	}

	created, err := s.db.CreateMessage(ctx, msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	dto := messageDTO(created)
	if sender, err := s.db.GetUser(ctx, callerOID); err == nil {
		dto.Sender = userDTO(sender)
	} else {
		s.log.Printf("send message: populate sender %s: %v", callerId, err)
	}

	if err := s.db.SetLastMessage(ctx, chat.Id, created.Id); err != nil {
		s.log.Printf("send message: set last message on chat %s: %v", chatId, err)
	}

	s.bus.Publish(events.MessageCreated{ChatId: chatId, Message: dto})
	return dto, nil
}

// AddMembers adds the net-new subset of userIds to the chat and returns it.
// Each member is added with an atomic per-user update, so concurrent calls
// cannot duplicate an entry; members.added is published only for the ids
// actually added.
func (s *Service) AddMembers(ctx context.Context, chatId string, userIds []string, callerId string) ([]string, error) {
	chat, membership, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return nil, err
	}
	if membership.Role != types.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins can add members", ErrForbidden)
	}
	if chat.Type == types.ChatTypeDirect {
		return nil, fmt.Errorf("%w: cannot add members to a direct chat", ErrBadRequest)
	}

	seen := make(map[string]struct{}, len(userIds))
	var added []string
	for _, userId := range userIds {
		if _, ok := seen[userId]; ok {
			continue
		}
		seen[userId] = struct{}{}

		userOID, err := parseID(userId)
		if err != nil {
			return nil, err
		}

		ok, err := s.db.AddMember(ctx, chat.Id, store.ChatMember{
			User:     userOID,
			Role:     types.RoleMember,
			JoinedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("add member %s: %w", userId, err)
		}
		if ok {
			added = append(added, userId)
		}
	}

	if len(added) > 0 {
		s.bus.Publish(events.MembersAdded{
			ChatId:  chatId,
			UserIds: added,
			AddedBy: callerId,
		})
	}
	return added, nil
}

func (s *Service) RemoveMember(ctx context.Context, chatId, userId, callerId string) error {
	chat, membership, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}
	if membership.Role != types.RoleAdmin {
		return fmt.Errorf("%w: only admins can remove members", ErrForbidden)
	}

	userOID, err := parseID(userId)
	if err != nil {
		return err
	}

	if err := s.db.RemoveMember(ctx, chat.Id, userOID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: chat %s", ErrNotFound, chatId)
		}
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *Service) UpdateMessage(ctx context.Context, chatId, messageId string, input UpdateMessageInput, callerId string) error {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}

	messageOID, err := parseID(messageId)
	if err != nil {
		return err
	}

	msg, err := s.db.GetMessage(ctx, chat.Id, messageOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return fmt.Errorf("get message: %w", err)
	}
	if msg.Sender.Hex() != callerId {
		return fmt.Errorf("%w: only the sender can update the message", ErrForbidden)
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return fmt.Errorf("%w: message content cannot be empty", ErrBadRequest)
	}
	if len(content) > maxContentLength {
		return fmt.Errorf("%w: message content exceeds %d characters", ErrBadRequest, maxContentLength)
	}

	if err := s.db.UpdateMessage(ctx, chat.Id, messageOID, store.UpdateMessageParams{Content: content}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *Service) DeleteMessage(ctx context.Context, chatId, messageId, callerId string) error {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}

	messageOID, err := parseID(messageId)
	if err != nil {
		return err
	}

	msg, err := s.db.GetMessage(ctx, chat.Id, messageOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return fmt.Errorf("get message: %w", err)
	}
	if msg.Sender.Hex() != callerId {
		return fmt.Errorf("%w: only the sender can delete the message", ErrForbidden)
	}

	if err := s.db.DeleteMessage(ctx, chat.Id, messageOID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// MarkMessagesRead appends the caller to readBy for each named message
// scoped to the chat. Ids outside the chat are ignored rather than erred so
// the call stays idempotent under racing client state.
func (s *Service) MarkMessagesRead(ctx context.Context, chatId string, messageIds []string, callerId string) error {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}
	if len(messageIds) == 0 {
		return nil
	}

	callerOID, err := parseID(callerId)
	if err != nil {
		return err
	}

	oids := make([]primitive.ObjectID, 0, len(messageIds))
	for _, id := range messageIds {
		oid, err := parseID(id)
		if err != nil {
			return err
		}
		oids = append(oids, oid)
	}

	if err := s.db.MarkMessagesRead(ctx, chat.Id, oids, callerOID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	s.bus.Publish(events.MessageRead{
		ChatId:     chatId,
		ReaderId:   callerId,
		MessageIds: messageIds,
	})
	return nil
}

func (s *Service) GetChatMessages(ctx context.Context, chatId string, query MessageQuery, callerId string) (types.MessagePage, error) {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return types.MessagePage{}, err
	}

	messages, total, err := s.db.ListMessages(ctx, chat.Id, store.MessageQuery{
		Page:        query.Page,
		Limit:       query.Limit,
		StartDate:   query.StartDate,
		EndDate:     query.EndDate,
		MessageType: query.MessageType,
		Search:      query.Search,
	})
	if err != nil {
		return types.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}

	// populate senders with one users query
	senderSet := make(map[primitive.ObjectID]struct{})
	for _, m := range messages {
		senderSet[m.Sender] = struct{}{}
	}
	senderIds := make([]primitive.ObjectID, 0, len(senderSet))
	for id := range senderSet {
		senderIds = append(senderIds, id)
	}

	byId := make(map[primitive.ObjectID]store.User)
	if len(senderIds) > 0 {
		users, err := s.db.GetUsers(ctx, senderIds)
		if err != nil {
			return types.MessagePage{}, fmt.Errorf("get senders: %w", err)
		}
		for _, u := range users {
			byId[u.Id] = u
		}
	}

	page := types.MessagePage{
		Data:  make([]types.Message, len(messages)),
		Total: total,
		Page:  query.Page,
	}
	if page.Page < 1 {
		page.Page = 1
	}
	page.TotalPages = totalPages(total, query.Limit)

	for i, m := range messages {
		dto := messageDTO(m)
		if u, ok := byId[m.Sender]; ok {
			dto.Sender = userDTO(u)
		}
		page.Data[i] = dto
	}
	return page, nil
}

// GetUserChats is the chat-list read model: paginated, filterable, with
// denormalized member/creator/last-message detail. It is a reporting query
// and is never used as an authorization check.
func (s *Service) GetUserChats(ctx context.Context, userId, orgId string, query ChatQuery) (types.ChatPage, error) {
	userOID, err := parseID(userId)
	if err != nil {
		return types.ChatPage{}, err
	}
	orgOID, err := parseID(orgId)
	if err != nil {
		return types.ChatPage{}, err
	}

	details, total, err := s.db.ListUserChats(ctx, userOID, orgOID, store.ChatQuery{
		Page:   query.Page,
		Limit:  query.Limit,
		Type:   query.Type,
		Search: query.Search,
	})
	if err != nil {
		return types.ChatPage{}, fmt.Errorf("list user chats: %w", err)
	}

	page := types.ChatPage{
		Data:  make([]types.Chat, len(details)),
		Total: total,
		Page:  query.Page,
	}
	if page.Page < 1 {
		page.Page = 1
	}
	page.TotalPages = totalPages(total, query.Limit)

	for i, d := range details {
		page.Data[i] = chatDetailDTO(d)
	}
	return page, nil
}

// SearchResult bundles the organization-wide search: members matching the
// term plus chats the caller created or belongs to.
type SearchResult struct {
	Users []types.User `json:"users"`
	Chats []types.Chat `json:"chats"`
}

// Search runs a case-insensitive search over the organization's members and
// the caller's chats.
func (s *Service) Search(ctx context.Context, userId, orgId, term string) (SearchResult, error) {
	userOID, err := parseID(userId)
	if err != nil {
		return SearchResult{}, err
	}
	orgOID, err := parseID(orgId)
	if err != nil {
		return SearchResult{}, err
	}
	if strings.TrimSpace(term) == "" {
		return SearchResult{}, fmt.Errorf("%w: search term cannot be empty", ErrBadRequest)
	}

	users, err := s.db.SearchUsers(ctx, orgOID, term)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search users: %w", err)
	}

	details, err := s.db.SearchChats(ctx, userOID, orgOID, term)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search chats: %w", err)
	}

	result := SearchResult{
		Users: make([]types.User, len(users)),
		Chats: make([]types.Chat, len(details)),
	}
	for i, u := range users {
		result.Users[i] = userDTO(u)
	}
	for i, d := range details {
		result.Chats[i] = chatDetailDTO(d)
	}
	return result, nil
}

// Typing publishes typing.changed. Nothing is persisted; the event carries
// the chat type and member set so delivery can route without re-querying.
func (s *Service) Typing(ctx context.Context, chatId, callerId string, isTyping bool) error {
	chat, _, err := s.auth.resolveChat(ctx, chatId, callerId)
	if err != nil {
		return err
	}

	memberIds := make([]string, len(chat.Members))
	for i, m := range chat.Members {
		memberIds[i] = m.User.Hex()
	}

	s.bus.Publish(events.TypingChanged{
		ChatId:    chatId,
		UserId:    callerId,
		IsTyping:  isTyping,
		ChatType:  chat.Type,
		MemberIds: memberIds,
	})
	return nil
}
