package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	chats    *mongo.Collection
	messages *mongo.Collection
	presence *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		chats:    db.Collection("chats"),
		messages: db.Collection("messages"),
		presence: db.Collection("presence"),
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// mapErr converts driver not-found errors into the package sentinel.
func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func caseInsensitive(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

func pageWindow(page, limit int) (int64, int64) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return int64((page - 1) * limit), int64(limit)
}

func (s *MongoStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	user := User{
		Email:        params.Email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: params.PasswordHash,
		Avatar:       params.Avatar,
		Organization: params.Organization,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := s.users.InsertOne(ctx, user)
	if err != nil {
		return User{}, err
	}

	user.Id = res.InsertedID.(primitive.ObjectID)
	return user, nil
}

func (s *MongoStore) GetUser(ctx context.Context, id primitive.ObjectID) (User, error) {
	var user User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	return user, mapErr(err)
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	return user, mapErr(err)
}

func (s *MongoStore) GetUsers(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}

	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) SearchUsers(ctx context.Context, orgId primitive.ObjectID, term string) ([]User, error) {
	re := caseInsensitive(term)
	cur, err := s.users.Find(ctx,
		bson.M{
			"organization": orgId,
			"$or": bson.A{
				bson.M{"first_name": re},
				bson.M{"last_name": re},
				bson.M{"email": re},
			},
		},
		options.Find().SetLimit(maxLimit),
	)
	if err != nil {
		return nil, err
	}

	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) CreateChat(ctx context.Context, chat Chat) (Chat, error) {
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now

	res, err := s.chats.InsertOne(ctx, chat)
	if err != nil {
		return Chat{}, err
	}

	chat.Id = res.InsertedID.(primitive.ObjectID)
	return chat, nil
}

func (s *MongoStore) GetChat(ctx context.Context, id primitive.ObjectID) (Chat, error) {
	var chat Chat
	err := s.chats.FindOne(ctx, bson.M{"_id": id, "deleted_at": nil}).Decode(&chat)
	return chat, mapErr(err)
}

func (s *MongoStore) FindDirectChat(ctx context.Context, orgId, userA, userB primitive.ObjectID) (Chat, error) {
	filter := bson.M{
		"type":         "direct",
		"organization": orgId,
		"deleted_at":   nil,
		"members":      bson.M{"$size": 2},
		"members.user": bson.M{"$all": bson.A{userA, userB}},
	}

	var chat Chat
	err := s.chats.FindOne(ctx, filter).Decode(&chat)
	return chat, mapErr(err)
}

func (s *MongoStore) UpdateChat(ctx context.Context, id primitive.ObjectID, params UpdateChatParams) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if params.Name != nil {
		set["name"] = *params.Name
	}
	if params.Description != nil {
		set["description"] = *params.Description
	}
	if params.Visibility != nil {
		set["visibility"] = *params.Visibility
	}
	if params.Avatar != nil {
		set["avatar"] = *params.Avatar
	}
	if params.IsArchived != nil {
		set["is_archived"] = *params.IsArchived
	}

	res, err := s.chats.UpdateOne(ctx, bson.M{"_id": id, "deleted_at": nil}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat soft-deletes: messages stay in place and become unreachable
// because every message path resolves the chat first.
func (s *MongoStore) DeleteChat(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": nil},
		bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMember appends the member only if the user is not already present.
// The membership filter makes the dedupe atomic: two concurrent adds for
// the same user match at most one update. Returns whether the member was
// net-new.
func (s *MongoStore) AddMember(ctx context.Context, chatId primitive.ObjectID, member ChatMember) (bool, error) {
	res, err := s.chats.UpdateOne(ctx,
		bson.M{
			"_id":          chatId,
			"deleted_at":   nil,
			"members.user": bson.M{"$ne": member.User},
		},
		bson.M{
			"$push": bson.M{"members": member},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) RemoveMember(ctx context.Context, chatId, userId primitive.ObjectID) error {
	res, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatId, "deleted_at": nil},
		bson.M{
			"$pull": bson.M{"members": bson.M{"user": userId}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetLastMessage(ctx context.Context, chatId, messageId primitive.ObjectID) error {
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatId, "deleted_at": nil},
		bson.M{"$set": bson.M{"last_message": messageId, "updated_at": time.Now().UTC()}},
	)
	return err
}

// aggregateChats runs the chat-list read model: member, creator and last
// message documents joined onto each matching chat.
func (s *MongoStore) aggregateChats(ctx context.Context, match bson.M, skip, limit int64) ([]ChatDetail, error) {
	pipeline := []bson.D{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "members.user",
			"foreignField": "_id",
			"as":           "member_users",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "creator",
			"foreignField": "_id",
			"as":           "creator_users",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "messages",
			"localField":   "last_message",
			"foreignField": "_id",
			"as":           "last_msgs",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"creator_user": bson.M{"$arrayElemAt": bson.A{"$creator_users", 0}},
			"last_msg":     bson.M{"$arrayElemAt": bson.A{"$last_msgs", 0}},
		}}},
		{{Key: "$project", Value: bson.M{"creator_users": 0, "last_msgs": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "updated_at", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
	}

	cur, err := s.chats.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var chats []ChatDetail
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *MongoStore) ListUserChats(ctx context.Context, userId, orgId primitive.ObjectID, query ChatQuery) ([]ChatDetail, int64, error) {
	match := bson.M{
		"members.user": userId,
		"organization": orgId,
		"deleted_at":   nil,
	}
	if query.Type != "" {
		match["type"] = query.Type
	}
	if query.Search != "" {
		re := caseInsensitive(query.Search)
		match["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
		}
	}

	skip, limit := pageWindow(query.Page, query.Limit)
	chats, err := s.aggregateChats(ctx, match, skip, limit)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.chats.CountDocuments(ctx, match)
	if err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

func (s *MongoStore) ListMemberChatIds(ctx context.Context, userId, orgId primitive.ObjectID) ([]primitive.ObjectID, error) {
	cur, err := s.chats.Find(ctx,
		bson.M{"members.user": userId, "organization": orgId, "deleted_at": nil},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, err
	}

	var docs []struct {
		Id primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Id
	}
	return ids, nil
}

func (s *MongoStore) SearchChats(ctx context.Context, userId, orgId primitive.ObjectID, term string) ([]ChatDetail, error) {
	re := caseInsensitive(term)
	match := bson.M{
		"organization": orgId,
		"deleted_at":   nil,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"creator": userId},
				bson.M{"members.user": userId},
			}},
			bson.M{"$or": bson.A{
				bson.M{"name": re},
				bson.M{"description": re},
			}},
		},
	}

	return s.aggregateChats(ctx, match, 0, maxLimit)
}

func (s *MongoStore) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.ReadBy == nil {
		msg.ReadBy = []primitive.ObjectID{}
	}

	res, err := s.messages.InsertOne(ctx, msg)
	if err != nil {
		return Message{}, err
	}

	msg.Id = res.InsertedID.(primitive.ObjectID)
	return msg, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, chatId, messageId primitive.ObjectID) (Message, error) {
	var msg Message
	err := s.messages.FindOne(ctx, bson.M{"_id": messageId, "chat": chatId}).Decode(&msg)
	return msg, mapErr(err)
}

func (s *MongoStore) UpdateMessage(ctx context.Context, chatId, messageId primitive.ObjectID, params UpdateMessageParams) error {
	now := time.Now().UTC()
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": messageId, "chat": chatId},
		bson.M{"$set": bson.M{
			"content":    params.Content,
			"is_edited":  true,
			"edited_at":  now,
			"updated_at": now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteMessage(ctx context.Context, chatId, messageId primitive.ObjectID) error {
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": messageId, "chat": chatId})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMessagesRead is a set-insert: concurrent readers never clobber each
// other and re-invocation is a no-op. Message ids outside the chat simply
// do not match the filter.
func (s *MongoStore) MarkMessagesRead(ctx context.Context, chatId primitive.ObjectID, messageIds []primitive.ObjectID, userId primitive.ObjectID) error {
	_, err := s.messages.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": messageIds}, "chat": chatId},
		bson.M{"$addToSet": bson.M{"read_by": userId}},
	)
	return err
}

func (s *MongoStore) ListMessages(ctx context.Context, chatId primitive.ObjectID, query MessageQuery) ([]Message, int64, error) {
	filter := bson.M{"chat": chatId}
	if query.StartDate != nil || query.EndDate != nil {
		created := bson.M{}
		if query.StartDate != nil {
			created["$gte"] = *query.StartDate
		}
		if query.EndDate != nil {
			created["$lte"] = *query.EndDate
		}
		filter["created_at"] = created
	}
	if query.MessageType != "" {
		filter["message_type"] = query.MessageType
	}
	if query.Search != "" {
		filter["content"] = caseInsensitive(query.Search)
	}

	skip, limit := pageWindow(query.Page, query.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	var messages []Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, 0, err
	}

	total, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (s *MongoStore) UpsertPresence(ctx context.Context, userId primitive.ObjectID, status string, lastSeen time.Time) error {
	_, err := s.presence.UpdateOne(ctx,
		bson.M{"_id": userId},
		bson.M{"$set": bson.M{"status": status, "last_seen_at": lastSeen}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) GetPresence(ctx context.Context, userId primitive.ObjectID) (Presence, error) {
	var p Presence
	err := s.presence.FindOne(ctx, bson.M{"_id": userId}).Decode(&p)
	return p, mapErr(err)
}
