package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/stats"
	"github.com/teamsync-io/teamsync/internal/store"
)

const (
	liveSessionsMetric      = "LiveSessions"
	activeRoomsMetric       = "ActiveRooms"
	messagesDeliveredMetric = "MessagesDelivered"
	messagesDroppedMetric   = "MessagesDropped"
)

// Session is a single live socket connection. A user may hold several at
// once (one per tab or device); each gets its own Session.
type Session interface {
	ID() string
	UserID() string
	Queue(msg *ServerMessage) bool
	Close()
}

func parseObjectId(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func userRoom(userId string) string { return "user_" + userId }
func chatRoom(chatId string) string { return "chat_" + chatId }

// RoomRouter tracks which sessions occupy which rooms. On registration a
// session is placed in its owner's user room plus one room per chat the
// user belongs to inside the organization; later joins and leaves adjust
// the set. Presence flips only on a user's 0->1 and 1->0 session
// transitions, so a second tab never re-announces the user.
type RoomRouter struct {
	log      *log.Logger
	db       store.Repository
	presence *chat.PresenceTracker
	stats    stats.StatsProvider

	mu           sync.RWMutex
	rooms        map[string]map[Session]struct{}
	sessionRooms map[Session]map[string]struct{}
	userSessions map[string]map[Session]struct{}
}

func NewRoomRouter(logger *log.Logger, db store.Repository, presence *chat.PresenceTracker, statsProvider stats.StatsProvider) *RoomRouter {
	statsProvider.RegisterMetric(liveSessionsMetric)
	statsProvider.RegisterMetric(activeRoomsMetric)
	statsProvider.RegisterMetric(messagesDeliveredMetric)
	statsProvider.RegisterMetric(messagesDroppedMetric)

	return &RoomRouter{
		log:          logger,
		db:           db,
		presence:     presence,
		stats:        statsProvider,
		rooms:        make(map[string]map[Session]struct{}),
		sessionRooms: make(map[Session]map[string]struct{}),
		userSessions: make(map[string]map[Session]struct{}),
	}
}

// Register wires a freshly authenticated session into its room set. The
// room set is recomputed from the store on every registration, so a
// reconnect observes membership changes made while the user was offline.
func (rt *RoomRouter) Register(ctx context.Context, sess Session, userId, orgId string) error {
	userOID, err := parseObjectId(userId)
	if err != nil {
		return err
	}
	orgOID, err := parseObjectId(orgId)
	if err != nil {
		return err
	}

	chatIds, err := rt.db.ListMemberChatIds(ctx, userOID, orgOID)
	if err != nil {
		return fmt.Errorf("list member chats: %w", err)
	}

	rooms := make([]string, 0, len(chatIds)+1)
	rooms = append(rooms, userRoom(userId))
	for _, id := range chatIds {
		rooms = append(rooms, chatRoom(id.Hex()))
	}

	rt.mu.Lock()
	for _, room := range rooms {
		rt.addToRoom(sess, room)
	}

	sessions, ok := rt.userSessions[userId]
	if !ok {
		sessions = make(map[Session]struct{})
		rt.userSessions[userId] = sessions
	}
	sessions[sess] = struct{}{}
	firstSession := len(sessions) == 1
	rt.mu.Unlock()

	rt.stats.Incr(liveSessionsMetric)
	if firstSession {
		rt.presence.Connected(ctx, userId)
	}

	rt.log.Printf("registered session %s for user %s in %d rooms", sess.ID(), userId, len(rooms))
	return nil
}

// Deregister removes the session from every room it occupies. Safe to call
// for a session that was never registered.
func (rt *RoomRouter) Deregister(ctx context.Context, sess Session) {
	userId := sess.UserID()

	rt.mu.Lock()
	rooms, registered := rt.sessionRooms[sess]
	for room := range rooms {
		rt.removeFromRoom(sess, room)
	}
	delete(rt.sessionRooms, sess)

	lastSession := false
	if sessions, ok := rt.userSessions[userId]; ok {
		delete(sessions, sess)
		if len(sessions) == 0 {
			delete(rt.userSessions, userId)
			lastSession = true
		}
	}
	rt.mu.Unlock()

	if !registered {
		return
	}

	rt.stats.Decr(liveSessionsMetric)
	if lastSession {
		rt.presence.Disconnected(ctx, userId)
	}

	rt.log.Printf("deregistered session %s for user %s", sess.ID(), userId)
}

func (rt *RoomRouter) JoinChat(sess Session, chatId string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.addToRoom(sess, chatRoom(chatId))
}

func (rt *RoomRouter) LeaveChat(sess Session, chatId string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.removeFromRoom(sess, chatRoom(chatId))
}

// addToRoom and removeFromRoom assume rt.mu is held.
func (rt *RoomRouter) addToRoom(sess Session, room string) {
	members, ok := rt.rooms[room]
	if !ok {
		members = make(map[Session]struct{})
		rt.rooms[room] = members
		rt.stats.Incr(activeRoomsMetric)
	}
	members[sess] = struct{}{}

	sessRooms, ok := rt.sessionRooms[sess]
	if !ok {
		sessRooms = make(map[string]struct{})
		rt.sessionRooms[sess] = sessRooms
	}
	sessRooms[room] = struct{}{}
}

func (rt *RoomRouter) removeFromRoom(sess Session, room string) {
	if members, ok := rt.rooms[room]; ok {
		delete(members, sess)
		if len(members) == 0 {
			delete(rt.rooms, room)
			rt.stats.Decr(activeRoomsMetric)
		}
	}
	if sessRooms, ok := rt.sessionRooms[sess]; ok {
		delete(sessRooms, room)
	}
}

// Broadcast queues msg on every session in the room, skipping all sessions
// owned by skipUserId when it is non-empty.
func (rt *RoomRouter) Broadcast(room string, msg *ServerMessage, skipUserId string) {
	rt.mu.RLock()
	members := make([]Session, 0, len(rt.rooms[room]))
	for sess := range rt.rooms[room] {
		if skipUserId != "" && sess.UserID() == skipUserId {
			continue
		}
		members = append(members, sess)
	}
	rt.mu.RUnlock()

	for _, sess := range members {
		if sess.Queue(msg) {
			rt.stats.Incr(messagesDeliveredMetric)
		} else {
			rt.stats.Incr(messagesDroppedMetric)
			rt.log.Printf("dropped message for session %s, send buffer full", sess.ID())
		}
	}
}

func (rt *RoomRouter) BroadcastToUser(userId string, msg *ServerMessage) {
	rt.Broadcast(userRoom(userId), msg, "")
}

// BroadcastAll fans msg out to every live session once, skipping sessions
// owned by skipUserId.
func (rt *RoomRouter) BroadcastAll(msg *ServerMessage, skipUserId string) {
	rt.mu.RLock()
	sessions := make([]Session, 0, len(rt.sessionRooms))
	for sess := range rt.sessionRooms {
		if skipUserId != "" && sess.UserID() == skipUserId {
			continue
		}
		sessions = append(sessions, sess)
	}
	rt.mu.RUnlock()

	for _, sess := range sessions {
		if sess.Queue(msg) {
			rt.stats.Incr(messagesDeliveredMetric)
		} else {
			rt.stats.Incr(messagesDroppedMetric)
		}
	}
}

// Shutdown closes every live session. Each session's read pump calls back
// into Deregister as it unwinds.
func (rt *RoomRouter) Shutdown() {
	rt.mu.RLock()
	sessions := make([]Session, 0, len(rt.sessionRooms))
	for sess := range rt.sessionRooms {
		sessions = append(sessions, sess)
	}
	rt.mu.RUnlock()

	rt.log.Printf("shutting down %d sessions", len(sessions))
	for _, sess := range sessions {
		sess.Close()
	}
}
