package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/events"
	"github.com/teamsync-io/teamsync/internal/stats"
	"github.com/teamsync-io/teamsync/internal/store"
	"github.com/teamsync-io/teamsync/internal/testutil"
	"github.com/teamsync-io/teamsync/internal/types"
)

type fakeSession struct {
	id       string
	userId   string
	received []*ServerMessage
	full     bool
	closed   bool
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.userId }
func (s *fakeSession) Close()         { s.closed = true }
func (s *fakeSession) Queue(msg *ServerMessage) bool {
	if s.full {
		return false
	}
	s.received = append(s.received, msg)
	return true
}

func newTestRouter(t *testing.T, repo store.Repository) (*RoomRouter, *[]events.Event) {
	t.Helper()

	mockStats := new(stats.MockStatsUpdater)
	mockStats.On("RegisterMetric", mock.Anything)
	mockStats.On("Incr", mock.Anything)
	mockStats.On("Decr", mock.Anything)

	bus := events.NewBus(testutil.TestLogger(t))
	published := &[]events.Event{}
	bus.Subscribe(func(e events.Event) {
		*published = append(*published, e)
	})

	presence := chat.NewPresenceTracker(testutil.TestLogger(t), repo, bus)
	return NewRoomRouter(testutil.TestLogger(t), repo, presence, mockStats), published
}

func TestRegister(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()
	chatId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("ListMemberChatIds", mock.Anything, userId, orgId).
		Return([]primitive.ObjectID{chatId}, nil)
	mockRepo.On("UpsertPresence", mock.Anything, userId, types.StatusOnline, mock.Anything).Return(nil)

	router, published := newTestRouter(t, mockRepo)
	sess := &fakeSession{id: "s1", userId: userId.Hex()}

	err := router.Register(context.Background(), sess, userId.Hex(), orgId.Hex())
	assert.NoError(t, err, "expected no error")

	// session is reachable via both its user room and the chat room
	router.BroadcastToUser(userId.Hex(), NoErrOK(1, nil))
	router.Broadcast(chatRoom(chatId.Hex()), NoErrOK(2, nil), "")
	assert.Len(t, sess.received, 2, "expected delivery on both rooms")

	assert.Len(t, *published, 1, "expected a presence event")
	evt, ok := (*published)[0].(events.PresenceChanged)
	assert.True(t, ok, "expected PresenceChanged")
	assert.Equal(t, types.StatusOnline, evt.Status, "expected online")
	mockRepo.AssertExpectations(t)
}

func TestRegister_SecondSessionNoPresence(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("ListMemberChatIds", mock.Anything, userId, orgId).
		Return([]primitive.ObjectID{}, nil)
	mockRepo.On("UpsertPresence", mock.Anything, userId, types.StatusOnline, mock.Anything).
		Return(nil).Once()

	router, published := newTestRouter(t, mockRepo)

	s1 := &fakeSession{id: "s1", userId: userId.Hex()}
	s2 := &fakeSession{id: "s2", userId: userId.Hex()}
	assert.NoError(t, router.Register(context.Background(), s1, userId.Hex(), orgId.Hex()))
	assert.NoError(t, router.Register(context.Background(), s2, userId.Hex(), orgId.Hex()))

	assert.Len(t, *published, 1, "presence should flip only on the first session")
	mockRepo.AssertExpectations(t)
}

func TestDeregister(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("ListMemberChatIds", mock.Anything, userId, orgId).
		Return([]primitive.ObjectID{}, nil)
	mockRepo.On("UpsertPresence", mock.Anything, userId, types.StatusOnline, mock.Anything).Return(nil)
	mockRepo.On("UpsertPresence", mock.Anything, userId, types.StatusOffline, mock.Anything).
		Return(nil).Once()

	router, published := newTestRouter(t, mockRepo)

	s1 := &fakeSession{id: "s1", userId: userId.Hex()}
	s2 := &fakeSession{id: "s2", userId: userId.Hex()}
	assert.NoError(t, router.Register(context.Background(), s1, userId.Hex(), orgId.Hex()))
	assert.NoError(t, router.Register(context.Background(), s2, userId.Hex(), orgId.Hex()))

	router.Deregister(context.Background(), s1)
	router.BroadcastToUser(userId.Hex(), NoErrOK(1, nil))
	assert.Empty(t, s1.received, "deregistered session must not receive")
	assert.Len(t, s2.received, 1, "remaining session still receives")

	// only the last session flips presence offline
	router.Deregister(context.Background(), s2)

	statuses := make([]string, 0, len(*published))
	for _, e := range *published {
		statuses = append(statuses, e.(events.PresenceChanged).Status)
	}
	assert.Equal(t, []string{types.StatusOnline, types.StatusOffline}, statuses, "unexpected presence sequence")
	mockRepo.AssertExpectations(t)
}

func TestDeregister_UnknownSession(t *testing.T) {
	mockRepo := new(store.MockRepository)
	router, published := newTestRouter(t, mockRepo)

	router.Deregister(context.Background(), &fakeSession{id: "ghost", userId: primitive.NewObjectID().Hex()})
	assert.Empty(t, *published, "no presence event for an unregistered session")
}

func TestRegister_ReconnectRecomputesRooms(t *testing.T) {
	userId := primitive.NewObjectID()
	orgId := primitive.NewObjectID()
	oldChat := primitive.NewObjectID()
	newChat := primitive.NewObjectID()

	mockRepo := new(store.MockRepository)
	mockRepo.On("ListMemberChatIds", mock.Anything, userId, orgId).
		Return([]primitive.ObjectID{oldChat}, nil).Once()
	mockRepo.On("ListMemberChatIds", mock.Anything, userId, orgId).
		Return([]primitive.ObjectID{oldChat, newChat}, nil).Once()
	mockRepo.On("UpsertPresence", mock.Anything, userId, mock.Anything, mock.Anything).Return(nil)

	router, _ := newTestRouter(t, mockRepo)

	s1 := &fakeSession{id: "s1", userId: userId.Hex()}
	assert.NoError(t, router.Register(context.Background(), s1, userId.Hex(), orgId.Hex()))
	router.Broadcast(chatRoom(newChat.Hex()), NoErrOK(1, nil), "")
	assert.Empty(t, s1.received, "session predates the membership")

	router.Deregister(context.Background(), s1)

	// membership added while offline is visible after reconnect
	s2 := &fakeSession{id: "s2", userId: userId.Hex()}
	assert.NoError(t, router.Register(context.Background(), s2, userId.Hex(), orgId.Hex()))
	router.Broadcast(chatRoom(newChat.Hex()), NoErrOK(2, nil), "")
	assert.Len(t, s2.received, 1, "reconnect should pick up the new chat room")
	mockRepo.AssertExpectations(t)
}

func TestBroadcast_SkipsUser(t *testing.T) {
	mockRepo := new(store.MockRepository)
	router, _ := newTestRouter(t, mockRepo)

	alice := &fakeSession{id: "a", userId: "alice"}
	aliceTab := &fakeSession{id: "a2", userId: "alice"}
	bob := &fakeSession{id: "b", userId: "bob"}

	router.JoinChat(alice, "c1")
	router.JoinChat(aliceTab, "c1")
	router.JoinChat(bob, "c1")

	router.Broadcast(chatRoom("c1"), NoErrOK(1, nil), "alice")

	assert.Empty(t, alice.received, "all of the skipped user's sessions are excluded")
	assert.Empty(t, aliceTab.received, "all of the skipped user's sessions are excluded")
	assert.Len(t, bob.received, 1, "other users receive")
}

func TestBroadcast_FullBufferDrops(t *testing.T) {
	mockRepo := new(store.MockRepository)
	router, _ := newTestRouter(t, mockRepo)

	slow := &fakeSession{id: "slow", userId: "u1", full: true}
	router.JoinChat(slow, "c1")

	// must not block or panic
	router.Broadcast(chatRoom("c1"), NoErrOK(1, nil), "")
	assert.Empty(t, slow.received, "nothing delivered to a full session")
}

func TestLeaveChat(t *testing.T) {
	mockRepo := new(store.MockRepository)
	router, _ := newTestRouter(t, mockRepo)

	sess := &fakeSession{id: "s1", userId: "u1"}
	router.JoinChat(sess, "c1")
	router.LeaveChat(sess, "c1")

	router.Broadcast(chatRoom("c1"), NoErrOK(1, nil), "")
	assert.Empty(t, sess.received, "no delivery after leaving")
}

func TestShutdown(t *testing.T) {
	mockRepo := new(store.MockRepository)
	router, _ := newTestRouter(t, mockRepo)

	s1 := &fakeSession{id: "s1", userId: "u1"}
	s2 := &fakeSession{id: "s2", userId: "u2"}
	router.JoinChat(s1, "c1")
	router.JoinChat(s2, "c2")

	router.Shutdown()
	assert.True(t, s1.closed, "session should be closed")
	assert.True(t, s2.closed, "session should be closed")
}
