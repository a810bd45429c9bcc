package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one websocket connection. Inbound frames are dispatched to the
// chat service; outbound frames are queued on a bounded send channel that
// the router writes into.
type Client struct {
	id     string
	conn   *websocket.Conn
	router *RoomRouter
	svc    *chat.Service
	log    *log.Logger
	user   types.User
	send   chan *ServerMessage
	stop   chan struct{}
	once   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, router *RoomRouter, svc *chat.Service, l *log.Logger) *Client {
	return &Client{
		id:     shortid.MustGenerate(),
		conn:   conn,
		router: router,
		svc:    svc,
		log:    l,
		user:   user,
		send:   make(chan *ServerMessage, 256),
		stop:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.user.Id }

// Queue attempts a non-blocking enqueue. A full buffer means the reader is
// too slow; the frame is dropped rather than stalling the whole fanout.
func (c *Client) Queue(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stop)
	})
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.Queue(ErrInvalidMessage(-1))
			continue
		}

		msg.UserId = c.user.Id
		msg.Timestamp = Now()
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	ctx := context.Background()

	switch {
	case msg.Join != nil:
		if _, err := c.svc.ValidateMembership(ctx, msg.Join.ChatId, c.user.Id); err != nil {
			c.Queue(errResponse(msg.Id, err))
			return
		}
		c.router.JoinChat(c, msg.Join.ChatId)
		c.Queue(NoErrOK(msg.Id, map[string]any{"chat_id": msg.Join.ChatId}))
	case msg.Leave != nil:
		c.router.LeaveChat(c, msg.Leave.ChatId)
		c.Queue(NoErrOK(msg.Id, map[string]any{"chat_id": msg.Leave.ChatId}))
	case msg.Publish != nil:
		_, err := c.svc.SendMessage(ctx, msg.Publish.ChatId, chat.SendMessageInput{
			Content:     msg.Publish.Content,
			MessageType: msg.Publish.MessageType,
			Attachments: msg.Publish.Attachments,
			Mentions:    msg.Publish.Mentions,
			ReplyTo:     msg.Publish.ReplyTo,
		}, c.user.Id)
		if err != nil {
			c.Queue(errResponse(msg.Id, err))
			return
		}
		c.Queue(NoErrAccepted(msg.Id))
	case msg.Read != nil:
		if err := c.svc.MarkMessagesRead(ctx, msg.Read.ChatId, msg.Read.MessageIds, c.user.Id); err != nil {
			c.Queue(errResponse(msg.Id, err))
			return
		}
		c.Queue(NoErrOK(msg.Id, nil))
	case msg.Typing != nil:
		// fire-and-forget, no ack
		if err := c.svc.Typing(ctx, msg.Typing.ChatId, c.user.Id, msg.Typing.IsTyping); err != nil {
			c.log.Printf("typing: %v", err)
		}
	default:
		c.Queue(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) cleanup() {
	c.router.Deregister(context.Background(), c)
	c.Close()
}
