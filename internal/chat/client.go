package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lifehub/internal/media"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum frame size allowed from peer.

	eventTimeout = 10 * time.Second
)

// Client is a middleman between one websocket connection and the hub. A
// connection handles its own events sequentially in ReadPump; different
// connections run concurrently.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	UserID   int
	Username string

	// done is closed by the hub when it lets go of this client. Send itself
	// is never closed, so event handlers can keep calling sendError on a
	// connection the hub has already dropped.
	done chan struct{}

	// rooms this client belongs to; touched only by the hub goroutine
	rooms map[string]bool

	svc *Service
	log *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, svc *Service, log *zap.Logger, userID int, username string) *Client {
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		UserID:   userID,
		Username: username,
		rooms:    make(map[string]bool),
		svc:      svc,
		log:      log,
	}
}

// ReadPump pumps frames from the websocket connection into the event
// dispatcher until the connection dies, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket closed unexpectedly", zap.Int("user_id", c.UserID), zap.Error(err))
			}
			break
		}
		c.handleFrame(frame)
	}
}

// WritePump pumps frames from the hub to the websocket connection and keeps
// the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-c.done:
			// the hub dropped us
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.sendError("invalid frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case EventJoinConversation:
		convID, ok := decodeConversationID(env.Data)
		if !ok {
			c.sendError("invalid conversation id")
			return
		}
		if err := c.svc.AuthorizeParticipant(ctx, convID, c.UserID); err != nil {
			c.sendError(publicError(err))
			return
		}
		c.Hub.JoinConversation(c, convID)

	case EventLeaveConversation:
		convID, ok := decodeConversationID(env.Data)
		if !ok {
			c.sendError("invalid conversation id")
			return
		}
		c.Hub.LeaveConversation(c, convID)

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("invalid send-message payload")
			return
		}
		in := SendInput{
			ConversationID: p.ConversationID,
			Content:        p.Content,
			KindHint:       p.MessageType,
		}
		if p.MediaURL != "" {
			in.Media = &media.Ref{
				URL:       p.MediaURL,
				MediaType: p.MediaType,
				FileName:  p.FileName,
				FileSize:  p.FileSize,
			}
		}
		if _, err := c.svc.Send(ctx, Principal{ID: c.UserID, Username: c.Username}, in); err != nil {
			c.sendError(publicError(err))
			return
		}

	case EventTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("invalid typing payload")
			return
		}
		if err := c.svc.AuthorizeParticipant(ctx, p.ConversationID, c.UserID); err != nil {
			c.sendError(publicError(err))
			return
		}
		c.Hub.Typing(ctx, p.ConversationID, UserTypingEvent{
			UserID:   c.UserID,
			Username: c.Username,
			IsTyping: p.IsTyping,
		})

	case EventMarkRead:
		var p MarkReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("invalid mark-read payload")
			return
		}
		if _, err := c.svc.MarkRead(ctx, c.UserID, p.ConversationID); err != nil {
			c.sendError(publicError(err))
			return
		}

	default:
		c.sendError("unknown event")
	}
}

// decodeConversationID accepts either a bare number or
// {"conversationId": n}, matching what clients historically send.
func decodeConversationID(data json.RawMessage) (int, bool) {
	var id int
	if err := json.Unmarshal(data, &id); err == nil && id > 0 {
		return id, true
	}
	var p MarkReadPayload
	if err := json.Unmarshal(data, &p); err == nil && p.ConversationID > 0 {
		return p.ConversationID, true
	}
	return 0, false
}

// sendError emits a best-effort error event on this connection without
// closing it.
func (c *Client) sendError(msg string) {
	select {
	case c.Send <- mustEnvelope(EventError, ErrorEvent{Message: msg}):
	case <-c.done:
	default:
	}
}

func publicError(err error) string {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		return "Conversation not found"
	case errors.Is(err, ErrMissingConversation):
		return "Conversation ID is required"
	case errors.Is(err, ErrSelfConversation):
		return "Cannot create conversation with yourself"
	default:
		return "Internal server error"
	}
}
