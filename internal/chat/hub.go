package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisEventChannel = "chat-events"

func conversationRoom(id int) string { return fmt.Sprintf("conversation:%d", id) }
func userRoom(id int) string         { return fmt.Sprintf("user:%d", id) }

// broadcastEnvelope is what travels over Redis between instances: a target
// room, an optional user to skip, and the finished websocket frame.
type broadcastEnvelope struct {
	Room        string          `json:"room"`
	ExcludeUser int             `json:"exclude_user,omitempty"`
	Frame       json.RawMessage `json:"frame"`
}

type roomOp struct {
	client *Client
	room   string
}

// Hub owns every live websocket client on this instance and the room sets
// they belong to. All state is touched only by the Run goroutine; other
// goroutines talk to it over channels. Cross-instance delivery rides Redis
// pub/sub: every broadcast is published, and every instance delivers to its
// local members of the target room.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	join       chan roomOp
	leave      chan roomOp
	deliver    chan *broadcastEnvelope

	redis   *redis.Client
	log     *zap.Logger
	metrics *Metrics
}

func NewHub(redisClient *redis.Client, log *zap.Logger, metrics *Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		join:       make(chan roomOp),
		leave:      make(chan roomOp),
		deliver:    make(chan *broadcastEnvelope, 64),
		redis:      redisClient,
		log:        log,
		metrics:    metrics,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			// every connection listens on its user's personal room
			h.addToRoom(client, userRoom(client.UserID))
			h.metrics.SetConnections(len(h.clients))

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.dropClient(client)
			}

		case op := <-h.join:
			h.addToRoom(op.client, op.room)

		case op := <-h.leave:
			h.removeFromRoom(op.client, op.room)

		case env := <-h.deliver:
			h.deliverLocal(env)
		}
	}
}

func (h *Hub) addToRoom(c *Client, room string) {
	// a join racing with a drop must not resurrect a dead client as a
	// delivery target
	if !h.clients[c] {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	c.rooms[room] = true
}

func (h *Hub) removeFromRoom(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// dropClient removes a dead connection from every room so it can never be
// a delivery target again.
func (h *Hub) dropClient(c *Client) {
	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}
	delete(h.clients, c)
	close(c.done)
	h.metrics.SetConnections(len(h.clients))
}

func (h *Hub) deliverLocal(env *broadcastEnvelope) {
	for client := range h.rooms[env.Room] {
		if env.ExcludeUser != 0 && client.UserID == env.ExcludeUser {
			continue
		}
		select {
		case client.Send <- []byte(env.Frame):
			h.metrics.RecordFanout()
		default:
			// slow consumer, drop it
			h.dropClient(client)
		}
	}
}

// SubscribeToRedis pipes broadcast envelopes published by any instance
// (this one included) into the local delivery loop.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, redisEventChannel)
	go func() {
		// closing the pubsub is what ends the range below
		<-ctx.Done()
		pubsub.Close()
	}()

	ch := pubsub.Channel()
	for msg := range ch {
		env := &broadcastEnvelope{}
		if err := json.Unmarshal([]byte(msg.Payload), env); err != nil {
			h.log.Warn("discarding malformed broadcast envelope", zap.Error(err))
			continue
		}
		h.deliver <- env
	}
}

// JoinConversation subscribes an (already authorized) client to a
// conversation's broadcast group.
func (h *Hub) JoinConversation(c *Client, convID int) {
	h.join <- roomOp{client: c, room: conversationRoom(convID)}
}

func (h *Hub) LeaveConversation(c *Client, convID int) {
	h.leave <- roomOp{client: c, room: conversationRoom(convID)}
}

func (h *Hub) broadcast(ctx context.Context, room, event string, data any, excludeUser int) {
	env := broadcastEnvelope{
		Room:        room,
		ExcludeUser: excludeUser,
		Frame:       mustEnvelope(event, data),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error("marshal broadcast envelope", zap.Error(err))
		return
	}
	if err := h.redis.Publish(ctx, redisEventChannel, payload).Err(); err != nil {
		h.log.Error("publish broadcast envelope", zap.String("room", room), zap.Error(err))
	}
}

// MessageCreated fans a freshly persisted message out to exactly the two
// participants: the conversation group (both users' sessions with the
// conversation open) and the receiver's personal room for notifications.
func (h *Hub) MessageCreated(ctx context.Context, view *MessageView) {
	h.broadcast(ctx, conversationRoom(view.ConversationID), EventNewMessage, view, 0)
	h.broadcast(ctx, userRoom(view.ReceiverID), EventMessageReceived, MessageReceivedEvent{
		ConversationID: view.ConversationID,
		Message:        view,
	}, 0)
}

// Typing relays an ephemeral typing signal to the conversation group,
// skipping the typist's own sessions. Nothing is persisted.
func (h *Hub) Typing(ctx context.Context, convID int, ev UserTypingEvent) {
	h.broadcast(ctx, conversationRoom(convID), EventUserTyping, ev, ev.UserID)
}

// ReadStateChanged hints the other participant's live sessions that readBy
// has consumed the conversation. The persisted watermark is the source of
// truth; this is best-effort UI signal only.
func (h *Hub) ReadStateChanged(ctx context.Context, convID, readBy int) {
	h.broadcast(ctx, conversationRoom(convID), EventMessagesRead, MessagesReadEvent{
		ConversationID: convID,
		ReadBy:         readBy,
	}, readBy)
}
