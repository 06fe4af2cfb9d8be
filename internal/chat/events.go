package chat

import "encoding/json"

// Wire protocol for the websocket channel. Every frame is an Envelope; the
// event name selects the payload shape. Client-originated payloads use the
// same field names the frontend already sends.

const (
	// client -> server
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventTyping            = "typing"
	EventMarkRead          = "mark-read"

	// server -> client
	EventNewMessage      = "new-message"
	EventMessageReceived = "message-received"
	EventUserTyping      = "user-typing"
	EventMessagesRead    = "messages-read"
	EventError           = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type SendMessagePayload struct {
	ConversationID int    `json:"conversationId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
	MediaURL       string `json:"mediaUrl"`
	MediaType      string `json:"mediaType"`
	FileName       string `json:"fileName"`
	FileSize       int64  `json:"fileSize"`
}

type TypingPayload struct {
	ConversationID int  `json:"conversationId"`
	IsTyping       bool `json:"isTyping"`
}

type MarkReadPayload struct {
	ConversationID int `json:"conversationId"`
}

type UserTypingEvent struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type MessageReceivedEvent struct {
	ConversationID int          `json:"conversationId"`
	Message        *MessageView `json:"message"`
}

type MessagesReadEvent struct {
	ConversationID int `json:"conversationId"`
	ReadBy         int `json:"readBy"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func mustEnvelope(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	env, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return env
}
