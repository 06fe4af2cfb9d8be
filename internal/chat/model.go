package chat

import (
	"strings"
	"time"

	"lifehub/internal/media"
)

// Kind tags the payload variant a message carries.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindAudio, KindFile:
		return true
	}
	return false
}

// KindFromMediaType classifies an attachment by its MIME type.
func KindFromMediaType(mediaType string) Kind {
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case strings.HasPrefix(mediaType, "video/"):
		return KindVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// Conversation is the unique 1:1 channel between two users. The pair
// {User1, User2} is unique regardless of order; User1 is whoever created it.
type Conversation struct {
	ID            int        `json:"id"`
	User1ID       int        `json:"user1_id"`
	User2ID       int        `json:"user2_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// Other returns the counterpart of userID in this conversation.
func (c *Conversation) Other(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

func (c *Conversation) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// ConversationSummary is a conversation annotated with the counterpart's
// public profile and the caller's unread count, as returned by the listing.
type ConversationSummary struct {
	Conversation
	OtherUserID      int    `json:"other_user_id"`
	OtherUsername    string `json:"other_username"`
	OtherDisplayName string `json:"other_user_name"`
	OtherAvatarURL   string `json:"other_user_image"`
	UnreadCount      int    `json:"unread_count"`
}

// Message is the stored form: ciphertext only, never plaintext.
type Message struct {
	ID             int        `json:"id"`
	ConversationID int        `json:"conversation_id"`
	SenderID       int        `json:"sender_id"`
	ReceiverID     int        `json:"receiver_id"`
	Kind           Kind       `json:"message_type"`
	Ciphertext     string     `json:"-"`
	Media          *media.Ref `json:"media,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}

// MessageView is the caller-facing form: decrypted content, ciphertext
// omitted. Content is null when decryption failed for that row.
type MessageView struct {
	ID             int        `json:"id"`
	ConversationID int        `json:"conversation_id"`
	SenderID       int        `json:"sender_id"`
	ReceiverID     int        `json:"receiver_id"`
	Kind           Kind       `json:"message_type"`
	Content        *string    `json:"content"`
	MediaURL       string     `json:"media_url,omitempty"`
	MediaType      string     `json:"media_type,omitempty"`
	FileName       string     `json:"file_name,omitempty"`
	FileSize       int64      `json:"file_size,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
	SenderUsername string     `json:"sender_username,omitempty"`
}
