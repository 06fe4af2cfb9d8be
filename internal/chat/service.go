package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lifehub/internal/media"
)

var ErrMissingConversation = errors.New("conversation id is required")

const defaultPageSize = 50

// Principal is the authenticated identity a request acts as.
type Principal struct {
	ID       int
	Username string
}

// Notifier receives fan-out duties once a state change is durable. The hub
// implements it; tests substitute their own.
type Notifier interface {
	MessageCreated(ctx context.Context, view *MessageView)
	ReadStateChanged(ctx context.Context, convID, readBy int)
}

// SendInput is the transport-independent shape of a send request. Media is
// set when an attachment was already stored (HTTP upload) or referenced
// (websocket payload).
type SendInput struct {
	ConversationID int
	Content        string
	KindHint       string
	Media          *media.Ref
}

// Service runs the one pipeline both delivery paths share:
// authorize -> resolve receiver -> encrypt -> persist -> fan out.
type Service struct {
	repo     *Repository
	cipher   *Cipher
	notifier Notifier
	log      *zap.Logger
	metrics  *Metrics
}

func NewService(repo *Repository, cipher *Cipher, notifier Notifier, log *zap.Logger, metrics *Metrics) *Service {
	return &Service{
		repo:     repo,
		cipher:   cipher,
		notifier: notifier,
		log:      log,
		metrics:  metrics,
	}
}

// StartConversation resolves or lazily creates the conversation between the
// caller and another user. The bool reports whether it was just created.
func (s *Service) StartConversation(ctx context.Context, callerID, otherID int) (*Conversation, bool, error) {
	return s.repo.GetOrCreateConversation(ctx, callerID, otherID)
}

func (s *Service) ListConversations(ctx context.Context, callerID int) ([]ConversationSummary, error) {
	return s.repo.ListConversations(ctx, callerID)
}

// Send encrypts and persists one message, then fans it out to the two
// participants. The returned view carries the decrypted content; ciphertext
// never leaves the store.
func (s *Service) Send(ctx context.Context, sender Principal, in SendInput) (*MessageView, error) {
	if in.ConversationID == 0 {
		return nil, ErrMissingConversation
	}

	conv, err := s.repo.GetConversationForUser(ctx, in.ConversationID, sender.ID)
	if err != nil {
		return nil, err
	}

	kind := s.resolveKind(in)

	// Empty content is encrypted too so every row looks the same.
	ciphertext, err := s.cipher.Encrypt(in.Content, conv.User1ID, conv.User2ID)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		ReceiverID:     conv.Other(sender.ID),
		Kind:           kind,
		Ciphertext:     ciphertext,
		Media:          in.Media,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	s.metrics.RecordMessageSent()

	view := s.buildView(conv, &MessageRecord{Message: *msg, SenderUsername: sender.Username})
	s.notifier.MessageCreated(ctx, view)
	return view, nil
}

func (s *Service) resolveKind(in SendInput) Kind {
	if in.Media != nil {
		return KindFromMediaType(in.Media.MediaType)
	}
	if hint := Kind(in.KindHint); hint.Valid() {
		return hint
	}
	return KindText
}

// ListMessages returns a decrypted page of conversation history, oldest
// first. A row that fails to decrypt is surfaced with null content instead
// of failing the listing.
func (s *Service) ListMessages(ctx context.Context, callerID, convID, limit, offset int) ([]*MessageView, error) {
	conv, err := s.repo.GetConversationForUser(ctx, convID, callerID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.ListMessages(ctx, convID, limit, offset)
	if err != nil {
		return nil, err
	}

	// storage hands back newest-first pages; display order is oldest-first
	views := make([]*MessageView, len(records))
	for i, rec := range records {
		views[len(records)-1-i] = s.buildView(conv, rec)
	}
	return views, nil
}

// MarkRead stamps the caller's unread messages in the conversation and
// hints the sender's live sessions. Idempotent: already-read rows are not
// recounted.
func (s *Service) MarkRead(ctx context.Context, callerID, convID int) (int, error) {
	if _, err := s.repo.GetConversationForUser(ctx, convID, callerID); err != nil {
		return 0, err
	}

	count, err := s.repo.MarkRead(ctx, convID, callerID)
	if err != nil {
		return 0, err
	}

	s.notifier.ReadStateChanged(ctx, convID, callerID)
	return count, nil
}

// AuthorizeParticipant reports whether userID may take part in convID.
// Used by the push channel before joining a broadcast group.
func (s *Service) AuthorizeParticipant(ctx context.Context, convID, userID int) error {
	_, err := s.repo.GetConversationForUser(ctx, convID, userID)
	return err
}

func (s *Service) buildView(conv *Conversation, rec *MessageRecord) *MessageView {
	view := &MessageView{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		SenderID:       rec.SenderID,
		ReceiverID:     rec.ReceiverID,
		Kind:           rec.Kind,
		CreatedAt:      rec.CreatedAt,
		ReadAt:         rec.ReadAt,
		SenderUsername: rec.SenderUsername,
	}
	if rec.Media != nil {
		view.MediaURL = rec.Media.URL
		view.MediaType = rec.Media.MediaType
		view.FileName = rec.Media.FileName
		view.FileSize = rec.Media.FileSize
	}

	content, err := s.cipher.Decrypt(rec.Ciphertext, conv.User1ID, conv.User2ID)
	if err != nil {
		s.metrics.RecordDecryptFailure()
		s.log.Warn("undecryptable message, returning null content",
			zap.Int("message_id", rec.ID),
			zap.Int("conversation_id", rec.ConversationID))
		return view
	}
	view.Content = &content
	return view
}
