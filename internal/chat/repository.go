package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"lifehub/internal/media"
)

var (
	// ErrSelfConversation rejects a conversation between a user and itself.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	// ErrConversationNotFound covers both "does not exist" and "caller is
	// not a participant" so non-participants cannot probe for existence.
	ErrConversationNotFound = errors.New("conversation not found")
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// MessageRecord is a stored message joined with the sender's username.
type MessageRecord struct {
	Message
	SenderUsername string
}

const conversationColumns = "id, user1_id, user2_id, created_at, updated_at, last_message_at"

func scanConversation(row *sql.Row) (*Conversation, error) {
	c := &Conversation{}
	var lastMessageAt sql.NullTime
	err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.UpdatedAt, &lastMessageAt)
	if err != nil {
		return nil, err
	}
	if lastMessageAt.Valid {
		c.LastMessageAt = &lastMessageAt.Time
	}
	return c, nil
}

// GetOrCreateConversation resolves the unique conversation between two users,
// creating it on first contact. The returned bool reports whether a new row
// was created. Two users racing to create the same pair both end up with the
// same conversation: a unique violation on insert means the other side won,
// so we re-fetch instead of failing.
func (r *Repository) GetOrCreateConversation(ctx context.Context, currentID, otherID int) (*Conversation, bool, error) {
	if currentID == otherID {
		return nil, false, ErrSelfConversation
	}

	conv, err := r.findConversationByPair(ctx, currentID, otherID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	query := fmt.Sprintf(`INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
        RETURNING %s`, conversationColumns)
	conv, err = scanConversation(r.db.QueryRowContext(ctx, query, currentID, otherID))
	if err == nil {
		return conv, true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		conv, err = r.findConversationByPair(ctx, currentID, otherID)
		if err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}
	return nil, false, err
}

func (r *Repository) findConversationByPair(ctx context.Context, userA, userB int) (*Conversation, error) {
	query := fmt.Sprintf(`SELECT %s FROM conversations
        WHERE (user1_id = $1 AND user2_id = $2) OR (user1_id = $2 AND user2_id = $1)`,
		conversationColumns)
	return scanConversation(r.db.QueryRowContext(ctx, query, userA, userB))
}

// GetConversationForUser fetches a conversation only if userID participates
// in it; anything else is ErrConversationNotFound.
func (r *Repository) GetConversationForUser(ctx context.Context, convID, userID int) (*Conversation, error) {
	query := fmt.Sprintf(`SELECT %s FROM conversations
        WHERE id = $1 AND (user1_id = $2 OR user2_id = $2)`, conversationColumns)
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query, convID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the caller's conversations, most recently
// touched first, each with the counterpart's public profile and the number
// of messages still unread by the caller.
func (r *Repository) ListConversations(ctx context.Context, userID int) ([]ConversationSummary, error) {
	query := `
        SELECT c.id, c.user1_id, c.user2_id, c.created_at, c.updated_at, c.last_message_at,
               o.id, o.username, o.display_name, o.avatar_url,
               (SELECT COUNT(*) FROM messages m
                WHERE m.conversation_id = c.id AND m.receiver_id = $1 AND m.read_at IS NULL)
        FROM conversations c
        JOIN users o ON o.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
        WHERE c.user1_id = $1 OR c.user2_id = $1
        ORDER BY c.updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		var lastMessageAt sql.NullTime
		err := rows.Scan(
			&s.ID, &s.User1ID, &s.User2ID, &s.CreatedAt, &s.UpdatedAt, &lastMessageAt,
			&s.OtherUserID, &s.OtherUsername, &s.OtherDisplayName, &s.OtherAvatarURL,
			&s.UnreadCount,
		)
		if err != nil {
			return nil, err
		}
		if lastMessageAt.Valid {
			s.LastMessageAt = &lastMessageAt.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AppendMessage persists a message and bumps the parent conversation's
// updated_at/last_message_at in the same transaction, so a conversation
// listing can never observe a message without the bumped timestamp.
// The message's ID and CreatedAt are assigned by the store.
func (r *Repository) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var mediaURL, mediaType, fileName sql.NullString
	var fileSize sql.NullInt64
	if msg.Media != nil {
		mediaURL = sql.NullString{String: msg.Media.URL, Valid: true}
		mediaType = sql.NullString{String: msg.Media.MediaType, Valid: true}
		fileName = sql.NullString{String: msg.Media.FileName, Valid: true}
		fileSize = sql.NullInt64{Int64: msg.Media.FileSize, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO messages
            (conversation_id, sender_id, receiver_id, message_type, encrypted_content,
             media_url, media_type, file_name, file_size)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at`,
		msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Kind, msg.Ciphertext,
		mediaURL, mediaType, fileName, fileSize,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE conversations
        SET updated_at = CURRENT_TIMESTAMP, last_message_at = CURRENT_TIMESTAMP
        WHERE id = $1`, msg.ConversationID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListMessages returns a page of a conversation's messages, newest first.
// Callers that need display order reverse it.
func (r *Repository) ListMessages(ctx context.Context, convID, limit, offset int) ([]*MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT m.id, m.conversation_id, m.sender_id, m.receiver_id, m.message_type,
               m.encrypted_content, m.media_url, m.media_type, m.file_name, m.file_size,
               m.created_at, m.read_at, u.username
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.conversation_id = $1
        ORDER BY m.id DESC
        LIMIT $2 OFFSET $3`, convID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MessageRecord
	for rows.Next() {
		rec := &MessageRecord{}
		var mediaURL, mediaType, fileName sql.NullString
		var fileSize sql.NullInt64
		var readAt sql.NullTime
		err := rows.Scan(
			&rec.ID, &rec.ConversationID, &rec.SenderID, &rec.ReceiverID, &rec.Kind,
			&rec.Ciphertext, &mediaURL, &mediaType, &fileName, &fileSize,
			&rec.CreatedAt, &readAt, &rec.SenderUsername,
		)
		if err != nil {
			return nil, err
		}
		if mediaURL.Valid {
			rec.Media = &media.Ref{
				URL:       mediaURL.String,
				MediaType: mediaType.String,
				FileName:  fileName.String,
				FileSize:  fileSize.Int64,
			}
		}
		if readAt.Valid {
			rec.ReadAt = &readAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkRead stamps every unread message addressed to receiverID in the
// conversation and reports how many rows transitioned. Rows already read
// keep their original watermark, so calling it again returns 0.
func (r *Repository) MarkRead(ctx context.Context, convID, receiverID int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE messages
        SET read_at = CURRENT_TIMESTAMP
        WHERE conversation_id = $1 AND receiver_id = $2 AND read_at IS NULL`,
		convID, receiverID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
