package chat

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func conversationRows(id, user1, user2 int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user1_id", "user2_id", "created_at", "updated_at", "last_message_at"}).
		AddRow(id, user1, user2, now, now, nil)
}

func TestGetOrCreateConversationRejectsSelf(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, _, err := repo.GetOrCreateConversation(context.Background(), 5, 5)
	require.ErrorIs(t, err, ErrSelfConversation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateConversationReturnsExisting(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(1, 2).
		WillReturnRows(conversationRows(42, 2, 1))

	conv, created, err := repo.GetOrCreateConversation(context.Background(), 1, 2)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 42, conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateConversationCreates(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(1, 2).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(1, 2).
		WillReturnRows(conversationRows(7, 1, 2))

	conv, created, err := repo.GetOrCreateConversation(context.Background(), 1, 2)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 7, conv.ID)
	require.Equal(t, 1, conv.User1ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Both participants racing to create the same pair: the insert hits the
// unique pair index and the loser re-fetches the winner's row instead of
// surfacing an error.
func TestGetOrCreateConversationLosesRace(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(1, 2).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(1, 2).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(1, 2).
		WillReturnRows(conversationRows(9, 2, 1))

	conv, created, err := repo.GetOrCreateConversation(context.Background(), 1, 2)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 9, conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversationForUserNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(3, 99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetConversationForUser(context.Background(), 3, 99)
	require.ErrorIs(t, err, ErrConversationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessageBumpsConversationInSameTx(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(5, 1, 2, string(KindText), "ciphertext", nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(12, time.Now()))
	mock.ExpectExec("UPDATE conversations").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &Message{
		ConversationID: 5,
		SenderID:       1,
		ReceiverID:     2,
		Kind:           KindText,
		Ciphertext:     "ciphertext",
	}
	require.NoError(t, repo.AppendMessage(context.Background(), msg))
	require.Equal(t, 12, msg.ID)
	require.False(t, msg.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessageRollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.AppendMessage(context.Background(), &Message{ConversationID: 5, Kind: KindText})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadCountsTransitions(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE messages").
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.MarkRead(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// second call: nothing left unread
	mock.ExpectExec("UPDATE messages").
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err = repo.MarkRead(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListConversationsScansSummaries(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user1_id", "user2_id", "created_at", "updated_at", "last_message_at",
		"other_id", "other_username", "other_display_name", "other_avatar_url", "unread_count",
	}).
		AddRow(2, 1, 3, now, now, now, 3, "bob", "Bob B", "", 4).
		AddRow(1, 4, 1, now, now, nil, 4, "carol", "Carol C", "", 0)

	mock.ExpectQuery("SELECT (.+) FROM conversations c").
		WithArgs(1).
		WillReturnRows(rows)

	out, err := repo.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "bob", out[0].OtherUsername)
	require.Equal(t, 4, out[0].UnreadCount)
	require.NotNil(t, out[0].LastMessageAt)
	require.Nil(t, out[1].LastMessageAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesScansMedia(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "conversation_id", "sender_id", "receiver_id", "message_type",
		"encrypted_content", "media_url", "media_type", "file_name", "file_size",
		"created_at", "read_at", "username",
	}).
		AddRow(2, 5, 1, 2, "image", "ct2", "/uploads/chat-media/x.png", "image/png", "x.png", 1024, now, nil, "alice").
		AddRow(1, 5, 2, 1, "text", "ct1", nil, nil, nil, nil, now, now, "bob")

	mock.ExpectQuery("SELECT (.+) FROM messages m").
		WithArgs(5, 50, 0).
		WillReturnRows(rows)

	out, err := repo.ListMessages(context.Background(), 5, 50, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.Equal(t, KindImage, out[0].Kind)
	require.NotNil(t, out[0].Media)
	require.Equal(t, "/uploads/chat-media/x.png", out[0].Media.URL)
	require.Equal(t, int64(1024), out[0].Media.FileSize)
	require.Nil(t, out[0].ReadAt)

	require.Equal(t, KindText, out[1].Kind)
	require.Nil(t, out[1].Media)
	require.NotNil(t, out[1].ReadAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
