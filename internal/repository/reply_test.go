package repository

import (
	"context"
	"regexp"
	"testing"

	"agora/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReplyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "replies"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectCommit()

	reply := &models.Reply{PostID: 1, UserID: 2, Text: "Count me in"}
	require.NoError(t, repo.Create(context.Background(), reply))
	assert.Equal(t, uint(4), reply.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplyRepository_ListByUser(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReplyRepository(db)

	rows := sqlmock.NewRows([]string{"id", "post_id", "user_id", "text"}).
		AddRow(3, 10, 2, "later").
		AddRow(1, 11, 2, "earlier")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "replies" WHERE user_id = $1 AND "replies"."deleted_at" IS NULL ORDER BY created_at DESC,id DESC LIMIT $2`)).
		WithArgs(2, 50).
		WillReturnRows(rows)

	replies, err := repo.ListByUser(context.Background(), 2, 50)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, uint(3), replies[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplyRepository_ListByPost_Ordered(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewReplyRepository(db)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, &models.Reply{PostID: 1, UserID: 5, Text: text}))
	}
	require.NoError(t, repo.Create(ctx, &models.Reply{PostID: 2, UserID: 5, Text: "elsewhere"}))

	got, err := repo.ListByPost(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "third", got[2].Text)

	_, err = repo.GetByID(ctx, 999)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}
